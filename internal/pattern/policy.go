package pattern

import "github.com/sells-group/studio-suggest/internal/model"

// Policy decides when patterns become rules and when they are retired.
// Activation happens only in the batch rule job; online feedback can only
// deactivate.
type Policy struct {
	// MinEvidence is the default times_used needed for activation.
	MinEvidence int `yaml:"min_evidence" mapstructure:"min_evidence"`
	// MaxRejectionRate is the rejection rate at or above which a pattern
	// is not (or no longer) active.
	MaxRejectionRate float64 `yaml:"max_rejection_rate" mapstructure:"max_rejection_rate"`
	// MinSample is the times_used below which online deactivation is held off.
	MinSample int `yaml:"min_sample" mapstructure:"min_sample"`
}

// DefaultPolicy returns the default rule policy.
func DefaultPolicy() Policy {
	return Policy{MinEvidence: 5, MaxRejectionRate: 0.3, MinSample: 3}
}

// ShouldActivate reports whether an inactive pattern qualifies as a rule.
func (p Policy) ShouldActivate(pt *model.Pattern, minEvidence int) bool {
	if minEvidence <= 0 {
		minEvidence = p.MinEvidence
	}
	return !pt.IsActive && pt.TimesUsed >= minEvidence && pt.RejectionRate() < p.MaxRejectionRate
}

// ShouldRetire reports whether an active pattern's rejection rate is too high.
// It is used by both the rule job and online feedback.
func (p Policy) ShouldRetire(pt *model.Pattern) bool {
	return pt.IsActive && pt.TimesUsed >= p.MinSample && pt.RejectionRate() >= p.MaxRejectionRate
}
