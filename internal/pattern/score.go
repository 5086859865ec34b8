package pattern

import (
	"math"

	"github.com/sells-group/studio-suggest/internal/model"
)

// Weights tunes how a pattern's learned confidence is blended with a
// signal's raw confidence.
type Weights struct {
	// SignalWeight is the weight of the raw signal confidence.
	SignalWeight float64 `yaml:"signal_weight" mapstructure:"signal_weight"`
	// PatternWeight is the weight of a fully saturated pattern.
	PatternWeight float64 `yaml:"pattern_weight" mapstructure:"pattern_weight"`
	// UsageSaturation is the times_used at which a pattern reaches full weight.
	UsageSaturation int `yaml:"usage_saturation" mapstructure:"usage_saturation"`
	// DisagreementDamping scales down the raw confidence when an active
	// pattern points at a different target than the signal does.
	DisagreementDamping float64 `yaml:"disagreement_damping" mapstructure:"disagreement_damping"`
	// PriorCorrect and PriorRejected are the Beta prior for pattern confidence.
	PriorCorrect  float64 `yaml:"prior_correct" mapstructure:"prior_correct"`
	PriorRejected float64 `yaml:"prior_rejected" mapstructure:"prior_rejected"`
}

// DefaultWeights returns the default blend.
func DefaultWeights() Weights {
	return Weights{
		SignalWeight:        1,
		PatternWeight:       3,
		UsageSaturation:     10,
		DisagreementDamping: 0.5,
		PriorCorrect:        1,
		PriorRejected:       1,
	}
}

// Scorer computes pattern and suggestion confidences.
type Scorer struct {
	w Weights
}

// NewScorer returns a Scorer, filling zero weights from DefaultWeights.
func NewScorer(w Weights) *Scorer {
	d := DefaultWeights()
	if w.SignalWeight <= 0 {
		w.SignalWeight = d.SignalWeight
	}
	if w.PatternWeight < 0 {
		w.PatternWeight = 0
	}
	if w.UsageSaturation <= 0 {
		w.UsageSaturation = d.UsageSaturation
	}
	if w.DisagreementDamping < 0 || w.DisagreementDamping > 1 {
		w.DisagreementDamping = d.DisagreementDamping
	}
	if w.PriorCorrect <= 0 {
		w.PriorCorrect = d.PriorCorrect
	}
	if w.PriorRejected <= 0 {
		w.PriorRejected = d.PriorRejected
	}
	return &Scorer{w: w}
}

// Weights returns the effective weights.
func (s *Scorer) Weights() Weights { return s.w }

// PatternConfidence is the posterior mean of the pattern being right:
// (correct + α) / (correct + rejected + α + β).
func (s *Scorer) PatternConfidence(p *model.Pattern) float64 {
	c := float64(p.TimesCorrect)
	r := float64(p.TimesRejected)
	return clamp((c + s.w.PriorCorrect) / (c + r + s.w.PriorCorrect + s.w.PriorRejected))
}

// patternWeight grows linearly with usage up to UsageSaturation.
func (s *Scorer) patternWeight(p *model.Pattern) float64 {
	use := math.Min(float64(p.TimesUsed)/float64(s.w.UsageSaturation), 1)
	return use * s.w.PatternWeight
}

// Blend combines a signal's raw confidence with a matched pattern.
//
// When the pattern agrees with the signal's target (or supplies it), the
// result is the weighted average of raw and pattern confidence with the
// pattern's weight growing with usage. When it disagrees, the raw
// confidence is damped in proportion to the pattern's weight share.
func (s *Scorer) Blend(raw float64, p *model.Pattern, agrees bool) float64 {
	raw = clamp(raw)
	if p == nil {
		return raw
	}
	wp := s.patternWeight(p)
	if wp == 0 {
		return raw
	}
	share := wp / (s.w.SignalWeight + wp)
	if !agrees {
		return clamp(raw * (1 - s.w.DisagreementDamping*share*p.Confidence))
	}
	return clamp((s.w.SignalWeight*raw + wp*p.Confidence) / (s.w.SignalWeight + wp))
}

// Merge combines two independent pieces of evidence for the same
// suggestion by noisy-OR. The result is never below either input.
func Merge(a, b float64) float64 {
	return clamp(1 - (1-clamp(a))*(1-clamp(b)))
}

func clamp(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
