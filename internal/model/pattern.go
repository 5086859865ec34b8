package model

import "time"

// Pattern is a learned association between a signal shape and a target entity.
type Pattern struct {
	ID            string    `json:"id"`
	PatternType   string    `json:"pattern_type"`
	PatternKey    string    `json:"pattern_key"`
	TargetType    string    `json:"target_type"`
	TargetCode    string    `json:"target_code"`
	Confidence    float64   `json:"confidence"`
	TimesUsed     int       `json:"times_used"`
	TimesCorrect  int       `json:"times_correct"`
	TimesRejected int       `json:"times_rejected"`
	IsActive      bool      `json:"is_active"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RejectionRate is times_rejected over times_used (0 when unused).
func (p *Pattern) RejectionRate() float64 {
	if p.TimesUsed <= 0 {
		return 0
	}
	return float64(p.TimesRejected) / float64(p.TimesUsed)
}

// PatternShape is the signal shape a suggestion was generated from.
type PatternShape struct {
	PatternType string
	PatternKey  string
	TargetType  string
}

// Empty reports whether the shape carries no reusable key.
func (p PatternShape) Empty() bool {
	return p.PatternType == "" || p.PatternKey == ""
}
