package model

import (
	"encoding/json"
	"time"
)

// SuggestionStatus represents the lifecycle state of a suggestion.
type SuggestionStatus string

const (
	StatusPending        SuggestionStatus = "pending"
	StatusApproved       SuggestionStatus = "approved"
	StatusRejected       SuggestionStatus = "rejected"
	StatusApplied        SuggestionStatus = "applied"
	StatusApplyFailed    SuggestionStatus = "apply_failed"
	StatusRollbackFailed SuggestionStatus = "rollback_failed"
	StatusRolledBack     SuggestionStatus = "rolled_back"
)

// AllStatuses lists every suggestion status in lifecycle order.
var AllStatuses = []SuggestionStatus{
	StatusPending,
	StatusApproved,
	StatusRejected,
	StatusApplied,
	StatusApplyFailed,
	StatusRollbackFailed,
	StatusRolledBack,
}

// Valid reports whether s is a known status.
func (s SuggestionStatus) Valid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Decidable reports whether a human decision may be recorded in this state.
func (s SuggestionStatus) Decidable() bool {
	return s == StatusPending || s == StatusApplyFailed
}

// SuggestionType identifies which handler owns a suggestion.
type SuggestionType string

const (
	TypeTaskCreation    SuggestionType = "task_creation"
	TypeContactCreation SuggestionType = "contact_creation"
	TypeFeeChange       SuggestionType = "fee_change"
	TypeStatusChange    SuggestionType = "status_change"
	TypeLinkCreation    SuggestionType = "link_creation"
	TypeInformational   SuggestionType = "informational"
)

// AllSuggestionTypes is the exhaustive set of suggestion types. Every entry
// must have a registered handler before the engine starts.
var AllSuggestionTypes = []SuggestionType{
	TypeTaskCreation,
	TypeContactCreation,
	TypeFeeChange,
	TypeStatusChange,
	TypeLinkCreation,
	TypeInformational,
}

// Valid reports whether t is a known suggestion type.
func (t SuggestionType) Valid() bool {
	for _, st := range AllSuggestionTypes {
		if t == st {
			return true
		}
	}
	return false
}

// Priority ranks suggestions for review.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// PriorityFor derives a review priority from a confidence score.
func PriorityFor(confidence float64) Priority {
	switch {
	case confidence >= 0.8:
		return PriorityHigh
	case confidence >= 0.5:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

// Suggestion is a proposed, reviewable change to a business record.
type Suggestion struct {
	ID                string           `json:"id"`
	Type              SuggestionType   `json:"type"`
	Status            SuggestionStatus `json:"status"`
	Priority          Priority         `json:"priority"`
	ConfidenceScore   float64          `json:"confidence_score"`
	SourceType        string           `json:"source_type"`
	SourceID          string           `json:"source_id"`
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	Payload           json.RawMessage  `json:"payload"`
	TargetTable       string           `json:"target_table"`
	TargetID          *string          `json:"target_id,omitempty"`
	RelatedEntityCode string           `json:"related_entity_code,omitempty"`
	ReviewedBy        *string          `json:"reviewed_by,omitempty"`
	ReviewedAt        *time.Time       `json:"reviewed_at,omitempty"`
	ReviewNotes       *string          `json:"review_notes,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	ExpiresAt         *time.Time       `json:"expires_at,omitempty"`

	// Engine bookkeeping.
	DedupTarget string  `json:"-"`
	PatternType string  `json:"pattern_type,omitempty"`
	PatternKey  string  `json:"pattern_key,omitempty"`
	PatternID   *string `json:"pattern_id,omitempty"`
	SignalCount int     `json:"signal_count"`
	LastError   *string `json:"last_error,omitempty"`
}

// DedupKey returns the uniqueness key for the suggestion.
func (s *Suggestion) DedupKey() DedupKey {
	return DedupKey{
		Type:        s.Type,
		SourceType:  s.SourceType,
		SourceID:    s.SourceID,
		TargetTable: s.TargetTable,
		Target:      s.DedupTarget,
	}
}

// DecodePayload unmarshals the suggestion payload into v.
func (s *Suggestion) DecodePayload(v any) error {
	if len(s.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(s.Payload, v)
}

// PayloadMap returns the payload as a generic map. A missing or non-object
// payload yields an empty map.
func (s *Suggestion) PayloadMap() map[string]any {
	m := map[string]any{}
	if len(s.Payload) == 0 {
		return m
	}
	if err := json.Unmarshal(s.Payload, &m); err != nil {
		return map[string]any{}
	}
	return m
}

// DedupKey identifies one decision: a second signal mapping to the same key
// reinforces the existing suggestion instead of creating a new one.
type DedupKey struct {
	Type        SuggestionType
	SourceType  string
	SourceID    string
	TargetTable string
	// Target is the target id when known, otherwise the related entity code.
	Target string
}

// Verdict is a human decision on a suggestion.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
)

// Correction carries the true target a reviewer supplies when rejecting.
type Correction struct {
	TargetCode string `json:"target_code"`
	TargetType string `json:"target_type,omitempty"`
}

// Decision is the input to a review.
type Decision struct {
	Verdict    Verdict     `json:"decision"`
	Reviewer   string      `json:"reviewer"`
	Notes      string      `json:"notes,omitempty"`
	Correction *Correction `json:"correction,omitempty"`
}
