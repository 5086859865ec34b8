package model

import (
	"encoding/json"
	"time"
)

// Action is the kind of mutation a handler performs.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionNone   Action = "none"
)

// FieldChange is one field-level diff.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// Preview describes what applying a suggestion would change.
type Preview struct {
	Action   Action        `json:"action"`
	Table    string        `json:"table"`
	RecordID string        `json:"record_id,omitempty"`
	Changes  []FieldChange `json:"changes"`
}

// ChangeRecord is one row of the append-only audit trail. Change records
// reference their suggestion by id; suggestions never hold them.
type ChangeRecord struct {
	ID           string          `json:"id"`
	SuggestionID string          `json:"suggestion_id"`
	Action       Action          `json:"action"`
	TableName    string          `json:"table_name"`
	RecordID     string          `json:"record_id"`
	FieldName    string          `json:"field_name"`
	OldValue     json.RawMessage `json:"old_value"`
	NewValue     json.RawMessage `json:"new_value"`
	AppliedAt    time.Time       `json:"applied_at"`
	ReversedAt   *time.Time      `json:"reversed_at,omitempty"`
}

// Old decodes the recorded old value.
func (c *ChangeRecord) Old() any { return decodeValue(c.OldValue) }

// New decodes the recorded new value.
func (c *ChangeRecord) New() any { return decodeValue(c.NewValue) }

func decodeValue(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// EncodeValue encodes a field value for a change record.
func EncodeValue(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// NormalizeValue round-trips a driver value through JSON so numbers from
// different backends compare equal (e.g. int64 40000 and float64 40000).
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

// Stats summarises the suggestion queue.
type Stats struct {
	Total          int                      `json:"total"`
	ByStatus       map[SuggestionStatus]int `json:"by_status"`
	ByType         map[SuggestionType]int   `json:"by_type"`
	Patterns       int                      `json:"patterns"`
	ActivePatterns int                      `json:"active_patterns"`
}
