package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Well-known signal types emitted by the extraction producer.
const (
	SignalSenderDomainMatch = "sender_domain_match"
	SignalProjectMention    = "project_mention"
	SignalActionItem        = "action_item"
	SignalNewContact        = "new_contact"
	SignalFeeMention        = "fee_mention"
	SignalStatusUpdate      = "status_update"
	SignalFYI               = "fyi"
)

// Signal is a candidate fact extracted upstream from an email or transcript.
// The engine references signals but never mutates them.
type Signal struct {
	SourceType    string         `json:"source_type" yaml:"source_type"`
	SourceID      string         `json:"source_id" yaml:"source_id"`
	SignalType    string         `json:"signal_type" yaml:"signal_type"`
	ExtractedAt   time.Time      `json:"extracted_at" yaml:"extracted_at"`
	Payload       map[string]any `json:"payload" yaml:"payload"`
	RawConfidence float64        `json:"raw_confidence" yaml:"raw_confidence"`
}

// PayloadString returns the string value at key, or "" when absent or not a string.
func (s Signal) PayloadString(key string) string {
	if s.Payload == nil {
		return ""
	}
	if v, ok := s.Payload[key].(string); ok {
		return v
	}
	return ""
}

// Fingerprint digests the signal payload. Two deliveries with the same
// (source_type, source_id, signal_type) and fingerprint are one signal.
func (s Signal) Fingerprint() string {
	payload := s.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	// encoding/json sorts map keys, so equal payloads encode identically.
	b, err := json.Marshal(payload)
	if err != nil {
		b = []byte(fmt.Sprint(payload))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Receipt returns the receipt identifying this delivery, not yet attached
// to a suggestion.
func (s Signal) Receipt() SignalReceipt {
	return SignalReceipt{
		SourceType: s.SourceType,
		SourceID:   s.SourceID,
		SignalType: s.SignalType,
		SignalKey:  s.Fingerprint(),
		ReceivedAt: s.ExtractedAt,
	}
}

// SignalReceipt records that a signal was ingested. SuggestionID is empty
// until the suggestion it produced is known.
type SignalReceipt struct {
	SourceType   string    `json:"source_type"`
	SourceID     string    `json:"source_id"`
	SignalType   string    `json:"signal_type"`
	SignalKey    string    `json:"signal_key"`
	SuggestionID string    `json:"suggestion_id,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}
