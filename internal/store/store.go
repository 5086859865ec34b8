package store

import (
	"context"
	"time"

	"github.com/sells-group/studio-suggest/internal/model"
)

// SuggestionFilter specifies criteria for listing suggestions.
type SuggestionFilter struct {
	Status        model.SuggestionStatus `json:"status,omitempty"`
	Type          model.SuggestionType   `json:"type,omitempty"`
	SourceType    string                 `json:"source_type,omitempty"`
	SourceID      string                 `json:"source_id,omitempty"`
	EntityCode    string                 `json:"related_entity_code,omitempty"`
	MinConfidence float64                `json:"min_confidence,omitempty"`
	Limit         int                    `json:"limit,omitempty"`
	Offset        int                    `json:"offset,omitempty"`
}

// PatternFilter specifies criteria for listing patterns.
type PatternFilter struct {
	PatternType string `json:"pattern_type,omitempty"`
	PatternKey  string `json:"pattern_key,omitempty"`
	ActiveOnly  bool   `json:"active_only,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// ChangeFilter specifies criteria for listing change records.
type ChangeFilter struct {
	SuggestionID string    `json:"suggestion_id,omitempty"`
	TableName    string    `json:"table_name,omitempty"`
	Since        time.Time `json:"since,omitempty"`
	Limit        int       `json:"limit,omitempty"`
}

// Transition is a compare-and-set on a suggestion's status. Optional fields
// are written only when non-nil.
type Transition struct {
	ID          string
	From        model.SuggestionStatus
	To          model.SuggestionStatus
	At          time.Time
	ReviewedBy  *string
	ReviewNotes *string
	TargetID    *string
	LastError   *string
	ClearError  bool
}

// PatternDelta adds to a pattern's counters, creating the pattern when it
// does not exist yet.
type PatternDelta struct {
	Shape         model.PatternShape
	TargetCode    string
	TimesUsed     int
	TimesCorrect  int
	TimesRejected int
	// InitialConfidence is used only when the pattern is created.
	InitialConfidence float64
	Notes             string
}

// TableRef names a business table and its primary-key column.
type TableRef struct {
	Name     string `yaml:"table" json:"table"`
	IDColumn string `yaml:"id_column" json:"id_column"`
}

// Key returns the primary-key column, defaulting to "id".
func (t TableRef) Key() string {
	if t.IDColumn == "" {
		return "id"
	}
	return t.IDColumn
}

// Records gives handlers field-level access to business rows. Every write
// reports rows affected so callers can reject no-op updates.
type Records interface {
	// Lookup returns the id of the row whose column equals value.
	Lookup(ctx context.Context, table TableRef, column string, value any) (string, error)
	// Exists reports whether any row matches every column = value in match.
	Exists(ctx context.Context, table TableRef, match map[string]any) (bool, error)
	// Get returns the named fields of one row.
	Get(ctx context.Context, table TableRef, id string, fields []string) (map[string]any, error)
	// Insert writes a new row and returns its id. An id in values is used as-is.
	Insert(ctx context.Context, table TableRef, values map[string]any) (string, error)
	// Update sets fields on one row, only if every expect field still holds
	// its expected value.
	Update(ctx context.Context, table TableRef, id string, set, expect map[string]any) (int64, error)
	// Delete removes one row, only if every expect field still holds its
	// expected value.
	Delete(ctx context.Context, table TableRef, id string, expect map[string]any) (int64, error)
}

// Tx is the set of operations available inside one engine transaction.
type Tx interface {
	// Suggestions
	UpsertSuggestion(ctx context.Context, s *model.Suggestion) (*model.Suggestion, bool, error)
	GetSuggestion(ctx context.Context, id string, lock bool) (*model.Suggestion, error)
	FindSuggestion(ctx context.Context, key model.DedupKey) (*model.Suggestion, error)
	ListSuggestions(ctx context.Context, filter SuggestionFilter) ([]model.Suggestion, error)
	TransitionStatus(ctx context.Context, t Transition) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
	Stats(ctx context.Context) (*model.Stats, error)

	// Patterns
	FindActivePatterns(ctx context.Context, patternType, patternKey string) ([]model.Pattern, error)
	GetPattern(ctx context.Context, shape model.PatternShape, targetCode string) (*model.Pattern, error)
	AddPatternEvidence(ctx context.Context, d PatternDelta) (*model.Pattern, error)
	UpdatePatternScore(ctx context.Context, id string, confidence float64, active bool) error
	ListPatterns(ctx context.Context, filter PatternFilter) ([]model.Pattern, error)

	// Change records
	InsertChangeRecords(ctx context.Context, recs []model.ChangeRecord) error
	ListChangeRecords(ctx context.Context, filter ChangeFilter) ([]model.ChangeRecord, error)
	MarkReversed(ctx context.Context, suggestionID string, at time.Time) (int64, error)

	// Signal receipts
	ClaimReceipt(ctx context.Context, r model.SignalReceipt) (bool, error)
	AttachReceipt(ctx context.Context, r model.SignalReceipt, suggestionID string) error
	GetReceipt(ctx context.Context, r model.SignalReceipt) (*model.SignalReceipt, error)

	// Business records
	Records() Records
}

// Store defines the persistence interface for the suggestion engine. All
// state is authoritative in the database; the store holds no caches.
type Store interface {
	// InTx runs fn in one transaction, committing on nil error.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn against the database outside a transaction.
	View(ctx context.Context, fn func(tx Tx) error) error

	Migrate(ctx context.Context) error
	Close() error
}
