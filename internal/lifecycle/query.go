package lifecycle

import (
	"context"

	"github.com/sells-group/studio-suggest/internal/apperr"
	"github.com/sells-group/studio-suggest/internal/model"
	"github.com/sells-group/studio-suggest/internal/store"
)

// List returns suggestions matching filter.
func (e *Engine) List(ctx context.Context, filter store.SuggestionFilter) ([]model.Suggestion, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperr.Invalid("unknown status %q", filter.Status)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, apperr.Invalid("unknown suggestion type %q", filter.Type)
	}
	var out []model.Suggestion
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListSuggestions(ctx, filter)
		return err
	})
	return out, err
}

// Get returns one suggestion.
func (e *Engine) Get(ctx context.Context, id string) (*model.Suggestion, error) {
	var out *model.Suggestion
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.GetSuggestion(ctx, id, false)
		return err
	})
	return out, err
}

// Preview computes what applying the suggestion would change, without
// writing anything. Only suggestions that can still be applied have a
// preview.
func (e *Engine) Preview(ctx context.Context, id string) (*model.Preview, error) {
	var out *model.Preview
	err := e.store.View(ctx, func(tx store.Tx) error {
		s, err := tx.GetSuggestion(ctx, id, false)
		if err != nil {
			return err
		}
		if s.Status != model.StatusApproved && !s.Status.Decidable() {
			return apperr.IllegalTransition(id, "preview", string(s.Status))
		}
		h, err := e.handlers.Get(s.Type)
		if err != nil {
			return err
		}
		out, err = h.Preview(ctx, tx.Records(), s)
		return err
	})
	return out, err
}

// Changes returns the change records written when the suggestion was
// applied, reversed or not.
func (e *Engine) Changes(ctx context.Context, id string) ([]model.ChangeRecord, error) {
	var out []model.ChangeRecord
	err := e.store.View(ctx, func(tx store.Tx) error {
		if _, err := tx.GetSuggestion(ctx, id, false); err != nil {
			return err
		}
		var err error
		out, err = tx.ListChangeRecords(ctx, store.ChangeFilter{SuggestionID: id})
		return err
	})
	return out, err
}

// ChangeLog returns change records across suggestions.
func (e *Engine) ChangeLog(ctx context.Context, filter store.ChangeFilter) ([]model.ChangeRecord, error) {
	var out []model.ChangeRecord
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListChangeRecords(ctx, filter)
		return err
	})
	return out, err
}

// Stats counts suggestions by status and type.
func (e *Engine) Stats(ctx context.Context) (*model.Stats, error) {
	var out *model.Stats
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.Stats(ctx)
		return err
	})
	return out, err
}

// Patterns lists learned patterns.
func (e *Engine) Patterns(ctx context.Context, filter store.PatternFilter) ([]model.Pattern, error) {
	var out []model.Pattern
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListPatterns(ctx, filter)
		return err
	})
	return out, err
}
