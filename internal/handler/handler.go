// Package handler implements the per-type logic that validates, previews,
// applies and reverses a suggestion against business records.
package handler

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/studio-suggest/internal/apperr"
	"github.com/sells-group/studio-suggest/internal/model"
	"github.com/sells-group/studio-suggest/internal/store"
)

// Handler is the capability set every suggestion type implements. Apply and
// Rollback run inside the caller's transaction through recs.
type Handler interface {
	Type() model.SuggestionType
	// Validate checks that every field Apply needs can be resolved.
	Validate(s *model.Suggestion) error
	// Preview computes the change Apply would make without writing anything.
	Preview(ctx context.Context, recs store.Records, s *model.Suggestion) (*model.Preview, error)
	// Apply performs the change. Zero rows affected is a NotFoundError.
	Apply(ctx context.Context, recs store.Records, s *model.Suggestion) (*Outcome, error)
	// Rollback reverses changes, failing with a ConflictError when a row
	// was modified after apply.
	Rollback(ctx context.Context, recs store.Records, s *model.Suggestion, changes []model.ChangeRecord) error
}

// Outcome is the result of a successful Apply.
type Outcome struct {
	Action   model.Action
	Table    string
	TargetID string
	Changes  []model.ChangeRecord
}

// Registry maps suggestion types to handlers. Lookups never fall back to a
// default handler.
type Registry struct {
	handlers map[model.SuggestionType]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[model.SuggestionType]Handler)}
}

// Register binds h to t. Unknown types, nil handlers, mismatched types and
// duplicates are rejected.
func (r *Registry) Register(t model.SuggestionType, h Handler) error {
	if !t.Valid() {
		return eris.Errorf("handler: unknown suggestion type %q", t)
	}
	if h == nil {
		return eris.Errorf("handler: nil handler for %s", t)
	}
	if h.Type() != t {
		return eris.Errorf("handler: %T handles %s, not %s", h, h.Type(), t)
	}
	if _, ok := r.handlers[t]; ok {
		return eris.Errorf("handler: %s already registered", t)
	}
	r.handlers[t] = h
	return nil
}

// Get returns the handler for t or a NotFoundError.
func (r *Registry) Get(t model.SuggestionType) (Handler, error) {
	h, ok := r.handlers[t]
	if !ok {
		return nil, apperr.NotFound("handler", string(t))
	}
	return h, nil
}

// Verify fails unless every known suggestion type has a handler.
func (r *Registry) Verify() error {
	var missing []string
	for _, t := range model.AllSuggestionTypes {
		if _, ok := r.handlers[t]; !ok {
			missing = append(missing, string(t))
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("handler: no handler registered for %v", missing)
	}
	return nil
}

// Types lists the registered types in sorted order.
func (r *Registry) Types() []model.SuggestionType {
	out := make([]model.SuggestionType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NewDefaultRegistry registers the built-in handler for every suggestion
// type over targets and verifies the registry is exhaustive.
func NewDefaultRegistry(targets *Targets) (*Registry, error) {
	if targets == nil {
		targets = DefaultTargets()
	}
	r := NewRegistry()
	for _, h := range []Handler{
		NewTaskHandler(targets),
		NewContactHandler(targets),
		NewFeeHandler(targets),
		NewStatusHandler(targets),
		NewLinkHandler(targets),
		NewInformationalHandler(targets),
	} {
		if err := r.Register(h.Type(), h); err != nil {
			return nil, err
		}
	}
	if err := r.Verify(); err != nil {
		return nil, err
	}
	return r, nil
}
