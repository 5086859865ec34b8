package handler

import (
	"context"

	"github.com/sells-group/studio-suggest/internal/model"
	"github.com/sells-group/studio-suggest/internal/store"
)

type informationalHandler struct{}

// NewInformationalHandler returns the handler for FYI suggestions. Applying
// one acknowledges it and changes no business record.
func NewInformationalHandler(t *Targets) Handler {
	return planned{planner: informationalHandler{}, targets: t}
}

func (informationalHandler) Type() model.SuggestionType { return model.TypeInformational }

func (informationalHandler) resolve(fields) map[string]bool { return nil }

func (informationalHandler) plan(_ context.Context, _ store.Records, f fields) (*plan, error) {
	return &plan{action: model.ActionNone, table: store.TableRef{Name: f.s.TargetTable}}, nil
}
