package handler

import (
	"context"

	"github.com/sells-group/studio-suggest/internal/apperr"
	"github.com/sells-group/studio-suggest/internal/model"
	"github.com/sells-group/studio-suggest/internal/store"
)

type statusHandler struct {
	t *Targets
}

// NewStatusHandler returns the status_change handler. It updates the status
// column of one project to a value from the allowed set.
func NewStatusHandler(t *Targets) Handler {
	return planned{planner: statusHandler{t: t}, targets: t}
}

func (statusHandler) Type() model.SuggestionType { return model.TypeStatusChange }

func (h statusHandler) resolve(f fields) map[string]bool {
	return map[string]bool{
		"new_status":   f.str("new_status", "status") != "",
		"project_code": f.projectCode() != "" || f.s.TargetID != nil,
	}
}

func (h statusHandler) plan(ctx context.Context, recs store.Records, f fields) (*plan, error) {
	status := f.str("new_status", "status")
	if !h.t.StatusAllowed(status) {
		return nil, &apperr.ValidationError{
			Fields: []string{"new_status"},
			Reason: "status " + status + " is not allowed",
		}
	}
	id, err := resolveProject(ctx, recs, h.t, f)
	if err != nil {
		return nil, err
	}
	col := h.t.Projects.StatusColumn
	cur, err := recs.Get(ctx, h.t.Projects.TableRef, id, []string{col})
	if err != nil {
		return nil, err
	}
	if cur[col] == status {
		return nil, apperr.Invalid("%s is already %s", col, status)
	}
	return &plan{
		action:   model.ActionUpdate,
		table:    h.t.Projects.TableRef,
		recordID: id,
		old:      map[string]any{col: cur[col]},
		new:      map[string]any{col: status},
	}, nil
}
