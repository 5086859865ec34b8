package handler

import (
	"context"

	"github.com/sells-group/studio-suggest/internal/apperr"
	"github.com/sells-group/studio-suggest/internal/model"
	"github.com/sells-group/studio-suggest/internal/store"
)

type taskHandler struct {
	t *Targets
}

// NewTaskHandler returns the task_creation handler. The task title falls
// back to the suggestion title.
func NewTaskHandler(t *Targets) Handler {
	return planned{planner: taskHandler{t: t}, targets: t}
}

func (taskHandler) Type() model.SuggestionType { return model.TypeTaskCreation }

func (h taskHandler) resolve(f fields) map[string]bool {
	return map[string]bool{"title": f.title() != ""}
}

func (h taskHandler) plan(ctx context.Context, recs store.Records, f fields) (*plan, error) {
	tt := h.t.Tasks
	values := map[string]any{
		tt.TitleColumn:  f.title(),
		tt.StatusColumn: tt.InitialStatus,
	}
	if code := f.projectCode(); code != "" {
		ok, err := recs.Exists(ctx, h.t.Projects.TableRef, map[string]any{h.t.Projects.CodeColumn: code})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.NotFound("target", h.t.Projects.Name+"/"+code)
		}
		values[tt.ProjectColumn] = code
	}
	if due := f.str("due_date", "due"); due != "" {
		values[tt.DueColumn] = due
	}
	if who := f.str("assignee", "owner"); who != "" {
		values[tt.AssigneeColumn] = who
	}
	return &plan{action: model.ActionInsert, table: tt.TableRef, new: values}, nil
}
