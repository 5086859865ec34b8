package handler

import (
	"context"

	"github.com/sells-group/studio-suggest/internal/apperr"
	"github.com/sells-group/studio-suggest/internal/model"
	"github.com/sells-group/studio-suggest/internal/store"
)

type linkHandler struct {
	t *Targets
}

// NewLinkHandler returns the link_creation handler. It links the source
// email to a project.
func NewLinkHandler(t *Targets) Handler {
	return planned{planner: linkHandler{t: t}, targets: t}
}

func (linkHandler) Type() model.SuggestionType { return model.TypeLinkCreation }

func emailID(f fields) string {
	if v := f.str("email_id"); v != "" {
		return v
	}
	if f.s.SourceType == "email" {
		return f.s.SourceID
	}
	return ""
}

func (h linkHandler) resolve(f fields) map[string]bool {
	return map[string]bool{
		"email_id":     emailID(f) != "",
		"project_code": f.projectCode() != "",
	}
}

func (h linkHandler) plan(ctx context.Context, recs store.Records, f fields) (*plan, error) {
	lt := h.t.Links
	code := f.projectCode()
	ok, err := recs.Exists(ctx, h.t.Projects.TableRef, map[string]any{h.t.Projects.CodeColumn: code})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("target", h.t.Projects.Name+"/"+code)
	}

	eid := emailID(f)
	linked, err := recs.Exists(ctx, lt.TableRef, map[string]any{lt.EmailColumn: eid, lt.ProjectColumn: code})
	if err != nil {
		return nil, err
	}
	if linked {
		return nil, &apperr.ValidationError{Fields: []string{"email_id"}, Reason: "email " + eid + " is already linked to " + code}
	}

	return &plan{
		action: model.ActionInsert,
		table:  lt.TableRef,
		new:    map[string]any{lt.EmailColumn: eid, lt.ProjectColumn: code},
	}, nil
}
