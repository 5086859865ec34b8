package handler

import (
	"context"
	"strings"

	"github.com/sells-group/studio-suggest/internal/apperr"
	"github.com/sells-group/studio-suggest/internal/model"
	"github.com/sells-group/studio-suggest/internal/store"
)

type contactHandler struct {
	t *Targets
}

// NewContactHandler returns the contact_creation handler. The email falls
// back to the first address found in the description or title.
func NewContactHandler(t *Targets) Handler {
	return planned{planner: contactHandler{t: t}, targets: t}
}

func (contactHandler) Type() model.SuggestionType { return model.TypeContactCreation }

func (h contactHandler) resolve(f fields) map[string]bool {
	return map[string]bool{"email": strings.Contains(f.email(), "@")}
}

func (h contactHandler) plan(ctx context.Context, recs store.Records, f fields) (*plan, error) {
	ct := h.t.Contacts
	email := f.email()
	dup, err := recs.Exists(ctx, ct.TableRef, map[string]any{ct.EmailColumn: email})
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, &apperr.ValidationError{Fields: []string{"email"}, Reason: "contact " + email + " already exists"}
	}

	name := f.str("name", "contact_name")
	if name == "" {
		name = email[:strings.Index(email, "@")]
	}
	values := map[string]any{
		ct.EmailColumn: email,
		ct.NameColumn:  name,
	}
	if company := f.str("company", "organization"); company != "" {
		values[ct.CompanyColumn] = company
	}
	if phone := f.str("phone"); phone != "" {
		values[ct.PhoneColumn] = phone
	}
	return &plan{action: model.ActionInsert, table: ct.TableRef, new: values}, nil
}
