package handler

import (
	"context"
	"fmt"
	"sort"

	"github.com/sells-group/studio-suggest/internal/apperr"
	"github.com/sells-group/studio-suggest/internal/model"
	"github.com/sells-group/studio-suggest/internal/store"
)

// plan is the single description of a change shared by Preview and Apply,
// so the preview a reviewer sees is exactly what gets recorded.
type plan struct {
	action   model.Action
	table    store.TableRef
	recordID string
	old      map[string]any
	new      map[string]any
}

func (p *plan) fields() []string {
	names := make([]string, 0, len(p.new))
	for k := range p.new {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (p *plan) preview() *model.Preview {
	pv := &model.Preview{
		Action:   p.action,
		Table:    p.table.Name,
		RecordID: p.recordID,
		Changes:  []model.FieldChange{},
	}
	for _, f := range p.fields() {
		pv.Changes = append(pv.Changes, model.FieldChange{
			Field:    f,
			OldValue: p.old[f],
			NewValue: p.new[f],
		})
	}
	return pv
}

// execute performs the plan through recs and returns the change records to
// store alongside it.
func (p *plan) execute(ctx context.Context, recs store.Records, s *model.Suggestion) (*Outcome, error) {
	out := &Outcome{Action: p.action, Table: p.table.Name}

	switch p.action {
	case model.ActionNone:
		out.TargetID = s.SourceID
		return out, nil

	case model.ActionInsert:
		id, err := recs.Insert(ctx, p.table, p.new)
		if err != nil {
			return nil, err
		}
		out.TargetID = id

	case model.ActionUpdate:
		n, err := recs.Update(ctx, p.table, p.recordID, p.new, p.old)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, apperr.NotFound("target", p.table.Name+"/"+p.recordID)
		}
		out.TargetID = p.recordID

	case model.ActionDelete:
		n, err := recs.Delete(ctx, p.table, p.recordID, p.old)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, apperr.NotFound("target", p.table.Name+"/"+p.recordID)
		}
		out.TargetID = p.recordID

	default:
		return nil, apperr.Invalid("unsupported action %q", p.action)
	}

	names := p.fields()
	if p.action == model.ActionDelete {
		names = sortedNames(p.old)
	}
	for _, f := range names {
		oldV, err := model.EncodeValue(p.old[f])
		if err != nil {
			return nil, apperr.Invalid("encode %s: %v", f, err)
		}
		var newV []byte
		if p.action != model.ActionDelete {
			if newV, err = model.EncodeValue(p.new[f]); err != nil {
				return nil, apperr.Invalid("encode %s: %v", f, err)
			}
		}
		if p.action == model.ActionInsert {
			oldV = nil
		}
		out.Changes = append(out.Changes, model.ChangeRecord{
			SuggestionID: s.ID,
			Action:       p.action,
			TableName:    p.table.Name,
			RecordID:     out.TargetID,
			FieldName:    f,
			OldValue:     oldV,
			NewValue:     newV,
		})
	}
	return out, nil
}

// reverse undoes change records, newest row first. Every write is guarded
// on the values apply left behind, so later edits are never overwritten.
func reverse(ctx context.Context, recs store.Records, targets *Targets, s *model.Suggestion, changes []model.ChangeRecord) error {
	type rowKey struct{ table, id string }
	var order []rowKey
	groups := make(map[rowKey][]model.ChangeRecord)
	for _, c := range changes {
		if c.ReversedAt != nil || c.Action == model.ActionNone {
			continue
		}
		k := rowKey{c.TableName, c.RecordID}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], c)
	}

	for i := len(order) - 1; i >= 0; i-- {
		k := order[i]
		group := groups[k]
		ref := targets.Ref(k.table)
		oldVals := make(map[string]any, len(group))
		newVals := make(map[string]any, len(group))
		for _, c := range group {
			oldVals[c.FieldName] = c.Old()
			newVals[c.FieldName] = c.New()
		}

		switch group[0].Action {
		case model.ActionUpdate:
			n, err := recs.Update(ctx, ref, k.id, oldVals, newVals)
			if err != nil {
				return err
			}
			if n == 0 {
				return modifiedAfterApply(s, k.table, k.id)
			}
		case model.ActionInsert:
			n, err := recs.Delete(ctx, ref, k.id, newVals)
			if err != nil {
				return err
			}
			if n == 0 {
				return modifiedAfterApply(s, k.table, k.id)
			}
		case model.ActionDelete:
			row := make(map[string]any, len(oldVals)+1)
			for f, v := range oldVals {
				row[f] = v
			}
			row[ref.Key()] = k.id
			if _, err := recs.Insert(ctx, ref, row); err != nil {
				return err
			}
		default:
			return apperr.Invalid("cannot reverse action %q", group[0].Action)
		}
	}
	return nil
}

func modifiedAfterApply(s *model.Suggestion, table, id string) error {
	return &apperr.ConflictError{
		ID:     s.ID,
		Op:     "rollback",
		Status: string(s.Status),
		Reason: fmt.Sprintf("%s/%s was modified or removed after apply", table, id),
	}
}

func sortedNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// planner is the per-type part of a handler: which fields it needs and how
// it turns a suggestion into a plan.
type planner interface {
	Type() model.SuggestionType
	resolve(f fields) map[string]bool
	plan(ctx context.Context, recs store.Records, f fields) (*plan, error)
}

// planned adapts a planner to Handler. Validate, Preview and Apply share
// the same field resolution and plan.
type planned struct {
	planner
	targets *Targets
}

func (h planned) Validate(s *model.Suggestion) error {
	if m := missingFields(h.resolve(newFields(s))); len(m) > 0 {
		return apperr.MissingData(m...)
	}
	return nil
}

func (h planned) build(ctx context.Context, recs store.Records, s *model.Suggestion) (*plan, error) {
	if err := h.Validate(s); err != nil {
		return nil, err
	}
	return h.plan(ctx, recs, newFields(s))
}

func (h planned) Preview(ctx context.Context, recs store.Records, s *model.Suggestion) (*model.Preview, error) {
	p, err := h.build(ctx, recs, s)
	if err != nil {
		return nil, err
	}
	return p.preview(), nil
}

func (h planned) Apply(ctx context.Context, recs store.Records, s *model.Suggestion) (*Outcome, error) {
	p, err := h.build(ctx, recs, s)
	if err != nil {
		return nil, err
	}
	return p.execute(ctx, recs, s)
}

func (h planned) Rollback(ctx context.Context, recs store.Records, s *model.Suggestion, changes []model.ChangeRecord) error {
	return reverse(ctx, recs, h.targets, s, changes)
}

// resolveProject returns the id of the project a suggestion points at,
// preferring a known target id over the project code.
func resolveProject(ctx context.Context, recs store.Records, t *Targets, f fields) (string, error) {
	if f.s.TargetID != nil && *f.s.TargetID != "" {
		return *f.s.TargetID, nil
	}
	return recs.Lookup(ctx, t.Projects.TableRef, t.Projects.CodeColumn, f.projectCode())
}
