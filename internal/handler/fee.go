package handler

import (
	"context"

	"github.com/sells-group/studio-suggest/internal/apperr"
	"github.com/sells-group/studio-suggest/internal/model"
	"github.com/sells-group/studio-suggest/internal/store"
)

type feeHandler struct {
	t *Targets
}

// NewFeeHandler returns the fee_change handler. It updates the fee column
// of one project.
func NewFeeHandler(t *Targets) Handler {
	return planned{planner: feeHandler{t: t}, targets: t}
}

func (feeHandler) Type() model.SuggestionType { return model.TypeFeeChange }

func (h feeHandler) resolve(f fields) map[string]bool {
	_, hasFee := f.fee()
	return map[string]bool{
		"new_fee":      hasFee,
		"project_code": f.projectCode() != "" || f.s.TargetID != nil,
	}
}

func (h feeHandler) plan(ctx context.Context, recs store.Records, f fields) (*plan, error) {
	fee, _ := f.fee()
	if fee < 0 {
		return nil, apperr.Invalid("new_fee must not be negative, got %v", fee)
	}
	id, err := resolveProject(ctx, recs, h.t, f)
	if err != nil {
		return nil, err
	}
	col := h.t.Projects.FeeColumn
	cur, err := recs.Get(ctx, h.t.Projects.TableRef, id, []string{col})
	if err != nil {
		return nil, err
	}
	newFee := model.NormalizeValue(fee)
	if cur[col] == newFee {
		return nil, apperr.Invalid("%s is already %v", col, fee)
	}
	return &plan{
		action:   model.ActionUpdate,
		table:    h.t.Projects.TableRef,
		recordID: id,
		old:      map[string]any{col: cur[col]},
		new:      map[string]any{col: newFee},
	}, nil
}
