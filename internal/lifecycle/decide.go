package lifecycle

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/studio-suggest/internal/apperr"
	"github.com/sells-group/studio-suggest/internal/model"
	"github.com/sells-group/studio-suggest/internal/store"
)

func validateDecision(d model.Decision) error {
	switch d.Verdict {
	case model.VerdictApprove, model.VerdictReject:
	case "":
		return apperr.MissingData("decision")
	default:
		return apperr.Invalid("decision must be approve or reject, got %q", d.Verdict)
	}
	if strings.TrimSpace(d.Reviewer) == "" {
		return apperr.MissingData("reviewer")
	}
	if d.Correction != nil {
		if d.Verdict != model.VerdictReject {
			return apperr.Invalid("a correction can only accompany a rejection")
		}
		if strings.TrimSpace(d.Correction.TargetCode) == "" {
			return apperr.MissingData("correction.target_code")
		}
	}
	return nil
}

// Decide records a human approve/reject on a pending or apply_failed
// suggestion. Approval validates the suggestion through its handler first.
// Decisions only touch suggestions and patterns, never business records.
func (e *Engine) Decide(ctx context.Context, id string, d model.Decision) (s *model.Suggestion, err error) {
	start := time.Now()
	defer func() { e.observe("decide", start, err) }()

	if err := validateDecision(d); err != nil {
		return nil, err
	}
	return retry(ctx, e, "decide", id, func(ctx context.Context) (*model.Suggestion, error) {
		var out *model.Suggestion
		err := e.store.InTx(ctx, func(tx store.Tx) error {
			var err error
			out, err = e.decide(ctx, tx, id, d)
			return err
		})
		return out, err
	})
}

func (e *Engine) decide(ctx context.Context, tx store.Tx, id string, d model.Decision) (*model.Suggestion, error) {
	s, err := tx.GetSuggestion(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if !s.Status.Decidable() {
		return nil, apperr.IllegalTransition(id, string(d.Verdict), string(s.Status))
	}
	h, err := e.handlers.Get(s.Type)
	if err != nil {
		return nil, err
	}

	t := store.Transition{
		ID:         id,
		From:       s.Status,
		At:         e.now(),
		ReviewedBy: &d.Reviewer,
		ClearError: true,
	}
	if d.Notes != "" {
		t.ReviewNotes = &d.Notes
	}

	switch d.Verdict {
	case model.VerdictApprove:
		if err := h.Validate(s); err != nil {
			return nil, err
		}
		t.To = model.StatusApproved
		if err := tx.TransitionStatus(ctx, t); err != nil {
			return nil, err
		}
		if err := e.learnApprove(ctx, tx, s); err != nil {
			return nil, err
		}

	case model.VerdictReject:
		if c := d.Correction; c != nil {
			shape := shapeOfSuggestion(s)
			if sameTarget(c.TargetCode, suggestionTarget(s, shape)) && (c.TargetType == "" || c.TargetType == shape.TargetType) {
				return nil, apperr.Invalid("correction %q matches the original target", c.TargetCode)
			}
		}
		t.To = model.StatusRejected
		if err := tx.TransitionStatus(ctx, t); err != nil {
			return nil, err
		}
		if err := e.learnReject(ctx, tx, s, d.Correction); err != nil {
			return nil, err
		}
	}

	out, err := tx.GetSuggestion(ctx, id, false)
	if err != nil {
		return nil, err
	}
	logger("decide", id).Info("suggestion decided",
		zap.String("decision", string(d.Verdict)),
		zap.String("reviewer", d.Reviewer),
		zap.String("status", string(out.Status)),
		zap.Bool("corrected", d.Correction != nil),
	)
	return out, nil
}
