package lifecycle

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/studio-suggest/internal/apperr"
	"github.com/sells-group/studio-suggest/internal/model"
	"github.com/sells-group/studio-suggest/internal/store"
)

// ApplyResult is the outcome of a successful Apply.
type ApplyResult struct {
	Suggestion *model.Suggestion    `json:"suggestion"`
	Action     model.Action         `json:"action"`
	TargetID   string               `json:"target_id"`
	Changes    []model.ChangeRecord `json:"changes"`
}

// handlerFailure marks an error raised by a handler, as opposed to the
// engine's own precondition checks. Only handler failures move a suggestion
// into a *_failed state.
type handlerFailure struct {
	err error
}

func (f *handlerFailure) Error() string { return f.err.Error() }
func (f *handlerFailure) Unwrap() error { return f.err }

// Apply performs an approved suggestion through its handler. The business
// mutation, change records, status change and pattern credit commit
// together. When the handler fails the suggestion moves to apply_failed
// with the handler's reason, and that error is returned unchanged.
func (e *Engine) Apply(ctx context.Context, id string) (res *ApplyResult, err error) {
	start := time.Now()
	defer func() { e.observe("apply", start, err) }()

	res, err = retry(ctx, e, "apply", id, func(ctx context.Context) (*ApplyResult, error) {
		var out *ApplyResult
		err := e.store.InTx(ctx, func(tx store.Tx) error {
			var err error
			out, err = e.apply(ctx, tx, id)
			return err
		})
		return out, err
	})

	var hf *handlerFailure
	if errors.As(err, &hf) {
		e.recordFailure(ctx, "apply", id, model.StatusApproved, model.StatusApplyFailed, hf.err)
		return nil, hf.err
	}
	return res, err
}

func (e *Engine) apply(ctx context.Context, tx store.Tx, id string) (*ApplyResult, error) {
	s, err := tx.GetSuggestion(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if s.Status != model.StatusApproved {
		return nil, apperr.IllegalTransition(id, "apply", string(s.Status))
	}
	h, err := e.handlers.Get(s.Type)
	if err != nil {
		return nil, err
	}

	out, err := h.Apply(ctx, tx.Records(), s)
	if err != nil {
		return nil, &handlerFailure{err: err}
	}
	if out.TargetID == "" {
		return nil, &handlerFailure{err: apperr.Invalid("handler for %s returned no target id", s.Type)}
	}

	if len(out.Changes) > 0 {
		if err := tx.InsertChangeRecords(ctx, out.Changes); err != nil {
			return nil, err
		}
	}
	if err := tx.TransitionStatus(ctx, store.Transition{
		ID:         id,
		From:       model.StatusApproved,
		To:         model.StatusApplied,
		At:         e.now(),
		TargetID:   &out.TargetID,
		ClearError: true,
	}); err != nil {
		return nil, err
	}
	if err := e.learnApplied(ctx, tx, s); err != nil {
		return nil, err
	}

	got, err := tx.GetSuggestion(ctx, id, false)
	if err != nil {
		return nil, err
	}
	logger("apply", id).Info("suggestion applied",
		zap.String("type", string(s.Type)),
		zap.String("action", string(out.Action)),
		zap.String("table", out.Table),
		zap.String("target_id", out.TargetID),
		zap.Int("changes", len(out.Changes)),
	)
	return &ApplyResult{Suggestion: got, Action: out.Action, TargetID: out.TargetID, Changes: out.Changes}, nil
}

// Rollback reverses an applied suggestion from its change records. A row
// modified after apply is never overwritten: the rollback fails with a
// ConflictError and the suggestion moves to rollback_failed.
func (e *Engine) Rollback(ctx context.Context, id string) (s *model.Suggestion, err error) {
	start := time.Now()
	defer func() { e.observe("rollback", start, err) }()

	s, err = retry(ctx, e, "rollback", id, func(ctx context.Context) (*model.Suggestion, error) {
		var out *model.Suggestion
		err := e.store.InTx(ctx, func(tx store.Tx) error {
			var err error
			out, err = e.rollback(ctx, tx, id)
			return err
		})
		return out, err
	})

	var hf *handlerFailure
	if errors.As(err, &hf) {
		e.recordFailure(ctx, "rollback", id, model.StatusApplied, model.StatusRollbackFailed, hf.err)
		return nil, hf.err
	}
	return s, err
}

func (e *Engine) rollback(ctx context.Context, tx store.Tx, id string) (*model.Suggestion, error) {
	s, err := tx.GetSuggestion(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if s.Status != model.StatusApplied {
		return nil, apperr.IllegalTransition(id, "rollback", string(s.Status))
	}
	h, err := e.handlers.Get(s.Type)
	if err != nil {
		return nil, err
	}

	changes, err := tx.ListChangeRecords(ctx, store.ChangeFilter{SuggestionID: id})
	if err != nil {
		return nil, err
	}
	if err := h.Rollback(ctx, tx.Records(), s, changes); err != nil {
		return nil, &handlerFailure{err: err}
	}

	now := e.now()
	n, err := tx.MarkReversed(ctx, id, now)
	if err != nil {
		return nil, err
	}
	if err := tx.TransitionStatus(ctx, store.Transition{
		ID:         id,
		From:       model.StatusApplied,
		To:         model.StatusRolledBack,
		At:         now,
		ClearError: true,
	}); err != nil {
		return nil, err
	}

	got, err := tx.GetSuggestion(ctx, id, false)
	if err != nil {
		return nil, err
	}
	logger("rollback", id).Info("suggestion rolled back",
		zap.String("type", string(s.Type)),
		zap.Int64("changes_reversed", n),
	)
	return got, nil
}

// recordFailure moves a suggestion into a failed state in its own
// transaction, after the failed operation's transaction rolled back.
func (e *Engine) recordFailure(ctx context.Context, op, id string, from, to model.SuggestionStatus, cause error) {
	reason := cause.Error()
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		return tx.TransitionStatus(ctx, store.Transition{
			ID:        id,
			From:      from,
			To:        to,
			At:        e.now(),
			LastError: &reason,
		})
	})
	log := logger(op, id)
	if err != nil {
		log.Error("record failure state", zap.String("status", string(to)), zap.Error(err), zap.NamedError("cause", cause))
		return
	}
	log.Warn("suggestion "+op+" failed",
		zap.String("status", string(to)),
		zap.String("kind", apperr.Kind(cause)),
		zap.Error(cause),
	)
}
