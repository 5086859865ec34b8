package lifecycle

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/studio-suggest/internal/model"
	"github.com/sells-group/studio-suggest/internal/resilience"
	"github.com/sells-group/studio-suggest/internal/store"
)

// GenerateResult is the outcome of Generate.
type GenerateResult struct {
	Suggestion *model.Suggestion `json:"suggestion"`
	// Created is true when a new suggestion row was inserted.
	Created bool `json:"created"`
	// Duplicate is true when the same signal (source, signal type and
	// payload) had already been received; the suggestion is returned
	// unchanged.
	Duplicate bool `json:"duplicate"`
	// Pattern is the active pattern consulted for confidence, if any.
	Pattern *model.Pattern `json:"pattern,omitempty"`
}

// Generate turns a signal into a suggestion, or reinforces the existing
// suggestion with the same dedup key. Redelivery of a signal already
// received is a no-op: the receipt is claimed first, so concurrent
// deliveries of one signal merge at most once.
func (e *Engine) Generate(ctx context.Context, sig model.Signal) (res *GenerateResult, err error) {
	start := time.Now()
	defer func() { e.observe("generate", start, err) }()

	if err := validateSignal(sig); err != nil {
		return nil, err
	}
	return retry(ctx, e, "generate", sig.SourceID, func(ctx context.Context) (*GenerateResult, error) {
		var out *GenerateResult
		err := e.store.InTx(ctx, func(tx store.Tx) error {
			var err error
			out, err = e.generate(ctx, tx, sig)
			return err
		})
		return out, err
	})
}

func (e *Engine) generate(ctx context.Context, tx store.Tx, sig model.Signal) (*GenerateResult, error) {
	rcpt := sig.Receipt()
	if rcpt.ReceivedAt.IsZero() {
		rcpt.ReceivedAt = e.now()
	}
	claimed, err := tx.ClaimReceipt(ctx, rcpt)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return e.redelivered(ctx, tx, rcpt)
	}

	d, err := e.interpret(sig)
	if err != nil {
		return nil, err
	}
	if _, err := e.handlers.Get(d.s.Type); err != nil {
		return nil, err
	}

	matched, agrees, err := e.matchPattern(ctx, tx, d)
	if err != nil {
		return nil, err
	}
	if matched != nil {
		d.s.PatternID = &matched.ID
		if d.target == "" && agrees {
			d.target = matched.TargetCode
		}
	}
	if err := e.finish(d, e.scorer.Blend(sig.RawConfidence, matched, agrees)); err != nil {
		return nil, err
	}

	got, created, err := tx.UpsertSuggestion(ctx, d.s)
	if err != nil {
		return nil, err
	}

	if err := tx.AttachReceipt(ctx, rcpt, got.ID); err != nil {
		return nil, err
	}

	if matched != nil {
		if matched, err = e.addEvidence(ctx, tx, store.PatternDelta{
			Shape:      d.shape,
			TargetCode: matched.TargetCode,
			TimesUsed:  1,
		}); err != nil {
			return nil, err
		}
	}

	logger("generate", got.ID).Debug("suggestion generated",
		zap.String("type", string(got.Type)),
		zap.Bool("created", created),
		zap.Float64("confidence", got.ConfidenceScore),
		zap.Int("signal_count", got.SignalCount),
	)
	return &GenerateResult{Suggestion: got, Created: created, Pattern: matched}, nil
}

// redelivered returns the suggestion an already claimed signal produced.
func (e *Engine) redelivered(ctx context.Context, tx store.Tx, rcpt model.SignalReceipt) (*GenerateResult, error) {
	prev, err := tx.GetReceipt(ctx, rcpt)
	if err != nil {
		return nil, err
	}
	if prev == nil || prev.SuggestionID == "" {
		// The claiming transaction has not committed yet.
		return nil, resilience.NewTransientError(
			eris.Errorf("lifecycle: signal %s/%s/%s still in flight", rcpt.SourceType, rcpt.SourceID, rcpt.SignalType), "")
	}
	s, err := tx.GetSuggestion(ctx, prev.SuggestionID, false)
	if err != nil {
		return nil, err
	}
	return &GenerateResult{Suggestion: s, Duplicate: true}, nil
}

// matchPattern finds the active pattern for the draft's shape. A pattern
// naming the signal's own target agrees with it; otherwise the strongest
// pattern is returned, agreeing only when the signal had no target.
func (e *Engine) matchPattern(ctx context.Context, tx store.Tx, d *draft) (*model.Pattern, bool, error) {
	if d.shape.Empty() {
		return nil, false, nil
	}
	pats, err := tx.FindActivePatterns(ctx, d.shape.PatternType, d.shape.PatternKey)
	if err != nil {
		return nil, false, err
	}

	var best *model.Pattern
	for i := range pats {
		p := &pats[i]
		if p.TargetType != d.shape.TargetType {
			continue
		}
		if d.target != "" && sameTarget(p.TargetCode, d.target) {
			return p, true, nil
		}
		if best == nil || p.Confidence > best.Confidence ||
			(p.Confidence == best.Confidence && p.TimesUsed > best.TimesUsed) {
			best = p
		}
	}
	if best == nil {
		return nil, false, nil
	}
	return best, d.target == "", nil
}
