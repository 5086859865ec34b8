package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/studio-suggest/internal/model"
	"github.com/sells-group/studio-suggest/internal/store"
)

// Tally is the per-item result of a batch operation. Items run in
// independent transactions, so one failure never aborts the rest.
type Tally struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// runBatch runs fn for every key with bounded concurrency.
func (e *Engine) runBatch(ctx context.Context, op string, keys []string, fn func(ctx context.Context, key string) error) *Tally {
	tally := &Tally{Total: len(keys), Errors: map[string]string{}}
	if len(keys) == 0 {
		return tally
	}

	zap.L().Info("processing batch",
		zap.String("op", op),
		zap.Int("items", len(keys)),
		zap.Int("concurrency", e.cfg.MaxConcurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrency)

	var succeeded, failed atomic.Int64
	var mu sync.Mutex

	for _, key := range keys {
		g.Go(func() error {
			if err := fn(gctx, key); err != nil {
				failed.Add(1)
				mu.Lock()
				tally.Errors[key] = err.Error()
				mu.Unlock()
				zap.L().Warn("batch item failed", zap.String("op", op), zap.String("key", key), zap.Error(err))
				return nil // don't abort batch on individual failure
			}
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	tally.Succeeded = int(succeeded.Load())
	tally.Failed = int(failed.Load())
	zap.L().Info("batch complete",
		zap.String("op", op),
		zap.Int("succeeded", tally.Succeeded),
		zap.Int("failed", tally.Failed),
	)
	return tally
}

// signalKey identifies a signal in a tally.
func signalKey(i int, sig model.Signal) string {
	return fmt.Sprintf("%d:%s/%s/%s", i, sig.SourceType, sig.SourceID, sig.SignalType)
}

// ProcessSignals generates suggestions for many signals.
func (e *Engine) ProcessSignals(ctx context.Context, sigs []model.Signal) *Tally {
	keys := make([]string, len(sigs))
	byKey := make(map[string]model.Signal, len(sigs))
	for i, sig := range sigs {
		keys[i] = signalKey(i, sig)
		byKey[keys[i]] = sig
	}
	return e.runBatch(ctx, "generate", keys, func(ctx context.Context, key string) error {
		_, err := e.Generate(ctx, byKey[key])
		return err
	})
}

// BulkDecide records the same decision on many suggestions.
func (e *Engine) BulkDecide(ctx context.Context, ids []string, d model.Decision) (*Tally, error) {
	if err := validateDecision(d); err != nil {
		return nil, err
	}
	return e.runBatch(ctx, "decide", dedupIDs(ids), func(ctx context.Context, id string) error {
		_, err := e.Decide(ctx, id, d)
		return err
	}), nil
}

// ApplyAllApproved applies up to limit approved suggestions.
func (e *Engine) ApplyAllApproved(ctx context.Context, limit int) (*Tally, error) {
	var approved []model.Suggestion
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		approved, err = tx.ListSuggestions(ctx, store.SuggestionFilter{Status: model.StatusApproved, Limit: limit})
		return err
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(approved))
	for i := range approved {
		ids[i] = approved[i].ID
	}
	return e.runBatch(ctx, "apply", ids, func(ctx context.Context, id string) error {
		_, err := e.Apply(ctx, id)
		return err
	}), nil
}

func dedupIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
