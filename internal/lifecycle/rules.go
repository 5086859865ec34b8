package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/studio-suggest/internal/apperr"
	"github.com/sells-group/studio-suggest/internal/model"
	"github.com/sells-group/studio-suggest/internal/store"
)

// expiredBy is the reviewer recorded on suggestions rejected by expiry.
const expiredBy = "system"

// GenerateRules is the batch promotion job. Inactive patterns with at
// least minEvidence uses and a rejection rate under the policy threshold
// are activated; active patterns at or over it are retired. It returns the
// patterns whose activation changed. A non-positive minEvidence uses the
// policy default.
func (e *Engine) GenerateRules(ctx context.Context, minEvidence int) (changed []model.Pattern, err error) {
	start := time.Now()
	defer func() { e.observe("generate_rules", start, err) }()

	if minEvidence <= 0 {
		minEvidence = e.policy.MinEvidence
	}
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		pats, err := tx.ListPatterns(ctx, store.PatternFilter{})
		if err != nil {
			return err
		}
		for i := range pats {
			p := &pats[i]
			var active bool
			switch {
			case e.policy.ShouldActivate(p, minEvidence):
				active = true
			case e.policy.ShouldRetire(p):
				active = false
			default:
				continue
			}
			conf := e.scorer.PatternConfidence(p)
			if err := tx.UpdatePatternScore(ctx, p.ID, conf, active); err != nil {
				return err
			}
			p.Confidence = conf
			p.IsActive = active
			changed = append(changed, *p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("rules generated",
		zap.Int("min_evidence", minEvidence),
		zap.Int("changed", len(changed)),
	)
	return changed, nil
}

// ExpireStale rejects pending suggestions whose expiry has passed. Each
// suggestion is its own transaction; one decided concurrently is skipped.
// Expiry is not a human judgement, so patterns are left untouched.
func (e *Engine) ExpireStale(ctx context.Context) (*Tally, error) {
	start := time.Now()
	now := e.now()

	var ids []string
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		ids, err = tx.ListExpired(ctx, now, 0)
		return err
	})
	if err != nil {
		e.observe("expire", start, err)
		return nil, err
	}

	tally := e.runBatch(ctx, "expire", ids, func(ctx context.Context, id string) error {
		return e.store.InTx(ctx, func(tx store.Tx) error {
			reviewer, notes := expiredBy, "expired"
			err := tx.TransitionStatus(ctx, store.Transition{
				ID:          id,
				From:        model.StatusPending,
				To:          model.StatusRejected,
				At:          now,
				ReviewedBy:  &reviewer,
				ReviewNotes: &notes,
			})
			if apperr.IsConcurrency(err) {
				return nil
			}
			return err
		})
	})
	e.observe("expire", start, nil)
	return tally, nil
}
