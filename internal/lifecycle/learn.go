package lifecycle

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/studio-suggest/internal/model"
	"github.com/sells-group/studio-suggest/internal/store"
)

// addEvidence adds d's counters to its pattern and rescores it.
func (e *Engine) addEvidence(ctx context.Context, tx store.Tx, d store.PatternDelta) (*model.Pattern, error) {
	if d.InitialConfidence == 0 {
		d.InitialConfidence = e.scorer.PatternConfidence(&model.Pattern{
			TimesCorrect:  d.TimesCorrect,
			TimesRejected: d.TimesRejected,
		})
	}
	p, err := tx.AddPatternEvidence(ctx, d)
	if err != nil {
		return nil, err
	}
	return e.rescore(ctx, tx, p)
}

// rescore recomputes a pattern's confidence from its counters. Online
// feedback may retire an active pattern but never activates one; that is
// left to GenerateRules.
func (e *Engine) rescore(ctx context.Context, tx store.Tx, p *model.Pattern) (*model.Pattern, error) {
	conf := e.scorer.PatternConfidence(p)
	active := p.IsActive && !e.policy.ShouldRetire(p)
	if err := tx.UpdatePatternScore(ctx, p.ID, conf, active); err != nil {
		return nil, err
	}
	if p.IsActive && !active {
		zap.L().Info("pattern retired",
			zap.String("pattern_id", p.ID),
			zap.String("pattern_key", p.PatternKey),
			zap.String("target_code", p.TargetCode),
			zap.Float64("rejection_rate", p.RejectionRate()),
		)
	}
	p.Confidence = conf
	p.IsActive = active
	return p, nil
}

// usageFor returns how many uses to count against the (shape, target)
// pattern when a decision lands on s. A pattern consulted at generation
// time was already counted then.
func usageFor(ctx context.Context, tx store.Tx, s *model.Suggestion, shape model.PatternShape, target string) (*model.Pattern, int, error) {
	p, err := tx.GetPattern(ctx, shape, target)
	if err != nil {
		return nil, 0, err
	}
	if p != nil && s.PatternID != nil && *s.PatternID == p.ID {
		return p, 0, nil
	}
	return p, 1, nil
}

// learnApprove reinforces the association the approved suggestion made.
func (e *Engine) learnApprove(ctx context.Context, tx store.Tx, s *model.Suggestion) error {
	shape := shapeOfSuggestion(s)
	target := suggestionTarget(s, shape)
	if shape.Empty() || target == "" {
		return nil
	}
	_, used, err := usageFor(ctx, tx, s, shape, target)
	if err != nil {
		return err
	}
	_, err = e.addEvidence(ctx, tx, store.PatternDelta{
		Shape:      shape,
		TargetCode: target,
		TimesUsed:  used,
		Notes:      "learned from approval",
	})
	return err
}

// learnReject counts a rejection against the pattern for the suggestion's
// original target and, with a correction, strengthens the corrected one.
func (e *Engine) learnReject(ctx context.Context, tx store.Tx, s *model.Suggestion, c *model.Correction) error {
	shape := shapeOfSuggestion(s)
	if shape.Empty() {
		if c != nil {
			logger("decide", s.ID).Warn("correction ignored: suggestion has no reusable signal shape")
		}
		return nil
	}

	if target := suggestionTarget(s, shape); target != "" {
		p, used, err := usageFor(ctx, tx, s, shape, target)
		if err != nil {
			return err
		}
		if p != nil {
			if _, err := e.addEvidence(ctx, tx, store.PatternDelta{
				Shape:         shape,
				TargetCode:    target,
				TimesUsed:     used,
				TimesRejected: 1,
			}); err != nil {
				return err
			}
		}
	}

	if c == nil {
		return nil
	}
	corrected := shape
	if c.TargetType != "" {
		corrected.TargetType = c.TargetType
	}
	_, err := e.addEvidence(ctx, tx, store.PatternDelta{
		Shape:        corrected,
		TargetCode:   c.TargetCode,
		TimesUsed:    1,
		TimesCorrect: 1,
		Notes:        "learned from correction",
	})
	return err
}

// learnApplied credits the pattern behind a successfully applied suggestion.
func (e *Engine) learnApplied(ctx context.Context, tx store.Tx, s *model.Suggestion) error {
	shape := shapeOfSuggestion(s)
	target := suggestionTarget(s, shape)
	if shape.Empty() || target == "" {
		return nil
	}
	p, err := tx.GetPattern(ctx, shape, target)
	if err != nil || p == nil {
		return err
	}
	_, err = e.addEvidence(ctx, tx, store.PatternDelta{
		Shape:        shape,
		TargetCode:   target,
		TimesCorrect: 1,
	})
	return err
}
