package store

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/studio-suggest/internal/apperr"
	"github.com/sells-group/studio-suggest/internal/db"
	"github.com/sells-group/studio-suggest/internal/model"
)

const patternColumns = `id, pattern_type, pattern_key, target_type, target_code, confidence,
	times_used, times_correct, times_rejected, is_active, notes, created_at, updated_at`

// FindActivePatterns returns active patterns for a signal shape, most
// confident first. Lookups always hit the database.
func (q *queries) FindActivePatterns(ctx context.Context, patternType, patternKey string) ([]model.Pattern, error) {
	return q.listPatterns(ctx,
		`SELECT `+patternColumns+` FROM patterns
		WHERE pattern_type = ? AND pattern_key = ? AND is_active = ?
		ORDER BY confidence DESC, times_used DESC`,
		patternType, patternKey, true,
	)
}

// GetPattern returns the pattern for shape → targetCode, or nil.
func (q *queries) GetPattern(ctx context.Context, shape model.PatternShape, targetCode string) (*model.Pattern, error) {
	p, err := scanPattern(q.q.QueryRow(ctx,
		`SELECT `+patternColumns+` FROM patterns
		WHERE pattern_type = ? AND pattern_key = ? AND target_type = ? AND target_code = ?`,
		shape.PatternType, shape.PatternKey, shape.TargetType, targetCode,
	))
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Persistence("get pattern", eris.Wrap(err, "store: get pattern"))
	}
	return p, nil
}

// AddPatternEvidence adds d's counters to the pattern for its shape and
// target, creating it inactive when missing.
func (q *queries) AddPatternEvidence(ctx context.Context, d PatternDelta) (*model.Pattern, error) {
	now := q.now()
	p, err := scanPattern(q.q.QueryRow(ctx,
		`INSERT INTO patterns (id, pattern_type, pattern_key, target_type, target_code, confidence,
			times_used, times_correct, times_rejected, is_active, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (pattern_type, pattern_key, target_type, target_code) DO UPDATE SET
			times_used = patterns.times_used + excluded.times_used,
			times_correct = patterns.times_correct + excluded.times_correct,
			times_rejected = patterns.times_rejected + excluded.times_rejected,
			updated_at = excluded.updated_at
		RETURNING `+patternColumns,
		uuid.New().String(), d.Shape.PatternType, d.Shape.PatternKey, d.Shape.TargetType, d.TargetCode,
		d.InitialConfidence, d.TimesUsed, d.TimesCorrect, d.TimesRejected, false, d.Notes, now, now,
	))
	if err != nil {
		return nil, apperr.Persistence("add pattern evidence", eris.Wrapf(err, "store: upsert pattern %s/%s", d.Shape.PatternKey, d.TargetCode))
	}
	return p, nil
}

// UpdatePatternScore writes a recomputed confidence and activation flag.
func (q *queries) UpdatePatternScore(ctx context.Context, id string, confidence float64, active bool) error {
	n, err := q.q.Exec(ctx,
		`UPDATE patterns SET confidence = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		confidence, active, q.now(), id,
	)
	if err != nil {
		return apperr.Persistence("update pattern", eris.Wrapf(err, "store: update pattern %s", id))
	}
	if n == 0 {
		return apperr.NotFound("pattern", id)
	}
	return nil
}

// ListPatterns returns patterns matching filter.
func (q *queries) ListPatterns(ctx context.Context, filter PatternFilter) ([]model.Pattern, error) {
	var where []string
	var args []any
	if filter.PatternType != "" {
		where = append(where, "pattern_type = ?")
		args = append(args, filter.PatternType)
	}
	if filter.PatternKey != "" {
		where = append(where, "pattern_key = ?")
		args = append(args, filter.PatternKey)
	}
	if filter.ActiveOnly {
		where = append(where, "is_active = ?")
		args = append(args, true)
	}

	query := `SELECT ` + patternColumns + ` FROM patterns`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY pattern_type, pattern_key, confidence DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	return q.listPatterns(ctx, query, args...)
}

func (q *queries) listPatterns(ctx context.Context, query string, args ...any) ([]model.Pattern, error) {
	rows, err := q.q.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Persistence("list patterns", eris.Wrap(err, "store: list patterns"))
	}
	defer rows.Close()

	var out []model.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, apperr.Persistence("list patterns", eris.Wrap(err, "store: scan pattern"))
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list patterns", eris.Wrap(err, "store: list patterns iterate"))
	}
	return out, nil
}

func scanPattern(row db.Row) (*model.Pattern, error) {
	var p model.Pattern
	err := row.Scan(
		&p.ID, &p.PatternType, &p.PatternKey, &p.TargetType, &p.TargetCode, &p.Confidence,
		&p.TimesUsed, &p.TimesCorrect, &p.TimesRejected, &p.IsActive, &p.Notes, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
