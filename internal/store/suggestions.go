package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/studio-suggest/internal/apperr"
	"github.com/sells-group/studio-suggest/internal/db"
	"github.com/sells-group/studio-suggest/internal/model"
)

const suggestionColumns = `id, type, status, priority, confidence_score, source_type, source_id,
	title, description, payload, target_table, target_id, dedup_target, related_entity_code,
	pattern_type, pattern_key, pattern_id, signal_count, reviewed_by, reviewed_at, review_notes,
	last_error, created_at, updated_at, expires_at`

// UpsertSuggestion inserts s, or merges it into the row sharing its dedup
// key. A merge raises a pending row's confidence by noisy-OR and counts the
// extra signal; decided rows only count the signal. The returned bool is true
// when a new row was inserted.
func (q *queries) UpsertSuggestion(ctx context.Context, s *model.Suggestion) (*model.Suggestion, bool, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	now := q.now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	payload := string(s.Payload)
	if payload == "" {
		payload = "{}"
	}

	row := q.q.QueryRow(ctx,
		`INSERT INTO suggestions (id, type, status, priority, confidence_score, source_type, source_id,
			title, description, payload, target_table, target_id, dedup_target, related_entity_code,
			pattern_type, pattern_key, pattern_id, signal_count, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT (type, source_type, source_id, target_table, dedup_target) DO UPDATE SET
			confidence_score = CASE WHEN suggestions.status = 'pending'
				THEN 1 - (1 - suggestions.confidence_score) * (1 - excluded.confidence_score)
				ELSE suggestions.confidence_score END,
			signal_count = suggestions.signal_count + 1,
			updated_at = excluded.updated_at
		RETURNING `+suggestionColumns,
		s.ID, string(s.Type), string(model.StatusPending), string(s.Priority), s.ConfidenceScore,
		s.SourceType, s.SourceID, s.Title, s.Description, payload, s.TargetTable, nullable(s.TargetID),
		s.DedupTarget, s.RelatedEntityCode, s.PatternType, s.PatternKey, nullable(s.PatternID),
		s.CreatedAt, now, nullable(s.ExpiresAt),
	)
	got, err := scanSuggestion(row)
	if err != nil {
		return nil, false, apperr.Persistence("upsert suggestion", eris.Wrap(err, "store: upsert suggestion"))
	}
	return got, got.ID == s.ID, nil
}

// GetSuggestion loads one suggestion. With lock set the row is locked for
// the rest of the transaction.
func (q *queries) GetSuggestion(ctx context.Context, id string, lock bool) (*model.Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions WHERE id = ?`
	if lock {
		query += q.dialect().ForUpdate()
	}
	got, err := scanSuggestion(q.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return nil, apperr.NotFound("suggestion", id)
		}
		return nil, apperr.Persistence("get suggestion", eris.Wrapf(err, "store: get suggestion %s", id))
	}
	return got, nil
}

// FindSuggestion returns the suggestion holding key, or nil when none does.
func (q *queries) FindSuggestion(ctx context.Context, key model.DedupKey) (*model.Suggestion, error) {
	got, err := scanSuggestion(q.q.QueryRow(ctx,
		`SELECT `+suggestionColumns+` FROM suggestions
		WHERE type = ? AND source_type = ? AND source_id = ? AND target_table = ? AND dedup_target = ?`,
		string(key.Type), key.SourceType, key.SourceID, key.TargetTable, key.Target,
	))
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Persistence("find suggestion", eris.Wrap(err, "store: find suggestion"))
	}
	return got, nil
}

// ListSuggestions returns suggestions matching filter, highest priority and
// confidence first.
func (q *queries) ListSuggestions(ctx context.Context, filter SuggestionFilter) ([]model.Suggestion, error) {
	var where []string
	var args []any

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.SourceType != "" {
		where = append(where, "source_type = ?")
		args = append(args, filter.SourceType)
	}
	if filter.SourceID != "" {
		where = append(where, "source_id = ?")
		args = append(args, filter.SourceID)
	}
	if filter.EntityCode != "" {
		where = append(where, "related_entity_code = ?")
		args = append(args, filter.EntityCode)
	}
	if filter.MinConfidence > 0 {
		where = append(where, "confidence_score >= ?")
		args = append(args, filter.MinConfidence)
	}

	query := `SELECT ` + suggestionColumns + ` FROM suggestions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END, confidence_score DESC, created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := q.q.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Persistence("list suggestions", eris.Wrap(err, "store: list suggestions"))
	}
	defer rows.Close()

	var out []model.Suggestion
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, apperr.Persistence("list suggestions", eris.Wrap(err, "store: scan suggestion"))
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list suggestions", eris.Wrap(err, "store: list suggestions iterate"))
	}
	return out, nil
}

// TransitionStatus moves a suggestion from t.From to t.To only if it is
// still in t.From. Zero rows affected means another writer got there first.
func (q *queries) TransitionStatus(ctx context.Context, t Transition) error {
	at := t.At
	if at.IsZero() {
		at = q.now()
	}
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{string(t.To), at}

	if t.ReviewedBy != nil {
		sets = append(sets, "reviewed_by = ?", "reviewed_at = ?")
		args = append(args, *t.ReviewedBy, at)
	}
	if t.ReviewNotes != nil {
		sets = append(sets, "review_notes = ?")
		args = append(args, *t.ReviewNotes)
	}
	if t.TargetID != nil {
		sets = append(sets, "target_id = ?")
		args = append(args, *t.TargetID)
	}
	switch {
	case t.LastError != nil:
		sets = append(sets, "last_error = ?")
		args = append(args, *t.LastError)
	case t.ClearError:
		sets = append(sets, "last_error = NULL")
	}

	query := fmt.Sprintf(`UPDATE suggestions SET %s WHERE id = ? AND status = ?`, strings.Join(sets, ", "))
	args = append(args, t.ID, string(t.From))

	n, err := q.q.Exec(ctx, query, args...)
	if err != nil {
		return apperr.Persistence("transition status", eris.Wrapf(err, "store: transition %s %s->%s", t.ID, t.From, t.To))
	}
	if n == 0 {
		return &apperr.ConcurrencyError{ID: t.ID, Expected: string(t.From)}
	}
	return nil
}

// ListExpired returns ids of pending suggestions whose expiry has passed.
func (q *queries) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := q.q.Query(ctx,
		`SELECT id FROM suggestions WHERE status = ? AND expires_at IS NOT NULL AND expires_at < ? ORDER BY expires_at LIMIT ?`,
		string(model.StatusPending), now, limit,
	)
	if err != nil {
		return nil, apperr.Persistence("list expired", eris.Wrap(err, "store: list expired"))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Persistence("list expired", eris.Wrap(err, "store: scan expired"))
		}
		ids = append(ids, id)
	}
	return ids, apperr.Persistence("list expired", rows.Err())
}

// Stats counts suggestions by status and type, plus pattern totals.
func (q *queries) Stats(ctx context.Context) (*model.Stats, error) {
	st := &model.Stats{
		ByStatus: make(map[model.SuggestionStatus]int),
		ByType:   make(map[model.SuggestionType]int),
	}

	rows, err := q.q.Query(ctx, `SELECT status, type, COUNT(*) FROM suggestions GROUP BY status, type`)
	if err != nil {
		return nil, apperr.Persistence("stats", eris.Wrap(err, "store: count suggestions"))
	}
	for rows.Next() {
		var status, typ string
		var n int
		if err := rows.Scan(&status, &typ, &n); err != nil {
			rows.Close()
			return nil, apperr.Persistence("stats", eris.Wrap(err, "store: scan counts"))
		}
		st.ByStatus[model.SuggestionStatus(status)] += n
		st.ByType[model.SuggestionType(typ)] += n
		st.Total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("stats", eris.Wrap(err, "store: count suggestions iterate"))
	}

	err = q.q.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0) FROM patterns`,
	).Scan(&st.Patterns, &st.ActivePatterns)
	if err != nil {
		return nil, apperr.Persistence("stats", eris.Wrap(err, "store: count patterns"))
	}
	return st, nil
}

func scanSuggestion(row db.Row) (*model.Suggestion, error) {
	var s model.Suggestion
	var typ, status, priority string
	var payload []byte
	err := row.Scan(
		&s.ID, &typ, &status, &priority, &s.ConfidenceScore, &s.SourceType, &s.SourceID,
		&s.Title, &s.Description, &payload, &s.TargetTable, &s.TargetID, &s.DedupTarget, &s.RelatedEntityCode,
		&s.PatternType, &s.PatternKey, &s.PatternID, &s.SignalCount, &s.ReviewedBy, &s.ReviewedAt, &s.ReviewNotes,
		&s.LastError, &s.CreatedAt, &s.UpdatedAt, &s.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	s.Type = model.SuggestionType(typ)
	s.Status = model.SuggestionStatus(status)
	s.Priority = model.Priority(priority)
	if len(payload) > 0 {
		s.Payload = append([]byte(nil), payload...)
	}
	return &s, nil
}
