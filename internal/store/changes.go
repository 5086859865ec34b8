package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/studio-suggest/internal/apperr"
	"github.com/sells-group/studio-suggest/internal/db"
	"github.com/sells-group/studio-suggest/internal/model"
)

const changeColumns = `id, suggestion_id, action, table_name, record_id, field_name,
	old_value, new_value, applied_at, reversed_at`

// InsertChangeRecords appends audit rows. It is only called in the same
// transaction as the business mutation the rows describe.
func (q *queries) InsertChangeRecords(ctx context.Context, recs []model.ChangeRecord) error {
	for i := range recs {
		r := &recs[i]
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if r.AppliedAt.IsZero() {
			r.AppliedAt = q.now()
		}
		_, err := q.q.Exec(ctx,
			`INSERT INTO change_records (`+changeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.SuggestionID, string(r.Action), r.TableName, r.RecordID, r.FieldName,
			rawJSON(r.OldValue), rawJSON(r.NewValue), r.AppliedAt, nullable(r.ReversedAt),
		)
		if err != nil {
			return apperr.Persistence("insert change record", eris.Wrapf(err, "store: insert change record for %s", r.SuggestionID))
		}
	}
	return nil
}

// ListChangeRecords returns change records matching filter in apply order.
func (q *queries) ListChangeRecords(ctx context.Context, filter ChangeFilter) ([]model.ChangeRecord, error) {
	var where []string
	var args []any
	if filter.SuggestionID != "" {
		where = append(where, "suggestion_id = ?")
		args = append(args, filter.SuggestionID)
	}
	if filter.TableName != "" {
		where = append(where, "table_name = ?")
		args = append(args, filter.TableName)
	}
	if !filter.Since.IsZero() {
		where = append(where, "applied_at >= ?")
		args = append(args, filter.Since)
	}

	query := `SELECT ` + changeColumns + ` FROM change_records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY applied_at, table_name, record_id, field_name`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := q.q.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Persistence("list change records", eris.Wrap(err, "store: list change records"))
	}
	defer rows.Close()

	var out []model.ChangeRecord
	for rows.Next() {
		r, err := scanChange(rows)
		if err != nil {
			return nil, apperr.Persistence("list change records", eris.Wrap(err, "store: scan change record"))
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list change records", eris.Wrap(err, "store: list change records iterate"))
	}
	return out, nil
}

// MarkReversed stamps reversed_at on every unreversed change record of a
// suggestion.
func (q *queries) MarkReversed(ctx context.Context, suggestionID string, at time.Time) (int64, error) {
	n, err := q.q.Exec(ctx,
		`UPDATE change_records SET reversed_at = ? WHERE suggestion_id = ? AND reversed_at IS NULL`,
		at, suggestionID,
	)
	if err != nil {
		return 0, apperr.Persistence("mark reversed", eris.Wrapf(err, "store: mark reversed %s", suggestionID))
	}
	return n, nil
}

func scanChange(row db.Row) (*model.ChangeRecord, error) {
	var r model.ChangeRecord
	var action string
	var oldVal, newVal []byte
	err := row.Scan(&r.ID, &r.SuggestionID, &action, &r.TableName, &r.RecordID, &r.FieldName,
		&oldVal, &newVal, &r.AppliedAt, &r.ReversedAt)
	if err != nil {
		return nil, err
	}
	r.Action = model.Action(action)
	if len(oldVal) > 0 {
		r.OldValue = append([]byte(nil), oldVal...)
	}
	if len(newVal) > 0 {
		r.NewValue = append([]byte(nil), newVal...)
	}
	return &r, nil
}

// rawJSON binds an encoded value as text, or NULL when empty.
func rawJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
