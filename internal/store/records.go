package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/studio-suggest/internal/apperr"
	"github.com/sells-group/studio-suggest/internal/db"
	"github.com/sells-group/studio-suggest/internal/model"
)

// records implements Records over the same Querier as the surrounding
// transaction, so business writes and audit rows commit together.
type records struct {
	q db.Querier
}

func quoteCol(c string) string { return pgx.Identifier{c}.Sanitize() }

func (r *records) Lookup(ctx context.Context, table TableRef, column string, value any) (string, error) {
	var id any
	err := r.q.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ? LIMIT 1`,
			quoteCol(table.Key()), db.SanitizeTable(table.Name), quoteCol(column)),
		value,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return "", apperr.NotFound("target", fmt.Sprintf("%s.%s=%v", table.Name, column, value))
		}
		return "", apperr.Persistence("lookup", eris.Wrapf(err, "store: lookup %s.%s", table.Name, column))
	}
	return idString(id), nil
}

func (r *records) Exists(ctx context.Context, table TableRef, match map[string]any) (bool, error) {
	if len(match) == 0 {
		return false, eris.New("store: exists requires at least one column")
	}
	cols := sortedKeys(match)
	conds := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		conds[i] = quoteCol(c) + " = ?"
		args[i] = match[c]
	}
	var n int
	err := r.q.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, db.SanitizeTable(table.Name), strings.Join(conds, " AND ")),
		args...,
	).Scan(&n)
	if err != nil {
		return false, apperr.Persistence("exists", eris.Wrapf(err, "store: exists in %s", table.Name))
	}
	return n > 0, nil
}

// Get reads fields of one row. Values are normalized so they compare equal
// across drivers.
func (r *records) Get(ctx context.Context, table TableRef, id string, fields []string) (map[string]any, error) {
	if len(fields) == 0 {
		return nil, eris.New("store: get requires at least one field")
	}
	vals := make([]any, len(fields))
	dest := make([]any, len(fields))
	for i := range vals {
		dest[i] = &vals[i]
	}
	err := r.q.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`,
			db.QuoteAndJoin(fields), db.SanitizeTable(table.Name), quoteCol(table.Key())),
		id,
	).Scan(dest...)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return nil, apperr.NotFound("target", table.Name+"/"+id)
		}
		return nil, apperr.Persistence("get record", eris.Wrapf(err, "store: get %s/%s", table.Name, id))
	}
	out := make(map[string]any, len(fields))
	for i, f := range fields {
		out[f] = model.NormalizeValue(vals[i])
	}
	return out, nil
}

func (r *records) Insert(ctx context.Context, table TableRef, values map[string]any) (string, error) {
	key := table.Key()
	row := make(map[string]any, len(values)+1)
	for k, v := range values {
		row[k] = v
	}
	id, ok := row[key]
	if !ok || id == nil || id == "" {
		id = uuid.New().String()
		row[key] = id
	}

	cols := sortedKeys(row)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = row[c]
	}
	_, err := r.q.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
			db.SanitizeTable(table.Name), db.QuoteAndJoin(cols), db.Placeholders(len(cols))),
		args...,
	)
	if err != nil {
		return "", apperr.Persistence("insert record", eris.Wrapf(err, "store: insert into %s", table.Name))
	}
	return idString(id), nil
}

func (r *records) Update(ctx context.Context, table TableRef, id string, set, expect map[string]any) (int64, error) {
	if len(set) == 0 {
		return 0, eris.New("store: update requires at least one field")
	}
	cols := sortedKeys(set)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(expect)+1)
	for i, c := range cols {
		sets[i] = quoteCol(c) + " = ?"
		args = append(args, set[c])
	}
	where, wargs := r.guard(table, id, expect)
	args = append(args, wargs...)

	n, err := r.q.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET %s WHERE %s`, db.SanitizeTable(table.Name), strings.Join(sets, ", "), where),
		args...,
	)
	if err != nil {
		return 0, apperr.Persistence("update record", eris.Wrapf(err, "store: update %s/%s", table.Name, id))
	}
	return n, nil
}

func (r *records) Delete(ctx context.Context, table TableRef, id string, expect map[string]any) (int64, error) {
	where, args := r.guard(table, id, expect)
	n, err := r.q.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s`, db.SanitizeTable(table.Name), where),
		args...,
	)
	if err != nil {
		return 0, apperr.Persistence("delete record", eris.Wrapf(err, "store: delete %s/%s", table.Name, id))
	}
	return n, nil
}

// guard builds "id = ? AND f IS ..." so a write only lands when the row
// still holds the expected values.
func (r *records) guard(table TableRef, id string, expect map[string]any) (string, []any) {
	conds := []string{quoteCol(table.Key()) + " = ?"}
	args := []any{id}
	op := r.q.Dialect().NullSafeEq()
	for _, c := range sortedKeys(expect) {
		conds = append(conds, fmt.Sprintf("%s %s ?", quoteCol(c), op))
		args = append(args, expect[c])
	}
	return strings.Join(conds, " AND "), args
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func idString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case [16]byte:
		return uuid.UUID(t).String()
	default:
		return fmt.Sprint(t)
	}
}
