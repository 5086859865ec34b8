package db

import (
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Dialect captures the SQL differences between the supported backends.
type Dialect interface {
	Name() string
	// Rebind rewrites `?` placeholders into the driver's native style.
	Rebind(query string) string
	// ForUpdate is the row-locking suffix for SELECTs inside a transaction.
	ForUpdate() string
	// NullSafeEq is the operator comparing two values where NULL equals NULL.
	NullSafeEq() string
	// Quote sanitizes a possibly schema-qualified identifier.
	Quote(ident string) string
}

// Postgres is the PostgreSQL dialect.
var Postgres Dialect = postgresDialect{}

// SQLite is the SQLite dialect.
var SQLite Dialect = sqliteDialect{}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (postgresDialect) ForUpdate() string  { return " FOR UPDATE" }
func (postgresDialect) NullSafeEq() string { return "IS NOT DISTINCT FROM" }
func (postgresDialect) Quote(ident string) string {
	return SanitizeTable(ident)
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string               { return "sqlite" }
func (sqliteDialect) Rebind(query string) string { return query }

// SQLite serializes writers at the connection level, so no row lock is needed.
func (sqliteDialect) ForUpdate() string  { return "" }
func (sqliteDialect) NullSafeEq() string { return "IS" }
func (sqliteDialect) Quote(ident string) string {
	return SanitizeTable(ident)
}

// SanitizeTable handles schema-qualified table names like "studio.projects".
func SanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// QuoteAndJoin quotes each column name and joins with commas.
func QuoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

// Placeholders returns n comma-separated `?` placeholders.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
