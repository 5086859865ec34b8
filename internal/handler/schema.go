package handler

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/sells-group/studio-suggest/internal/db"
)

// SchemaDDL returns CREATE TABLE statements for the business tables t
// describes. Production schemas are owned elsewhere; this is for local
// SQLite databases and tests. The SQL is valid on Postgres and SQLite.
func (t *Targets) SchemaDDL() string {
	col := func(name, typ string) string { return pgx.Identifier{name}.Sanitize() + " " + typ }
	table := func(name string, cols ...string) string {
		return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n);\n", db.SanitizeTable(name), strings.Join(cols, ",\n\t"))
	}

	var b strings.Builder
	p := t.Projects
	b.WriteString(table(p.Name,
		col(p.Key(), "TEXT PRIMARY KEY"),
		col(p.CodeColumn, "TEXT NOT NULL UNIQUE"),
		col(p.FeeColumn, "DOUBLE PRECISION"),
		col(p.StatusColumn, "TEXT"),
	))
	c := t.Contacts
	b.WriteString(table(c.Name,
		col(c.Key(), "TEXT PRIMARY KEY"),
		col(c.NameColumn, "TEXT"),
		col(c.EmailColumn, "TEXT NOT NULL UNIQUE"),
		col(c.CompanyColumn, "TEXT"),
		col(c.PhoneColumn, "TEXT"),
	))
	k := t.Tasks
	b.WriteString(table(k.Name,
		col(k.Key(), "TEXT PRIMARY KEY"),
		col(k.ProjectColumn, "TEXT"),
		col(k.TitleColumn, "TEXT NOT NULL"),
		col(k.DueColumn, "TEXT"),
		col(k.AssigneeColumn, "TEXT"),
		col(k.StatusColumn, "TEXT"),
	))
	l := t.Links
	b.WriteString(table(l.Name,
		col(l.Key(), "TEXT PRIMARY KEY"),
		col(l.EmailColumn, "TEXT NOT NULL"),
		col(l.ProjectColumn, "TEXT NOT NULL"),
		fmt.Sprintf("UNIQUE (%s, %s)", pgx.Identifier{l.EmailColumn}.Sanitize(), pgx.Identifier{l.ProjectColumn}.Sanitize()),
	))
	return b.String()
}
