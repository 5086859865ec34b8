package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/studio-suggest/internal/db"
)

// Config selects and tunes the database backend.
type Config struct {
	Driver      string        `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	Pool        db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// SQLStore implements Store over a db.Conn. The same SQL serves both
// backends; dialect differences live in db.Dialect and the migrations.
type SQLStore struct {
	conn db.Conn
	now  func() time.Time
}

// Open connects to the configured backend ("postgres" or "sqlite").
func Open(ctx context.Context, cfg Config) (*SQLStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "postgres", "postgresql":
		conn, err := db.OpenPostgres(ctx, cfg.DatabaseURL, &cfg.Pool)
		if err != nil {
			return nil, err
		}
		return New(conn), nil
	case "sqlite":
		conn, err := db.OpenSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return New(conn), nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// New wraps an open connection.
func New(conn db.Conn) *SQLStore {
	return &SQLStore{conn: conn, now: func() time.Time { return time.Now().UTC() }}
}

// InTx runs fn in one transaction.
func (s *SQLStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return db.WithTx(ctx, s.conn, func(tx db.Tx) error {
		return fn(&queries{q: tx, now: s.now})
	})
}

// View runs fn outside a transaction.
func (s *SQLStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return fn(&queries{q: s.conn, now: s.now})
}

// Migrate creates the engine tables.
func (s *SQLStore) Migrate(ctx context.Context) error {
	ddl := postgresMigration
	if s.conn.Dialect().Name() == db.SQLite.Name() {
		ddl = sqliteMigration
	}
	_, err := s.conn.Exec(ctx, ddl)
	return eris.Wrapf(err, "%s: migrate", s.conn.Dialect().Name())
}

// Exec runs raw SQL; used by tooling and tests that manage business tables.
func (s *SQLStore) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return s.conn.Exec(ctx, query, args...)
}

// Dialect reports the backend dialect.
func (s *SQLStore) Dialect() db.Dialect {
	return s.conn.Dialect()
}

func (s *SQLStore) Close() error {
	return s.conn.Close()
}

// queries implements Tx over any db.Querier.
type queries struct {
	q   db.Querier
	now func() time.Time
}

func (q *queries) dialect() db.Dialect { return q.q.Dialect() }

func (q *queries) Records() Records {
	return &records{q: q.q}
}

// nullable dereferences p for binding, passing NULL when p is nil.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
