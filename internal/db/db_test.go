package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRebind(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"UPDATE s SET status = ? WHERE id = ?", "UPDATE s SET status = $1 WHERE id = $2"},
		{"INSERT INTO t (a, b, c) VALUES (?, ?, ?)", "INSERT INTO t (a, b, c) VALUES ($1, $2, $3)"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Postgres.Rebind(tt.in))
			assert.Equal(t, tt.in, SQLite.Rebind(tt.in))
		})
	}
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"projects", `"projects"`},
		{"studio.projects", `"studio"."projects"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "fee"`, QuoteAndJoin([]string{"id", "name", "fee"}))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", Placeholders(0))
	assert.Equal(t, "?", Placeholders(1))
	assert.Equal(t, "?, ?, ?", Placeholders(3))
}

func TestPgxConn_ExecRowsAffected(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	conn := NewPgxConn(mock)
	mock.ExpectExec(`UPDATE projects SET fee = \$1 WHERE id = \$2`).
		WithArgs(50000.0, "p-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	n, err := conn.Exec(context.Background(), `UPDATE projects SET fee = ? WHERE id = ?`, 50000.0, "p-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgxConn_QueryRowNoRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	conn := NewPgxConn(mock)
	mock.ExpectQuery(`SELECT id FROM projects`).
		WithArgs("P9").
		WillReturnError(pgx.ErrNoRows)

	var id string
	err = conn.QueryRow(context.Background(), `SELECT id FROM projects WHERE project_code = ?`, "P9").Scan(&id)
	assert.ErrorIs(t, err, ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_Commit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	conn := NewPgxConn(mock)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE suggestions`).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = WithTx(context.Background(), conn, func(tx Tx) error {
		_, err := tx.Exec(context.Background(), `UPDATE suggestions SET status = ?`, "approved")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollbackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	conn := NewPgxConn(mock)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = WithTx(context.Background(), conn, func(Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
