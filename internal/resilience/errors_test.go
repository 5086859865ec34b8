package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/studio-suggest/internal/apperr"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("busy"), ""), true},
		{"wrapped explicit", fmt.Errorf("tx: %w", NewTransientError(errors.New("busy"), "")), true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", eris.Wrap(&pgconn.PgError{Code: "40P01"}, "store: transition"), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"connection reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"network timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"plain", errors.New("syntax error at or near"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"concurrency", &apperr.ConcurrencyError{ID: "s1", Expected: "pending"}, true},
		{"wrapped concurrency", eris.Wrap(&apperr.ConcurrencyError{ID: "s1"}, "lifecycle: decide"), true},
		{"persistence around deadlock", apperr.Persistence("apply", &pgconn.PgError{Code: "40P01"}), true},
		{"persistence around syntax", apperr.Persistence("apply", errors.New("bad sql")), false},
		{"conflict", apperr.IllegalTransition("s1", "apply", "applied"), false},
		{"validation", apperr.MissingData("title"), false},
		{"not found", apperr.NotFound("target", "projects/p1"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "transient", Classify(&pgconn.PgError{Code: "40001"}))
	assert.Equal(t, "permanent", Classify(apperr.MissingData("x")))
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransientError(inner, "40001")

	assert.ErrorIs(t, te, inner)
	assert.Equal(t, "40001", te.Code)
	assert.Equal(t, "root cause", te.Error())
}

func TestFromRetryConfig(t *testing.T) {
	cfg := FromRetryConfig(5, 10, 0)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, int64(10), cfg.InitialBackoff.Milliseconds())
	assert.Equal(t, DefaultRetryConfig().MaxBackoff, cfg.MaxBackoff)
}
