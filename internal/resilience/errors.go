// Package resilience retries engine transactions that fail for reasons a
// second attempt can fix.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sells-group/studio-suggest/internal/apperr"
)

// TransientError wraps a storage error that is safe to retry.
type TransientError struct {
	Err  error
	Code string
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional SQLSTATE code.
func NewTransientError(err error, code string) *TransientError {
	return &TransientError{Err: err, Code: code}
}

// Postgres SQLSTATEs that mean "run the transaction again".
var transientPgCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"57P03": true, // cannot_connect_now
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, a retryable Postgres SQLSTATE, a busy SQLite database, or a
// network-level failure talking to the database.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientPgCodes[pgErr.Code]
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"database is locked",
		"sqlite_busy",
		"connection reset by peer",
		"broken pipe",
		"i/o timeout",
		"conn closed",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsRetryable reports whether an engine operation that failed with err
// should be run again from the top: transient storage failures and lost
// compare-and-set races. Conflicts, validation and not-found errors are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if apperr.IsConcurrency(err) {
		return true
	}
	if apperr.IsValidation(err) || apperr.IsNotFound(err) || apperr.IsConflict(err) {
		return false
	}
	return IsTransient(err)
}

// Classify labels an error "transient" or "permanent" for logs and tallies.
func Classify(err error) string {
	if IsRetryable(err) {
		return "transient"
	}
	return "permanent"
}
