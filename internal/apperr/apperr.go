// Package apperr defines the typed error taxonomy returned by the suggestion
// engine. Every failure surfaced to a caller is one of these types so it can
// be rendered with its specific reason instead of a generic error.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports a missing or malformed payload. It is recoverable:
// the suggestion keeps its current status.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case len(e.Fields) > 0 && e.Reason != "":
		return fmt.Sprintf("validation: %s (fields: %s)", e.Reason, strings.Join(e.Fields, ", "))
	case len(e.Fields) > 0:
		return fmt.Sprintf("validation: missing data: %s", strings.Join(e.Fields, ", "))
	default:
		return "validation: " + e.Reason
	}
}

// MissingData returns a ValidationError naming the absent fields.
func MissingData(fields ...string) *ValidationError {
	return &ValidationError{Fields: fields}
}

// Invalid returns a ValidationError with a free-form reason.
func Invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown suggestion, handler type or target entity.
type NotFoundError struct {
	Kind string // "suggestion", "handler", "target", "pattern"
	ID   string
}

func (e *NotFoundError) Error() string {
	switch e.Kind {
	case "handler":
		return fmt.Sprintf("unregistered suggestion type: %s", e.ID)
	case "target":
		return fmt.Sprintf("target entity not found: %s", e.ID)
	default:
		return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
	}
}

// NotFound returns a NotFoundError.
func NotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// ConflictError reports an illegal state transition or a guarded write that
// found the row changed underneath it.
type ConflictError struct {
	ID     string
	Op     string
	Status string
	Reason string
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("conflict: %s %s: %s", e.Op, e.ID, e.Reason)
	}
	return fmt.Sprintf("conflict: cannot %s suggestion %s in %s state", e.Op, e.ID, e.Status)
}

// IllegalTransition returns a ConflictError for op attempted in status.
func IllegalTransition(id, op, status string) *ConflictError {
	return &ConflictError{ID: id, Op: op, Status: status}
}

// ConcurrencyError reports a lost compare-and-set race. The caller should
// refetch and retry.
type ConcurrencyError struct {
	ID       string
	Expected string
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrent modification of suggestion %s (expected status %s)", e.ID, e.Expected)
}

// PersistenceError wraps a storage or transaction failure. The operation has
// had no partial effect.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence wraps err as a PersistenceError unless it is nil or already a
// typed engine error.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if Typed(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsValidation reports whether err contains a ValidationError.
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsNotFound reports whether err contains a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsConflict reports whether err contains a ConflictError.
func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

// IsConcurrency reports whether err contains a ConcurrencyError.
func IsConcurrency(err error) bool {
	var e *ConcurrencyError
	return errors.As(err, &e)
}

// IsPersistence reports whether err contains a PersistenceError.
func IsPersistence(err error) bool {
	var e *PersistenceError
	return errors.As(err, &e)
}

// Typed reports whether err carries one of the engine's error types.
func Typed(err error) bool {
	return IsValidation(err) || IsNotFound(err) || IsConflict(err) || IsConcurrency(err) || IsPersistence(err)
}

// Kind returns a short machine-readable name for err's type.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsValidation(err):
		return "validation"
	case IsNotFound(err):
		return "not_found"
	case IsConflict(err):
		return "conflict"
	case IsConcurrency(err):
		return "concurrency"
	case IsPersistence(err):
		return "persistence"
	default:
		return "internal"
	}
}
