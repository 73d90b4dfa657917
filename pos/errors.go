/*
errors.go - Error taxonomy for the ledger engine

ERROR CATEGORIES:
  1. Validation    - Malformed input. Surfaced to the caller, never retried.
  2. Not found     - Referenced account/movement/sale/product is missing.
  3. Storage       - Persistence layer unreachable. The caller decides on retry.
  4. Partial       - Stock adjustment stopped mid-batch on a non-transactional catalog.
  5. Conflict      - A uniqueness rule the service enforces was violated.

USAGE:
  Check categories with errors.Is; pull details with errors.As:

    if errors.Is(err, pos.ErrNotFound) { ... }

    var perr *pos.PartialApplicationError
    if errors.As(err, &perr) { log(perr.Applied) }
*/
package pos

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation = errors.New("validation failed")

	ErrNotFound = errors.New("not found")

	// ErrStorageUnavailable is returned when the persistence layer cannot be
	// reached. The sequence allocator never guesses a number in that case.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrPartialApplication means some stock lines were adjusted and others not.
	ErrPartialApplication = errors.New("partial application")

	ErrConflict = errors.New("conflict")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError identifies the missing record.
type NotFoundError struct {
	Kind string // "account", "movement", "sale", "credit_note", "product"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NotFound(kind, id string) error { return &NotFoundError{Kind: kind, ID: id} }

// StorageError wraps a driver failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: storage unavailable: %v", e.Op, e.Err)
}

func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }

func (e *StorageError) Unwrap() error { return e.Err }

// Unavailable wraps err as a StorageError unless it already carries a
// domain category.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) || errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrPartialApplication) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// PartialApplicationError reports how far a stock batch got before failing.
type PartialApplicationError struct {
	Applied []ProductID
	Failed  ProductID
	Pending []ProductID
	Err     error
}

func (e *PartialApplicationError) Error() string {
	applied := make([]string, len(e.Applied))
	for i, id := range e.Applied {
		applied[i] = string(id)
	}
	return fmt.Sprintf("stock partially applied: adjusted [%s], failed on %s (%d pending): %v",
		strings.Join(applied, ", "), e.Failed, len(e.Pending), e.Err)
}

func (e *PartialApplicationError) Is(target error) bool { return target == ErrPartialApplication }

func (e *PartialApplicationError) Unwrap() error { return e.Err }

// ConflictError describes a rejected duplicate.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Message }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict)
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
