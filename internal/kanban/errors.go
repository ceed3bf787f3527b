package kanban

import (
	"errors"
	"fmt"
)

// ValidationError reports caller-supplied data that violates an invariant.
// It is always returned before any mutation is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("kanban: invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a card, stage or pipeline that does not exist.
type NotFoundError struct {
	Kind string // "card", "stage"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("kanban: %s not found: %s", e.Kind, e.ID)
}

// PersistenceError wraps a failure of the record or configuration store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("kanban: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func persistence(op string, err error) error {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsPersistence reports whether err is or wraps a *PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
