package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicate signals a unique constraint violation.
var ErrDuplicate = errors.New("duplicate key")

const uniqueViolation = "23505"

// DuplicateError carries the violated constraint so services can name the field.
type DuplicateError struct {
	Constraint string
	Err        error
}

func (e *DuplicateError) Error() string {
	return "duplicate key violates " + e.Constraint
}

func (e *DuplicateError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrDuplicate) match.
func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// mapPQError translates driver errors the services care about.
func mapPQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return &DuplicateError{Constraint: pqErr.Constraint, Err: err}
	}
	return err
}
