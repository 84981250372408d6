package core

import (
	"errors"
	"fmt"
)

// Error kinds. Field-level validation errors wrap ErrValidation so callers
// can branch on the kind with errors.Is.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
)

var (
	ErrInvalidDay              = fmt.Errorf("%w: invalid day", ErrValidation)
	ErrInvalidMonth            = fmt.Errorf("%w: invalid month", ErrValidation)
	ErrInvalidAmount           = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrInvalidDate             = fmt.Errorf("%w: invalid date", ErrValidation)
	ErrInvalidRole             = fmt.Errorf("%w: invalid role", ErrValidation)
	ErrInvalidInstallmentCount = fmt.Errorf("%w: installment count must be between 1 and 360", ErrValidation)
	ErrEmptyDescription        = fmt.Errorf("%w: empty description", ErrValidation)
	ErrEmptyTitle              = fmt.Errorf("%w: empty title", ErrValidation)
	ErrEmptyName               = fmt.Errorf("%w: empty name", ErrValidation)
	ErrEmptyCardName           = fmt.Errorf("%w: empty card name", ErrValidation)
)

// DecodeError reports a gateway row that does not match the record schema.
type DecodeError struct {
	Table string
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("decode %s.%s: %v", e.Table, e.Field, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Table, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
