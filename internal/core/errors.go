package core

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the parent of every input validation failure.
	ErrValidation = errors.New("validation error")
	// ErrNotFound is returned when an update or lookup targets an unknown id.
	ErrNotFound = errors.New("transaction not found")
	// ErrIO wraps failures of the underlying key-value storage.
	ErrIO = errors.New("storage i/o error")

	ErrInvalidAmount   = fmt.Errorf("%w: amount must be a positive number", ErrValidation)
	ErrCategoryTooLong = fmt.Errorf("%w: category too long (max %d characters)", ErrValidation, MaxCategoryLength)
	ErrInvalidKind     = fmt.Errorf("%w: unknown transaction kind", ErrValidation)
	ErrInvalidBucket   = fmt.Errorf("%w: month bucket must be YYYY-MM", ErrValidation)
)
