package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid input")

	// ErrInvalidState is returned when a proposal mutation is attempted
	// outside the pending/revised window.
	ErrInvalidState = errors.New("proposal is not in an updatable state")
)
