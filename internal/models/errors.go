package models

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyResolved is returned when a transition is attempted on a
	// missed-period record that is already in a terminal state. Callers
	// treat it as a neutral outcome, not a failure.
	ErrAlreadyResolved = errors.New("record already resolved")

	// ErrForbidden is returned when a user acts on a record or habit they
	// do not own.
	ErrForbidden = errors.New("forbidden")
)
