package patients

import "errors"

var (
	// ErrNotFound is returned when no patient matches the lookup key.
	ErrNotFound = errors.New("patient not found")

	// ErrMissingPhone is returned when a keyed lookup gets an empty phone.
	ErrMissingPhone = errors.New("canonical phone is required")
)
