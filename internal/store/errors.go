package store

import "errors"

var (
	// ErrNotFound is returned when no API key matches the lookup.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an insert collides with an existing key hash.
	ErrDuplicate = errors.New("duplicate key hash")
)
