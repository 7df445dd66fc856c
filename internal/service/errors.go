package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidKey              = errors.New("invalid api key")
	ErrMissingHeader           = errors.New("missing authorization header")
	ErrInvalidFormat           = errors.New("invalid authorization header format")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrDuplicateKey            = errors.New("api key already exists")
	ErrKeyNotFound             = errors.New("api key not found")
	ErrEmptySecret             = errors.New("api key must not be empty")
)

// StoreError wraps a key store failure. Its message is for logs only and must
// not be returned to API clients.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("key store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// BootstrapError reports that the initial admin key could not be ensured.
// It is fatal at startup.
type BootstrapError struct {
	Err error
}

func (e *BootstrapError) Error() string {
	return "admin bootstrap: " + e.Err.Error()
}

func (e *BootstrapError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err should be surfaced as 401: a missing or
// malformed header, or a token that matches no key.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrMissingHeader) ||
		errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrInvalidKey)
}
