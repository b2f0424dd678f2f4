// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalid indicates malformed or policy-violating input.
	ErrInvalid = errors.New("invalid input")

	// ErrUnauthorized indicates failed authentication (bad credentials, key, or bearer).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDisabled indicates an inactive account.
	ErrDisabled = errors.New("disabled")

	// ErrAccessDenied indicates a valid principal with insufficient scope.
	ErrAccessDenied = errors.New("access denied")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")
)
