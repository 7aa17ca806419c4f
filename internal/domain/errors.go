package domain

import "errors"

var (
	// ErrInvalidDestination is returned when a destination is not an absolute http(s) URL.
	ErrInvalidDestination = errors.New("invalid destination url")

	// ErrInvalidExpiry is returned when the requested lifetime is out of bounds.
	ErrInvalidExpiry = errors.New("invalid expiry")

	// ErrConflict is returned when the registry rejects a duplicate short code.
	ErrConflict = errors.New("short code already exists")

	// ErrGenerationExhausted is returned when no free code was found within the retry budget.
	// Callers may retry later.
	ErrGenerationExhausted = errors.New("could not generate a unique short code")

	// ErrLinkNotFound is returned by registry mutations on an unknown code or id.
	ErrLinkNotFound = errors.New("link not found")
)
