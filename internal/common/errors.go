package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Session lifecycle errors.
	ErrNoSession    = errors.New("no session")
	ErrInvalidToken = errors.New("invalid token")
)
