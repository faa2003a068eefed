package services

import "errors"

var (
	ErrEmptyPayload = errors.New("payload is empty")
	ErrNoColumns    = errors.New("no columns requested")
)
