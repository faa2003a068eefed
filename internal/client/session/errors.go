package session

import "errors"

var (
	ErrNoHandshake      = errors.New("handshake not negotiated")
	ErrMalformedReply   = errors.New("malformed login reply")
	ErrAlreadyLoggedOut = errors.New("already logged out")
)
