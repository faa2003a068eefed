package upload

import "errors"

var (
	ErrLocalOnly   = errors.New("target is local only")
	ErrUnknownKind = errors.New("unknown operation kind")
	ErrEmptyTarget = errors.New("empty target id")
)
