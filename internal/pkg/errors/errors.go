package errors

import "errors"

var (
	// ErrEmptyTranscript is returned when segment assembly produces no segments.
	ErrEmptyTranscript = errors.New("empty transcript")
	// ErrNotReady is returned when an external store is unavailable.
	ErrNotReady = errors.New("store not ready")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
)
