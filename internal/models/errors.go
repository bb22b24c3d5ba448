package models

import "errors"

var (
	// ErrMalformedInput marks a tick or book update missing a field or carrying an invalid value.
	ErrMalformedInput = errors.New("malformed input")

	// ErrOutOfOrder marks a timestamp regression in a stream that must be non-decreasing.
	ErrOutOfOrder = errors.New("out-of-order input")

	// ErrInsufficientHistory marks an event that cannot be scored for lack of forward ticks.
	ErrInsufficientHistory = errors.New("insufficient history")
)
