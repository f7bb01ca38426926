package store

import "errors"

// ErrNotFound is returned when no record or blob exists for an identifier.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when a state change violates the record
// lifecycle. It indicates an ordering bug in the caller and is never ignored.
var ErrInvalidTransition = errors.New("invalid state transition")
