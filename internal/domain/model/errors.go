package model

import "errors"

var (
	// ErrInvalid marks a record that violates a model invariant.
	ErrInvalid = errors.New("invalid model")
	// ErrNotFound marks a referenced record that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate marks a write that would repeat a record that must be unique.
	ErrDuplicate = errors.New("duplicate")
)
