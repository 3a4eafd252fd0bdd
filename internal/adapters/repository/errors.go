package repository

import (
	"errors"

	"github.com/okian/starchallenge/internal/domain/model"
)

// Sentinel kinds for storage errors.
var (
	// ErrNotFound is model.ErrNotFound so domain code can test for it without
	// importing this package.
	ErrNotFound = model.ErrNotFound
	// ErrDuplicate is returned when a unique index rejects a write.
	ErrDuplicate = model.ErrDuplicate
	// ErrStore wraps every driver level failure.
	ErrStore = errors.New("store failure")
	// ErrUnsupportedDriver is returned by Open for unknown drivers.
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)
