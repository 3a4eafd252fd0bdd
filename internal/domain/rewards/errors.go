package rewards

import (
	"errors"
	"fmt"

	"github.com/okian/starchallenge/internal/domain/model"
)

var (
	// ErrInvalidInput is returned for empty identifiers.
	ErrInvalidInput = errors.New("invalid reward input")
	// ErrAlreadyGranted is returned when the ledger already credits a performance.
	ErrAlreadyGranted = fmt.Errorf("stars already granted: %w", model.ErrDuplicate)
)
