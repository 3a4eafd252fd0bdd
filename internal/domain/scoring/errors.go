package scoring

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for empty identifiers.
	ErrInvalidInput = errors.New("invalid scoring input")
	// ErrNonFiniteTotal is returned instead of persisting an infinite or NaN total.
	ErrNonFiniteTotal = fmt.Errorf("%w: total score is not finite", ErrInvalidInput)
)
