package ranking

import "errors"

// ErrInvalidInput is returned for empty ids and negative counts.
var ErrInvalidInput = errors.New("invalid ranking input")
