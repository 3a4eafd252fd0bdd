package service

import "github.com/okian/starchallenge/internal/domain/rewards"

// ErrAlreadyGranted is returned when stars for a performance were already granted.
var ErrAlreadyGranted = rewards.ErrAlreadyGranted
