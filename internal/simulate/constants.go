package simulate

import "time"

const (
	defaultBaseURL        = "http://localhost:9080"
	defaultParticipants   = 50
	defaultCriteria       = 3
	defaultPerParticipant = 20
	defaultTimeout        = 10 * time.Second
	defaultSettleTimeout  = 10 * time.Second

	maxValue       = 100.0
	maxWeight      = 5.0
	scoreTolerance = 1e-6
	progressEvery  = 500
	pollInterval   = 100 * time.Millisecond
	wsReadLimit    = 4 << 20
)
