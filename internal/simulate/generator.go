package simulate

import (
	"math"
	"math/rand/v2"
	"sync"
)

// randSource is a goroutine-safe pseudo random source. A fixed seed makes a
// run reproducible.
type randSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newRandSource(seed uint64) *randSource {
	return &randSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *randSource) between(lo, hi float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + r.rng.Float64()*(hi-lo)
}

func (r *randSource) intN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// generateSubmissions builds PerParticipant submissions for every participant,
// each against a random seeded criterion, shuffled so participants interleave.
func generateSubmissions(cfg *Config, seed *Seed, rng *randSource) []Submission {
	subs := make([]Submission, 0, len(seed.Participants)*cfg.PerParticipant)
	if len(seed.Criteria) == 0 {
		return subs
	}
	for _, p := range seed.Participants {
		for i := 0; i < cfg.PerParticipant; i++ {
			c := seed.Criteria[rng.intN(len(seed.Criteria))]
			subs = append(subs, Submission{
				ParticipantID: p.ID,
				CriterionID:   c.ID,
				Value:         roundTo(rng.between(0, maxValue), 2),
			})
		}
	}
	for i := len(subs) - 1; i > 0; i-- {
		j := rng.intN(i + 1)
		subs[i], subs[j] = subs[j], subs[i]
	}
	return subs
}

// expectedTotals sums value*weight per participant over the accepted set.
func expectedTotals(seed *Seed, accepted []submitted) map[string]float64 {
	weights := make(map[string]float64, len(seed.Criteria))
	for _, c := range seed.Criteria {
		weights[c.ID] = c.Weight
	}
	totals := make(map[string]float64, len(seed.Participants))
	for _, p := range seed.Participants {
		totals[p.ID] = 0
	}
	for _, s := range accepted {
		totals[s.ParticipantID] += s.Value * weights[s.CriterionID]
	}
	return totals
}
