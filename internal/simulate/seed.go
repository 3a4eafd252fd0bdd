package simulate

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/starchallenge/pkg/logger"
)

// defaultTiers are seeded so the reward pipeline has thresholds to unlock.
var defaultTiers = []struct {
	Name     string
	MinStars int
}{
	{"Bronze", 10},
	{"Silver", 50},
	{"Gold", 200},
}

// seedChallenge creates an active challenge with weighted criteria and one
// user-backed participant per slot.
func seedChallenge(ctx context.Context, cfg *Config, client *HTTPClient, rng *randSource) (*Seed, error) {
	log := logger.Named("simulate")
	run := uuid.NewString()[:8]

	var creator idResponse
	if err := client.do(ctx, http.MethodPost, "/api/users", map[string]any{
		"name":  "organizer-" + run,
		"email": "organizer-" + run + "@simulate.local",
		"role":  "organizer",
	}, &creator); err != nil {
		return nil, fmt.Errorf("create organizer: %w", err)
	}

	now := time.Now().UTC()
	var challenge idResponse
	if err := client.do(ctx, http.MethodPost, "/api/challenges", map[string]any{
		"name":      "simulation-" + run,
		"startDate": now.Add(-time.Hour),
		"endDate":   now.Add(24 * time.Hour),
		"creatorId": creator.ID,
	}, &challenge); err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}

	seed := &Seed{ChallengeID: challenge.ID}
	for i := 0; i < cfg.Criteria; i++ {
		weight := roundTo(rng.between(0.5, maxWeight), 2)
		var c idResponse
		if err := client.do(ctx, http.MethodPost, "/api/challenges/"+challenge.ID+"/criteria", map[string]any{
			"name":   fmt.Sprintf("criterion-%d", i+1),
			"weight": weight,
		}, &c); err != nil {
			return nil, fmt.Errorf("create criterion %d: %w", i+1, err)
		}
		seed.Criteria = append(seed.Criteria, Criterion{ID: c.ID, Weight: weight})
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := 0; i < cfg.Participants; i++ {
		g.Go(func() error {
			p, err := seedParticipant(gctx, client, challenge.ID, run, i)
			if err != nil {
				return err
			}
			mu.Lock()
			seed.Participants = append(seed.Participants, p)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var existing []struct {
		Name string `json:"name"`
	}
	if err := client.do(ctx, http.MethodGet, "/api/tiers", nil, &existing); err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	have := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		have[t.Name] = struct{}{}
	}
	for _, t := range defaultTiers {
		if _, ok := have[t.Name]; ok {
			continue
		}
		err := client.do(ctx, http.MethodPost, "/api/tiers", map[string]any{
			"name":        t.Name,
			"minStars":    t.MinStars,
			"description": "seeded by simulate",
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("create tier %s: %w", t.Name, err)
		}
	}

	log.Info(ctx, "challenge seeded",
		logger.String("challengeId", seed.ChallengeID),
		logger.Int("criteria", len(seed.Criteria)),
		logger.Int("participants", len(seed.Participants)))
	return seed, nil
}

func seedParticipant(ctx context.Context, client *HTTPClient, challengeID, run string, i int) (Participant, error) {
	name := fmt.Sprintf("athlete-%s-%d", run, i)
	var u idResponse
	if err := client.do(ctx, http.MethodPost, "/api/users", map[string]any{
		"name":  name,
		"email": name + "@simulate.local",
	}, &u); err != nil {
		return Participant{}, fmt.Errorf("create user %d: %w", i, err)
	}
	var p idResponse
	if err := client.do(ctx, http.MethodPost, "/api/challenges/"+challengeID+"/participants", map[string]any{
		"userId": u.ID,
	}, &p); err != nil {
		return Participant{}, fmt.Errorf("join participant %d: %w", i, err)
	}
	return Participant{ID: p.ID, UserID: u.ID}, nil
}
