package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/starchallenge/internal/domain/types"
	"github.com/okian/starchallenge/pkg/logger"
)

// HTTPClient is a thin JSON client for the service API.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// do sends body as JSON and decodes a 2xx response into out when out is non-nil.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *HTTPClient) checkHealth(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *HTTPClient) getLeaderboard(ctx context.Context, challengeID string, refresh bool) ([]types.LeaderboardEntry, error) {
	path := "/api/challenges/" + challengeID + "/leaderboard"
	if refresh {
		path += "?refresh=true"
	}
	var entries []types.LeaderboardEntry
	if err := c.do(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

type idResponse struct {
	ID string `json:"id"`
}

type createdPerformance struct {
	Performance struct {
		ID string `json:"id"`
	} `json:"performance"`
	TotalScore float64 `json:"totalScore"`
}

// submitted pairs a submission with the id the service assigned.
type submitted struct {
	Submission
	ID string
}

// submitPerformances posts submissions concurrently with a bounded worker pool.
func submitPerformances(ctx context.Context, cfg *Config, client *HTTPClient, subs []Submission, stats *Stats) []submitted {
	log := logger.Named("simulate")
	log.Info(ctx, "submitting performances",
		logger.Int("count", len(subs)),
		logger.Int("workers", cfg.Workers))

	var (
		succeeded int64
		failed    int64
		done      int64
		mu        sync.Mutex
		accepted  = make([]submitted, 0, len(subs))
	)

	work := make(chan Submission, cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range work {
				if ctx.Err() != nil {
					return
				}
				id, err := submitOne(ctx, client, s)
				n := atomic.AddInt64(&done, 1)
				if err != nil {
					atomic.AddInt64(&failed, 1)
					log.Warn(ctx, "submission failed", logger.String("participantId", s.ParticipantID), logger.Error(err))
				} else {
					atomic.AddInt64(&succeeded, 1)
					mu.Lock()
					accepted = append(accepted, submitted{Submission: s, ID: id})
					mu.Unlock()
				}
				if n%progressEvery == 0 {
					log.Debug(ctx, "submission progress",
						logger.Int64("done", n),
						logger.Int("total", len(subs)))
				}
			}
		}()
	}

	go func() {
		defer close(work)
		for _, s := range subs {
			select {
			case <-ctx.Done():
				return
			case work <- s:
			}
		}
	}()

	wg.Wait()

	stats.Submitted = int(done)
	stats.Succeeded = int(succeeded)
	stats.Failed = int(failed)
	return accepted
}

func submitOne(ctx context.Context, client *HTTPClient, s Submission) (string, error) {
	body := map[string]any{
		"participantId": s.ParticipantID,
		"criterionId":   s.CriterionID,
		"value":         s.Value,
	}
	var out createdPerformance
	if err := client.do(ctx, http.MethodPost, "/api/performances", body, &out); err != nil {
		return "", err
	}
	return out.Performance.ID, nil
}

// mutatePerformances updates every UpdateEveryNth and deletes every
// DeleteEveryNth accepted performance, returning the surviving set with
// updated values.
func mutatePerformances(ctx context.Context, cfg *Config, client *HTTPClient, accepted []submitted, rng *randSource, stats *Stats) ([]submitted, error) {
	survivors := make([]submitted, 0, len(accepted))
	for i, s := range accepted {
		n := i + 1
		if cfg.DeleteEveryNth > 0 && n%cfg.DeleteEveryNth == 0 {
			if err := client.do(ctx, http.MethodDelete, "/api/performances/"+s.ID, nil, nil); err != nil {
				return nil, fmt.Errorf("delete performance %s: %w", s.ID, err)
			}
			stats.Deleted++
			continue
		}
		if cfg.UpdateEveryNth > 0 && n%cfg.UpdateEveryNth == 0 {
			s.Value = roundTo(rng.between(0, maxValue), 2)
			if err := client.do(ctx, http.MethodPut, "/api/performances/"+s.ID, map[string]any{
				"criterionId": s.CriterionID,
				"value":       s.Value,
			}, nil); err != nil {
				return nil, fmt.Errorf("update performance %s: %w", s.ID, err)
			}
			stats.Updated++
		}
		survivors = append(survivors, s)
	}
	return survivors, nil
}
