package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/okian/rally/internal/domain/types"
	"github.com/okian/rally/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Get performs a GET request
func (c *HTTPClient) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body
func (c *HTTPClient) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// getJSON decodes a 200 response of path into v.
func (c *HTTPClient) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	if err := resp.Body.Close(); err != nil {
		logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
	}
}

// submitMatches posts matches with at most cfg.Workers in flight and returns
// the game ids the service accepted.
func submitMatches(ctx context.Context, cfg *Config, client *HTTPClient, matches []types.MatchRequest, stats *Stats) ([]string, error) {
	logger.Get().Info(ctx, "submitting matches",
		logger.Int("matches", len(matches)),
		logger.Int("workers", cfg.Workers))

	var (
		mu       sync.Mutex
		accepted []string
		counts   = map[string]int{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))

	for i, m := range matches {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			result, gameID := submitSingleMatch(gctx, client, m)

			mu.Lock()
			counts[result]++
			if result == resultAccepted {
				accepted = append(accepted, gameID)
			}
			mu.Unlock()

			if cfg.Verbose {
				logger.Get().Debug(gctx, "match submitted",
					logger.Int("index", i),
					logger.String("result", result),
					logger.String("game_id", gameID))
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.Submitted = counts[resultAccepted] + counts[resultRejected] + counts[resultFailed]
	stats.Accepted = counts[resultAccepted]
	stats.Rejected = counts[resultRejected]
	stats.Failed = counts[resultFailed]

	logger.Get().Info(ctx, "match submission completed",
		logger.Int("accepted", stats.Accepted),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed))

	if err := ctx.Err(); err != nil {
		return accepted, fmt.Errorf("submission interrupted: %w", err)
	}
	return accepted, nil
}

// submitSingleMatch posts one match and classifies the response.
func submitSingleMatch(ctx context.Context, client *HTTPClient, m types.MatchRequest) (string, string) {
	resp, err := client.Post(ctx, "/matches", m)
	if err != nil {
		return resultFailed, ""
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusAccepted:
		var res types.MatchResult
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil || res.GameID == "" {
			return resultFailed, ""
		}
		return resultAccepted, res.GameID
	case http.StatusBadRequest:
		return resultRejected, ""
	default:
		return resultFailed, ""
	}
}
