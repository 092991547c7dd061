package simulate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/rally/pkg/logger"
)

// Run executes a complete simulation against cfg.BaseURL.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting rally simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("matches", cfg.Matches),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout),
		logger.Bool("watch", cfg.Watch))

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate matches
	matches, err := generateMatches(ctx, cfg.Matches, cfg.InvalidEvery, stats)
	if err != nil {
		return stats, fmt.Errorf("match generation failed: %w", err)
	}

	// Step 3: Subscribe to the live feed before anything is submitted
	var watcher *liveWatcher
	if cfg.Watch {
		watcher, err = watchLive(ctx, cfg.BaseURL)
		if err != nil {
			return stats, fmt.Errorf("live feed: %w", err)
		}
		defer watcher.Close()
	}

	// Step 4: Submit matches concurrently
	accepted, err := submitMatches(ctx, cfg, client, matches, stats)
	if err != nil {
		return stats, fmt.Errorf("match submission failed: %w", err)
	}

	// Step 5: Let the live feed catch up
	if watcher != nil {
		waitCtx, cancel := context.WithTimeout(ctx, LiveSettleTimeout)
		watcher.waitFor(waitCtx, stats.Accepted)
		cancel()
		stats.LiveResults = watcher.Results()
	}

	// Step 6: Verify results
	if err := verifyResults(ctx, client, accepted, stats); err != nil {
		return stats, fmt.Errorf("result verification failed: %w", err)
	}
	if watcher != nil {
		if err := verifyLive(stats); err != nil {
			return stats, fmt.Errorf("result verification failed: %w", err)
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(cfg.Out, stats, cfg.Watch)

	logger.Get().Info(ctx, "simulation completed successfully")
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	logger.Get().Info(ctx, "checking service health")

	resp, err := client.Get(ctx, "/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer closeBody(resp)

	// Any 200 is healthy; the body is Prometheus exposition.
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// displayFinalStats prints the run report.
func displayFinalStats(w io.Writer, stats *Stats, watch bool) {
	if w == nil {
		return
	}

	var acceptRate, perSecond float64
	if stats.Submitted > 0 {
		acceptRate = float64(stats.Accepted) / float64(stats.Submitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	_, _ = fmt.Fprintf(w, `
Simulation Results
==================
Duration:          %v
Matches generated: %d
Submitted:         %d
Accepted:          %d (%.2f%%)
Rejected:          %d
Failed:            %d
Throughput:        %.2f matches/sec
Last game id:      %s
Analytics ready:   %t
`,
		stats.Duration.Round(time.Millisecond),
		stats.MatchesGenerated,
		stats.Submitted,
		stats.Accepted, acceptRate,
		stats.Rejected,
		stats.Failed,
		perSecond,
		stats.LastGameID,
		stats.Ready)

	if watch {
		_, _ = fmt.Fprintf(w, "Live results:      %d\n", stats.LiveResults)
	}
}
