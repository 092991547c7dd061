package simulate

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/okian/rally/internal/domain/types"
	"github.com/okian/rally/pkg/logger"
)

// Verification errors.
var (
	ErrNothingAccepted  = errors.New("no match was accepted")
	ErrUnexpectedLast   = errors.New("last result is not one of the submitted matches")
	ErrLiveResultsShort = errors.New("live feed missed result messages")
)

// verifyResults checks that the service's last result is one of the matches
// this run submitted and that the status endpoint answers.
func verifyResults(ctx context.Context, client *HTTPClient, accepted []string, stats *Stats) error {
	logger.Get().Info(ctx, "verifying results")

	var st types.Status
	if err := client.getJSON(ctx, "/status", &st); err != nil {
		return fmt.Errorf("status: %w", err)
	}
	stats.Ready = st.Ready

	if len(accepted) == 0 {
		return ErrNothingAccepted
	}

	var last types.MatchResult
	if err := client.getJSON(ctx, "/matches/last", &last); err != nil {
		return fmt.Errorf("last result: %w", err)
	}
	stats.LastGameID = last.GameID

	if !slices.Contains(accepted, last.GameID) {
		return fmt.Errorf("%w: %s", ErrUnexpectedLast, last.GameID)
	}

	logger.Get().Info(ctx, "verification passed",
		logger.String("lastGameId", last.GameID),
		logger.Bool("ready", st.Ready))
	return nil
}

// verifyLive checks the live feed saw a result for every accepted match.
func verifyLive(stats *Stats) error {
	if stats.LiveResults < stats.Accepted {
		return fmt.Errorf("%w: %d of %d", ErrLiveResultsShort, stats.LiveResults, stats.Accepted)
	}
	return nil
}
