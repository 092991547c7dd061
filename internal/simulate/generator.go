package simulate

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/internal/domain/types"
	"github.com/okian/rally/pkg/logger"
)

// generateMatches creates n match requests between distinct random players.
// When invalidEvery > 0, every invalidEvery-th match names the same player
// twice so the service rejects it.
func generateMatches(ctx context.Context, n, invalidEvery int, stats *Stats) ([]types.MatchRequest, error) {
	logger.Get().Info(ctx, "generating matches", logger.Int("matches", n))

	sports := model.Sports()
	matches := make([]types.MatchRequest, n)
	for i := range matches {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during generation: %w", err)
		}
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(sports))))
		if err != nil {
			return nil, fmt.Errorf("pick sport: %w", err)
		}
		winner := contact()
		loser := contact()
		if invalidEvery > 0 && (i+1)%invalidEvery == 0 {
			loser = winner
		}
		matches[i] = types.MatchRequest{
			SportType: string(sports[idx.Int64()]),
			Winner:    winner,
			Loser:     loser,
		}
	}

	stats.MatchesGenerated = len(matches)
	logger.Get().Info(ctx, "generated matches successfully", logger.Int("count", len(matches)))
	return matches, nil
}

func contact() string {
	return "player-" + uuid.NewString() + "@" + ContactDomain
}
