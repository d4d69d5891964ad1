package leaderboard

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/likhity/photohunter-backend/internal/config"
)

const completionsKey = "leaderboard:completions"

// Entry is one row of the completion leaderboard.
type Entry struct {
	UserID      string  `json:"user_id"`
	Completions float64 `json:"completions"`
}

// Board keeps a redis sorted set of completion counts. Every operation
// is best-effort: the ledger in Postgres stays authoritative and a redis
// outage must never affect a submission.
type Board struct {
	client *redis.Client
	logger zerolog.Logger
}

func New(cfg config.RedisConfig, logger zerolog.Logger) *Board {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Board{client: rdb, logger: logger}
}

// Increment bumps the user's score by one.
func (b *Board) Increment(ctx context.Context, userID string) {
	if err := b.client.ZIncrBy(ctx, completionsKey, 1, userID).Err(); err != nil {
		b.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to update leaderboard")
	}
}

// Top returns the highest-scoring users, best first.
func (b *Board) Top(ctx context.Context, n int64) ([]Entry, error) {
	scores, err := b.client.ZRevRangeWithScores(ctx, completionsKey, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(scores))
	for _, z := range scores {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, Entry{UserID: id, Completions: z.Score})
	}
	return entries, nil
}
