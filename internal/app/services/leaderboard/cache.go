// Package leaderboard serves sorted score snapshots. It is a read-only
// consumer of score profiles; ranking is a plain sort over the scoring
// engine's output, cached in a redis sorted set when one is available.
package leaderboard

import (
	"context"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/habitsnap/core/internal/app/storage"
	"github.com/habitsnap/core/pkg/logger"
)

const (
	cacheKey = "habitsnap:leaderboard"
	cacheTTL = 5 * time.Minute
)

// Entry is one leaderboard row.
type Entry struct {
	UserID string `json:"user_id"`
	Score  int    `json:"score"`
}

// Cache reads score profiles and keeps a redis-backed snapshot. A nil
// redis client degrades to direct store scans; redis failures are logged
// and never surfaced to readers.
type Cache struct {
	profiles storage.ScoreStore
	client   *redis.Client
	log      *logger.Logger
}

// New creates a leaderboard cache. client may be nil.
func New(profiles storage.ScoreStore, client *redis.Client, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.NewDefault("leaderboard")
	}
	return &Cache{profiles: profiles, client: client, log: log}
}

// Top returns the highest-scored users, at most n entries.
func (c *Cache) Top(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 10
	}

	if c.client != nil {
		entries, err := c.readCache(ctx, n)
		if err == nil && entries != nil {
			return entries, nil
		}
		if err != nil {
			c.log.WithError(err).Warn("leaderboard cache read failed; falling back to store")
		}
	}

	entries, err := c.scan(ctx, n)
	if err != nil {
		return nil, err
	}
	if c.client != nil {
		if err := c.Refresh(ctx); err != nil {
			c.log.WithError(err).Warn("leaderboard cache refresh failed")
		}
	}
	return entries, nil
}

// Refresh rebuilds the cached sorted set from the score store.
func (c *Cache) Refresh(ctx context.Context) error {
	if c.client == nil {
		return nil
	}

	profiles, err := c.profiles.ListProfiles(ctx)
	if err != nil {
		return err
	}

	members := make([]*redis.Z, 0, len(profiles))
	for _, p := range profiles {
		members = append(members, &redis.Z{Score: float64(p.Score), Member: p.UserID})
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, cacheKey)
	if len(members) > 0 {
		pipe.ZAdd(ctx, cacheKey, members...)
	}
	pipe.Expire(ctx, cacheKey, cacheTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *Cache) readCache(ctx context.Context, n int) ([]Entry, error) {
	vals, err := c.client.ZRevRangeWithScores(ctx, cacheKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}

	entries := make([]Entry, 0, len(vals))
	for _, z := range vals {
		userID, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, Entry{UserID: userID, Score: int(z.Score)})
	}
	return entries, nil
}

func (c *Cache) scan(ctx context.Context, n int) ([]Entry, error) {
	profiles, err := c.profiles.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].Score != profiles[j].Score {
			return profiles[i].Score > profiles[j].Score
		}
		return profiles[i].UserID < profiles[j].UserID
	})
	if len(profiles) > n {
		profiles = profiles[:n]
	}

	entries := make([]Entry, 0, len(profiles))
	for _, p := range profiles {
		entries = append(entries, Entry{UserID: p.UserID, Score: p.Score})
	}
	return entries, nil
}
