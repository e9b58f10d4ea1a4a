package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"quiz-arena/internal/app"
	"quiz-arena/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	versionKey  = "leaderboard:version"
	dataPattern = "leaderboard:data:*"
)

// LeaderboardCache stores rankings in Redis as JSON and falls back to the
// store on a miss. Rankings are stored as:
//
//	SET leaderboard:data:{version}:{topic}|{category}|{difficulty}|{limit} <json> EX ttl
//
// Invalidate bumps leaderboard:version, so a load that was in flight writes
// under a version nobody reads anymore.
type LeaderboardCache struct {
	client *redis.Client
	store  app.LeaderboardStore
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewLeaderboardCache(client *redis.Client, store app.LeaderboardStore, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		client: client,
		store:  store,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *LeaderboardCache) Leaderboard(ctx context.Context, query domain.LeaderboardQuery) ([]domain.LeaderboardEntry, error) {
	version, err := c.client.Get(ctx, versionKey).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		version = 0
	case err != nil:
		// Redis is unreachable; serve from the store without caching.
		return c.store.Leaderboard(ctx, query)
	}

	key := c.key(version, query)
	if entries, ok := c.lookup(ctx, key); ok {
		return entries, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if entries, ok := c.lookup(ctx, key); ok {
			return entries, nil
		}

		entries, err := c.store.Leaderboard(ctx, query)
		if err != nil {
			return nil, err
		}

		if ttl := c.ttlWithJitter(); ttl > 0 {
			if raw, err := json.Marshal(entries); err == nil {
				_ = c.client.Set(ctx, key, raw, ttl).Err()
			}
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.LeaderboardEntry), nil
}

// lookup treats Redis errors as a miss so a cache outage only costs latency.
func (c *LeaderboardCache) lookup(ctx context.Context, key string) ([]domain.LeaderboardEntry, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false
	}
	return entries, true
}

// Invalidate moves readers to a new version and removes every cached ranking.
func (c *LeaderboardCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, versionKey).Err(); err != nil {
		return fmt.Errorf("bump leaderboard version: %w", err)
	}
	iter := c.client.Scan(ctx, 0, dataPattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan leaderboard keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *LeaderboardCache) key(version int64, q domain.LeaderboardQuery) string {
	return fmt.Sprintf("leaderboard:data:%d:%s|%s|%s|%d", version, q.Topic, q.Category, q.Difficulty, q.Limit)
}

func (c *LeaderboardCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
