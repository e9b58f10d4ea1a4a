package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"quiz-arena/internal/app"
	"quiz-arena/internal/domain"

	"golang.org/x/sync/singleflight"
)

// LeaderboardCache caches rankings with TTL to avoid recomputing them on every request.
type LeaderboardCache struct {
	store app.LeaderboardStore
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand
	rndMu sync.Mutex

	mu    sync.RWMutex
	gen   uint64
	cache map[string]cachedRanking
}

type cachedRanking struct {
	entries   []domain.LeaderboardEntry
	expiresAt time.Time
}

func NewLeaderboardCache(store app.LeaderboardStore, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		store: store,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[string]cachedRanking),
	}
}

func (c *LeaderboardCache) Leaderboard(ctx context.Context, query domain.LeaderboardQuery) ([]domain.LeaderboardEntry, error) {
	key := CacheKey(query)
	if entries, ok := c.lookup(key); ok {
		return entries, nil
	}

	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()

	// Loads started before an Invalidate never share a flight with later callers.
	flight := fmt.Sprintf("%d/%s", gen, key)
	result, err, _ := c.sf.Do(flight, func() (interface{}, error) {
		if entries, ok := c.lookup(key); ok {
			return entries, nil
		}

		entries, err := c.store.Leaderboard(ctx, query)
		if err != nil {
			return nil, err
		}

		if c.ttl > 0 {
			c.mu.Lock()
			// a ranking loaded before an Invalidate is stale
			if c.gen == gen {
				c.cache[key] = cachedRanking{
					entries:   entries,
					expiresAt: c.clock().Add(c.ttlWithJitter()),
				}
			}
			c.mu.Unlock()
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneEntries(result.([]domain.LeaderboardEntry)), nil
}

func (c *LeaderboardCache) lookup(key string) ([]domain.LeaderboardEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[key]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return nil, false
	}
	return cloneEntries(entry.entries), true
}

// Invalidate drops every cached ranking. Loads already in flight still return
// to their callers but are not cached.
func (c *LeaderboardCache) Invalidate(context.Context) error {
	c.mu.Lock()
	c.gen++
	c.cache = make(map[string]cachedRanking)
	c.mu.Unlock()
	return nil
}

func (c *LeaderboardCache) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// CacheKey identifies a leaderboard query.
func CacheKey(q domain.LeaderboardQuery) string {
	return fmt.Sprintf("%s|%s|%s|%d", q.Topic, q.Category, q.Difficulty, q.Limit)
}

func cloneEntries(entries []domain.LeaderboardEntry) []domain.LeaderboardEntry {
	return append([]domain.LeaderboardEntry(nil), entries...)
}
