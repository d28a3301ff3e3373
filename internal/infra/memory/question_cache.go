package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"mindquake-service/internal/domain"
)

// PoolLoader fetches a question pool from the trivia provider.
type PoolLoader interface {
	LoadPool(ctx context.Context, category string, difficulty domain.Difficulty) ([]domain.Question, error)
}

// QuestionCache caches question pools with TTL to avoid hammering the provider,
// which rate limits aggressively.
type QuestionCache struct {
	loader PoolLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedPool
}

type cachedPool struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionCache(loader PoolLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedPool),
	}
}

func (c *QuestionCache) GetPool(ctx context.Context, category string, difficulty domain.Difficulty) ([]domain.Question, error) {
	key := poolKey(category, difficulty)
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.questions, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.questions, nil
		}
		c.mu.RUnlock()

		questions, err := c.loader.LoadPool(ctx, category, difficulty)
		if err != nil {
			return nil, err
		}
		// An empty pool is not cached so the next quiz asks the provider again.
		if len(questions) == 0 {
			return questions, nil
		}

		c.mu.Lock()
		c.cache[key] = cachedPool{
			questions: questions,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func poolKey(category string, difficulty domain.Difficulty) string {
	return string(difficulty) + ":" + category
}

// StaticPoolLoader is a simple loader backed by an in-memory map keyed by category
// (useful for tests/demos). It ignores difficulty.
type StaticPoolLoader struct {
	pools map[string][]domain.Question
}

func NewStaticPoolLoader(pools map[string][]domain.Question) *StaticPoolLoader {
	return &StaticPoolLoader{pools: pools}
}

func (l *StaticPoolLoader) LoadPool(_ context.Context, category string, _ domain.Difficulty) ([]domain.Question, error) {
	return l.pools[category], nil
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
