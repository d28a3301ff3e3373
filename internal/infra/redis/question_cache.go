package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"mindquake-service/internal/domain"
	"mindquake-service/internal/infra/memory"
)

// QuestionCache caches trivia question pools in Redis and falls back to a loader on cache miss.
// Pools are stored as JSON: SET trivia:pool:{difficulty}:{category} [...] EX ttl
type QuestionCache struct {
	client *redis.Client
	loader memory.PoolLoader
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader memory.PoolLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) GetPool(ctx context.Context, category string, difficulty domain.Difficulty) ([]domain.Question, error) {
	key := c.poolKey(category, difficulty)

	if pool, ok := c.cached(ctx, key); ok {
		return pool, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if pool, ok := c.cached(ctx, key); ok {
			return pool, nil
		}

		pool, err := c.loader.LoadPool(ctx, category, difficulty)
		if err != nil {
			return nil, err
		}
		if len(pool) == 0 {
			return pool, nil
		}

		data, err := json.Marshal(pool)
		if err != nil {
			return nil, fmt.Errorf("encode pool: %w", err)
		}
		// The pool is still usable when the cache write fails.
		if err := c.client.Set(ctx, key, data, c.ttlWithJitter()).Err(); err != nil {
			slog.Warn("cache question pool", "key", key, "error", err)
		}
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) cached(ctx context.Context, key string) ([]domain.Question, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("read cached question pool", "key", key, "error", err)
		}
		return nil, false
	}
	var pool []domain.Question
	if err := json.Unmarshal(data, &pool); err != nil || len(pool) == 0 {
		return nil, false
	}
	return pool, true
}

func (c *QuestionCache) poolKey(category string, difficulty domain.Difficulty) string {
	return "trivia:pool:" + string(difficulty) + ":" + category
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
