package redis

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"study-companion/internal/logger"
	"study-companion/internal/oracle"
)

const keyPrefix = "oracle:response:"

// ResponseCache stores generator responses in Redis as plain strings:
//
//	SET oracle:response:{task}:{sha256} {text} EX {ttl}
//
// Redis being unavailable never fails a request; the generator is called directly.
type ResponseCache struct {
	client *redis.Client
	next   oracle.Generator
	ttl    time.Duration
	log    *zap.Logger
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewResponseCache(client *redis.Client, next oracle.Generator, ttl time.Duration, log *zap.Logger) *ResponseCache {
	return &ResponseCache{
		client: client,
		next:   next,
		ttl:    ttl,
		log:    logger.OrNop(log).Named("redis_cache"),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ResponseCache) Generate(ctx context.Context, req oracle.Request) (string, error) {
	key := keyPrefix + oracle.CacheKey(req)
	if text, ok := r.lookup(ctx, key); ok {
		return text, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if text, ok := r.lookup(ctx, key); ok {
			return text, nil
		}

		text, err := r.next.Generate(ctx, req)
		if err != nil {
			return "", err
		}
		if oracle.Cacheable(req, text) {
			if err := r.client.Set(ctx, key, text, r.ttlWithJitter()).Err(); err != nil {
				r.log.Warn("store response", zap.String("key", key), zap.Error(err))
			}
		}
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (r *ResponseCache) lookup(ctx context.Context, key string) (string, bool) {
	text, err := r.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return text, true
	case errors.Is(err, redis.Nil):
	default:
		r.log.Warn("read cached response", zap.String("key", key), zap.Error(err))
	}
	return "", false
}

func (r *ResponseCache) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
