package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"study-companion/internal/oracle"
)

// ResponseCache keeps generator responses in process memory so repeated
// requests over the same document skip the provider.
type ResponseCache struct {
	next  oracle.Generator
	ttl   time.Duration
	cache *cache.Cache
	sf    singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewResponseCache(next oracle.Generator, ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		next:  next,
		ttl:   ttl,
		cache: cache.New(ttl, ttl),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ResponseCache) Generate(ctx context.Context, req oracle.Request) (string, error) {
	key := oracle.CacheKey(req)
	if text, ok := c.lookup(key); ok {
		return text, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if text, ok := c.lookup(key); ok {
			return text, nil
		}
		text, err := c.next.Generate(ctx, req)
		if err != nil {
			return "", err
		}
		if oracle.Cacheable(req, text) {
			c.cache.Set(key, text, c.ttlWithJitter())
		}
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Len reports the number of unexpired entries.
func (c *ResponseCache) Len() int {
	return c.cache.ItemCount()
}

func (c *ResponseCache) lookup(key string) (string, bool) {
	if x, found := c.cache.Get(key); found {
		return x.(string), true
	}
	return "", false
}

func (c *ResponseCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return cache.NoExpiration
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
