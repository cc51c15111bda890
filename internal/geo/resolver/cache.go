package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/EmpoweredVote/EV-Globe/internal/metrics"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// ResultCache stores resolved results keyed by CacheKey.
type ResultCache interface {
	Get(ctx context.Context, key string) (Result, bool)
	Set(ctx context.Context, key string, r Result)
	Flush(ctx context.Context)
}

// CacheKey rounds to 1e-5 degrees (about a metre).
func CacheKey(lat, lon float64) string {
	return fmt.Sprintf("%.5f,%.5f", lat, lon)
}

// LocalCache is an in-process TTL cache.
type LocalCache struct {
	c *gocache.Cache
}

func NewLocalCache(ttl time.Duration) *LocalCache {
	return &LocalCache{c: gocache.New(ttl, 2*ttl)}
}

func (l *LocalCache) Get(_ context.Context, key string) (Result, bool) {
	v, ok := l.c.Get(key)
	if !ok {
		return Result{}, false
	}
	r, ok := v.(Result)
	if ok {
		metrics.ResultCacheHitsTotal.WithLabelValues("local").Inc()
	}
	return r.Clone(), ok
}

// Set stores a private copy; Get hands out copies too.
func (l *LocalCache) Set(_ context.Context, key string, r Result) {
	l.c.Set(key, r.Clone(), gocache.DefaultExpiration)
}

func (l *LocalCache) Flush(context.Context) {
	l.c.Flush()
}

const redisKeyPrefix = "geo:resolve:"

// RedisCache shares results between instances. Redis errors are logged and
// treated as misses.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// OpenRedis returns nil when addr is empty.
func OpenRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Result, bool) {
	s, err := c.rdb.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[resolver] redis get %s: %v", key, err)
		}
		return Result{}, false
	}
	var r Result
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return Result{}, false
	}
	metrics.ResultCacheHitsTotal.WithLabelValues("redis").Inc()
	return r, true
}

func (c *RedisCache) Set(ctx context.Context, key string, r Result) {
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+key, b, c.ttl).Err(); err != nil {
		log.Printf("[resolver] redis set %s: %v", key, err)
	}
}

func (c *RedisCache) Flush(ctx context.Context) {
	iter := c.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 500).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 500 {
			c.del(ctx, batch)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		log.Printf("[resolver] redis scan: %v", err)
	}
	c.del(ctx, batch)
}

func (c *RedisCache) del(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		log.Printf("[resolver] redis del: %v", err)
	}
}

// Tiered checks caches in order and copies a hit into the earlier tiers.
type Tiered []ResultCache

func (t Tiered) Get(ctx context.Context, key string) (Result, bool) {
	for i, c := range t {
		if r, ok := c.Get(ctx, key); ok {
			for _, earlier := range t[:i] {
				earlier.Set(ctx, key, r)
			}
			return r, true
		}
	}
	return Result{}, false
}

func (t Tiered) Set(ctx context.Context, key string, r Result) {
	for _, c := range t {
		c.Set(ctx, key, r)
	}
}

func (t Tiered) Flush(ctx context.Context) {
	for _, c := range t {
		c.Flush(ctx)
	}
}
