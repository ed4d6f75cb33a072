package httpapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// Limiter decides whether the client identified by key may proceed. When it
// refuses, the duration says how long the client should wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

const (
	localLimiterClients = 10000
	localLimiterIdle    = 5 * time.Minute
)

// LocalLimiter keeps one token bucket per client in process memory. Idle
// buckets expire.
type LocalLimiter struct {
	mu        sync.Mutex
	buckets   *expirable.LRU[string, *rate.Limiter]
	perSecond rate.Limit
	burst     int
}

func NewLocalLimiter(burst, perSecond int) *LocalLimiter {
	return &LocalLimiter{
		buckets:   expirable.NewLRU[string, *rate.Limiter](localLimiterClients, nil, localLimiterIdle),
		perSecond: rate.Limit(perSecond),
		burst:     burst,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	lim, ok := l.buckets.Get(key)
	if !ok {
		lim = rate.NewLimiter(l.perSecond, l.burst)
	}
	l.buckets.Add(key, lim)
	l.mu.Unlock()

	if lim.Allow() {
		return true, 0, nil
	}
	return false, time.Duration(float64(time.Second) / float64(l.perSecond)), nil
}

// RedisLimiter counts requests per client in fixed windows shared by every
// replica through Redis.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: "tasktrail:ratelimit:",
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := l.prefix + key
	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("incr %s: %w", k, err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("expire %s: %w", k, err)
		}
	}
	if n <= l.limit {
		return true, 0, nil
	}
	ttl, err := l.client.PTTL(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("pttl %s: %w", k, err)
	}
	if ttl <= 0 {
		ttl = l.window
	}
	return false, ttl, nil
}
