package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SlidingWindowLimiter enforces a per-key request budget over a
// sliding window using Redis sorted sets. When Redis is unreachable it
// falls back to in-process token buckets so evaluation keeps working
// on a single node.
type SlidingWindowLimiter struct {
	client    *redis.Client
	logger    *zap.Logger
	limit     int
	window    time.Duration
	perSecond rate.Limit

	mu       sync.Mutex
	fallback map[string]*rate.Limiter
}

// NewSlidingWindowLimiter builds a limiter allowing limit requests per
// key over the window. perSecond is the refill rate of the local
// fallback buckets; zero derives it from limit and window.
func NewSlidingWindowLimiter(client *redis.Client, logger *zap.Logger, limit int, window time.Duration, perSecond int) *SlidingWindowLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	refill := rate.Limit(perSecond)
	if perSecond <= 0 {
		refill = rate.Limit(float64(limit) / window.Seconds())
	}
	return &SlidingWindowLimiter{
		client:    client,
		logger:    logger,
		limit:     limit,
		window:    window,
		perSecond: refill,
		fallback:  make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the key has budget left in the current window.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-l.window)
	limitKey := rateLimitPrefix + key

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, limitKey, "-inf", strconv.FormatInt(windowStart.UnixNano(), 10))
	countCmd := pipe.ZCard(ctx, limitKey)
	member := fmt.Sprintf("%d-%d", now.UnixNano(), now.Nanosecond()%1000)
	pipe.ZAdd(ctx, limitKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: member,
	})
	pipe.Expire(ctx, limitKey, l.window+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("rate limiter pipeline failed, using local fallback",
			zap.String("key", key),
			zap.Error(err))
		return l.allowLocal(key), nil
	}

	allowed := countCmd.Val() < int64(l.limit)
	if !allowed {
		// Drop the entry we optimistically added.
		l.client.ZRem(ctx, limitKey, member)
	}
	return allowed, nil
}

func (l *SlidingWindowLimiter) allowLocal(key string) bool {
	l.mu.Lock()
	limiter, ok := l.fallback[key]
	if !ok {
		limiter = rate.NewLimiter(l.perSecond, l.limit)
		l.fallback[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}
