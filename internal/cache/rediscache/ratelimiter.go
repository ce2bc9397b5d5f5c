package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RateLimiter ограничивает частоту обращений к платному геопровайдеру.
type RateLimiter struct {
	c *redis.Client
}

func NewRateLimiter(addr string) *RateLimiter {
	return &RateLimiter{
		c: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// Allow делает INCR по ключу и ставит TTL, если ключ создаётся впервые.
// Возвращает (allowed, currentCount).
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := incr.Val()
	return n <= limit, n, nil
}

// CallBudget wraps a RateLimiter with a fixed per-minute budget for
// provider operations ("directions", "geocode", ...).
type CallBudget struct {
	rl        *RateLimiter
	perMinute int64
}

func NewCallBudget(rl *RateLimiter, perMinute int64) *CallBudget {
	return &CallBudget{rl: rl, perMinute: perMinute}
}

// AllowCall reports whether one more provider call fits the current window.
// A zero budget disables limiting.
func (b *CallBudget) AllowCall(ctx context.Context, op string) (bool, error) {
	if b == nil || b.rl == nil || b.perMinute <= 0 {
		return true, nil
	}
	ok, _, err := b.rl.Allow(ctx, "geoprovider:"+op, b.perMinute, time.Minute)
	return ok, err
}
