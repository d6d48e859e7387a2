package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coo-agent/coo-backend/internal/common"
)

// Limiter is a fixed-window counter over redis. The social poller uses one
// key per platform so that every replica shares the same hourly budget.
type Limiter struct {
	rdb *redis.Client
}

func NewLimiter(addr, password string, db int) *Limiter {
	return &Limiter{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Allow increments the window counter and fails with ErrRateLimited once the
// count passes limit. The window key expires on first increment.
func (l *Limiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) error {
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("rate limit incr: %w", err)
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, key, window).Err(); err != nil {
			return fmt.Errorf("rate limit expire: %w", err)
		}
	}
	if n > limit {
		return fmt.Errorf("%w: %s exceeded %d per %s", common.ErrRateLimited, key, limit, window)
	}
	return nil
}

func (l *Limiter) Close() error {
	return l.rdb.Close()
}
