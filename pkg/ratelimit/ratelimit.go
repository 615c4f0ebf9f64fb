package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	extratelimit "github.com/vnmchuo/ratelimiter"
)

// Quota caps calls to a metered provider across every caller and every
// instance sharing the Redis store. It is a thin wrapper around
// github.com/vnmchuo/ratelimiter.
type Quota struct {
	store extratelimit.Limiter
}

func NewQuota(rdb *redis.Client, perMinute int64) *Quota {
	store := extratelimit.NewRedisStore(rdb,
		extratelimit.WithLimit(int(perMinute)),
		extratelimit.WithWindow(time.Minute),
	)
	return &Quota{store: store}
}

func NewTestQuota(store extratelimit.Limiter) *Quota {
	return &Quota{store: store}
}

// Allow consumes one call from the provider's budget.
func (q *Quota) Allow(ctx context.Context, provider string) (bool, error) {
	res, err := q.store.Allow(ctx, key(provider))
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

func (q *Quota) Status(ctx context.Context, provider string) (*extratelimit.Result, error) {
	return q.store.Status(ctx, key(provider))
}

func key(provider string) string {
	return fmt.Sprintf("ratelimit:provider:%s", provider)
}
