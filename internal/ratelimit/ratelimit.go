package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HanTheDev/tool-gateway/internal/models"
)

// Hourly tool-call allowance per plan. Zero means unlimited.
var PlanLimits = map[models.Plan]int{
	models.PlanFree:       200,
	models.PlanPro:        5000,
	models.PlanEnterprise: 0,
}

type RateLimiter struct {
	client *redis.Client
	limits map[models.Plan]int
	now    func() time.Time
}

func NewRateLimiter(redisURL string) (*RateLimiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
	}

	return NewRateLimiterFromClient(redis.NewClient(opt)), nil
}

func NewRateLimiterFromClient(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client, limits: PlanLimits, now: time.Now}
}

// Allow counts one call against the tenant's current hourly window.
func (rl *RateLimiter) Allow(ctx context.Context, tenant *models.Tenant) (bool, error) {
	limit, ok := rl.limits[tenant.Plan]
	if !ok {
		limit = rl.limits[models.PlanFree]
	}
	if limit <= 0 {
		return true, nil
	}

	key := fmt.Sprintf("ratelimit:tenant:%s:%s", tenant.ID, rl.now().UTC().Format("2006-01-02-15"))

	// The window is part of the key, so refreshing the expiry on every call is harmless.
	var incr *redis.IntCmd
	if _, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, time.Hour)
		return nil
	}); err != nil {
		return false, fmt.Errorf("ratelimit: count call: %w", err)
	}

	return incr.Val() <= int64(limit), nil
}

func (rl *RateLimiter) Close() error {
	return rl.client.Close()
}
