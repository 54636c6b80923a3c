package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HanTheDev/tool-gateway/internal/models"
)

func newLimiter(t *testing.T, limits map[models.Plan]int) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	rl, err := NewRateLimiter("redis://" + srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rl.Close() })
	rl.limits = limits
	return rl, srv
}

func TestAllowEnforcesPlanLimit(t *testing.T) {
	rl, _ := newLimiter(t, map[models.Plan]int{models.PlanFree: 3})
	ctx := context.Background()
	tenant := &models.Tenant{ID: "t-1", Plan: models.PlanFree}

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, tenant)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, tenant)
	require.NoError(t, err)
	assert.False(t, ok)

	other := &models.Tenant{ID: "t-2", Plan: models.PlanFree}
	ok, err = rl.Allow(ctx, other)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowUnlimitedPlan(t *testing.T) {
	rl, srv := newLimiter(t, map[models.Plan]int{models.PlanFree: 1, models.PlanEnterprise: 0})
	tenant := &models.Tenant{ID: "t-1", Plan: models.PlanEnterprise}

	for i := 0; i < 10; i++ {
		ok, err := rl.Allow(context.Background(), tenant)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Empty(t, srv.Keys())
}

func TestWindowRollsOver(t *testing.T) {
	rl, srv := newLimiter(t, map[models.Plan]int{models.PlanFree: 1})
	ctx := context.Background()
	tenant := &models.Tenant{ID: "t-1", Plan: models.PlanFree}

	current := time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC)
	rl.now = func() time.Time { return current }

	ok, _ := rl.Allow(ctx, tenant)
	assert.True(t, ok)
	ok, _ = rl.Allow(ctx, tenant)
	assert.False(t, ok)

	current = current.Add(time.Hour)
	ok, _ = rl.Allow(ctx, tenant)
	assert.True(t, ok)

	srv.FastForward(2 * time.Hour)
	assert.Empty(t, srv.Keys())
}
