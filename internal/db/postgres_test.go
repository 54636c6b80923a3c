package db

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HanTheDev/tool-gateway/internal/models"
)

// These tests need a disposable Postgres; they are skipped without TEST_DATABASE_URL.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	database, err := NewDB(ctx, url)
	require.NoError(t, err)
	t.Cleanup(database.Close)
	require.NoError(t, database.EnsureSchema(ctx))
	return database
}

func newTestTenant(t *testing.T, database *DB) *models.Tenant {
	t.Helper()
	id := uuid.NewString()
	tenant := &models.Tenant{
		ID:     id,
		Name:   "tenant " + id[:8],
		Email:  id + "@example.com",
		APIKey: "key-" + id,
		Plan:   models.PlanFree,
		Status: models.StatusActive,
	}
	require.NoError(t, database.CreateTenant(context.Background(), tenant))
	return tenant
}

func TestPushContextIsIdempotentUpsert(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	tenant := newTestTenant(t, database)

	first, err := database.PushContext(ctx, tenant.ID, "notes", json.RawMessage(`{"preview":"one"}`))
	require.NoError(t, err)
	second, err := database.PushContext(ctx, tenant.ID, "notes", json.RawMessage(`{"preview":"two"}`))
	require.NoError(t, err)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

	records, err := database.ListContexts(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.JSONEq(t, `{"preview":"two"}`, string(records[0].Data))
}

func TestListContextsNewestFirst(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	tenant := newTestTenant(t, database)

	_, err := database.PushContext(ctx, tenant.ID, "a", json.RawMessage(`1`))
	require.NoError(t, err)
	_, err = database.PushContext(ctx, tenant.ID, "b", json.RawMessage(`2`))
	require.NoError(t, err)

	records, err := database.ListContexts(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].Source)
}

func TestDuplicateEmailRejected(t *testing.T) {
	database := newTestDB(t)
	tenant := newTestTenant(t, database)

	dup := &models.Tenant{
		ID:     uuid.NewString(),
		Name:   "dup",
		Email:  tenant.Email,
		APIKey: uuid.NewString(),
		Plan:   models.PlanFree,
		Status: models.StatusActive,
	}
	err := database.CreateTenant(context.Background(), dup)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestCacheExpiryAndTake(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	require.NoError(t, database.CacheSet(ctx, key, "v", time.Second))
	got, err := database.CacheGet(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	got, err = database.CacheTake(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	_, err = database.CacheTake(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, database.CacheSet(ctx, key, "v", 10*time.Millisecond))
	time.Sleep(50 * time.Millisecond)
	_, err = database.CacheGet(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	purged, err := database.PurgeExpiredCache(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, purged, int64(1))
}

func TestDelegatedCredentialRoundTrip(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	tenant := newTestTenant(t, database)

	require.NoError(t, database.SetDelegatedCredential(ctx, tenant.ID, "octocat", "gho_abc"))
	got, err := database.GetTenantByAPIKey(ctx, tenant.APIKey)
	require.NoError(t, err)
	assert.True(t, got.Connected())
	assert.True(t, got.DelegatedConnected)

	require.NoError(t, database.ClearDelegatedCredential(ctx, tenant.ID))
	got, err = database.GetTenantByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.False(t, got.Connected())
	assert.Nil(t, got.DelegatedUsername)
}
