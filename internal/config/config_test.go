package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gateway")
	t.Setenv("STATE_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 5*time.Minute, cfg.OAuthCodeTTL)
	assert.Equal(t, 15*time.Second, cfg.SSEHeartbeat)
	assert.Equal(t, "https://api.github.com", cfg.GitHubAPIURL)
	assert.False(t, cfg.GitHubEnabled())
}

func TestLoadRequiresDatabaseAndStateSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STATE_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "STATE_SECRET")
}

func TestGetEnvDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("OAUTH_CODE_TTL", "soon")
	assert.Equal(t, time.Minute, getEnvDuration("OAUTH_CODE_TTL", time.Minute))

	t.Setenv("OAUTH_CODE_TTL", "90s")
	assert.Equal(t, 90*time.Second, getEnvDuration("OAUTH_CODE_TTL", time.Minute))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("AUDIT_BUFFER_SIZE", "42")
	assert.Equal(t, 42, getEnvInt("AUDIT_BUFFER_SIZE", 7))

	t.Setenv("AUDIT_BUFFER_SIZE", "x")
	assert.Equal(t, 7, getEnvInt("AUDIT_BUFFER_SIZE", 7))
}
