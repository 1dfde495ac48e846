package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "Bus locations", config.Live.Path)
	assert.Equal(t, 12, config.Live.Zoom)
	assert.Equal(t, "notify-queue", config.Notify.Queue)
	assert.Equal(t, DefaultHelperFilter, config.Routes.HelperFilter)
	assert.Equal(t, "admin@busspass.com", config.Auth.AdminEmail)
	assert.Equal(t, 12*time.Hour, config.Auth.TokenTTL)
	assert.Empty(t, config.Auth.Secret)
}

func TestLoadAuthFromEnvironment(t *testing.T) {
	t.Setenv("BUSSPASS_AUTH_SECRET", "0123456789abcdef0123")
	t.Setenv("BUSSPASS_AUTH_TOKEN_TTL", "30m")

	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123", config.Auth.Secret)
	assert.Equal(t, 30*time.Minute, config.Auth.TokenTTL)

	t.Setenv("BUSSPASS_AUTH_SECRET", "short")
	_, err = Load("")
	assert.ErrorContains(t, err, "invalid config")
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "busspass.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
firebase:
  database_url: https://busspass-default-rtdb.firebaseio.com
  poll_interval: 2s
redis:
  address: redis:6379
live:
  zoom: 14
stats:
  cache_ttl: 1m
`), 0o600))

	t.Setenv("BUSSPASS_REDIS_ADDRESS", "cache:6380")
	t.Setenv("BUSSPASS_FIREBASE_POLL_INTERVAL", "500ms")

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://busspass-default-rtdb.firebaseio.com", config.Firebase.DatabaseURL)
	assert.Equal(t, 500*time.Millisecond, config.Firebase.PollInterval)
	assert.Equal(t, "cache:6380", config.Redis.Address)
	assert.Equal(t, 14, config.Live.Zoom)
	assert.Equal(t, time.Minute, config.Stats.CacheTTL)
	assert.Equal(t, "busspass", config.Redis.KeyPrefix)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "busspass.yml")
	require.NoError(t, os.WriteFile(path, []byte("live:\n  zoom: 40\n"), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "invalid config")

	t.Setenv("BUSSPASS_REDIS_DATABASE", "zero")
	_, err = Load("")
	assert.ErrorContains(t, err, "BUSSPASS_REDIS_DATABASE")
}
