package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"noesis-backend/internal/config"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Stores.Backend)
	assert.Equal(t, "mock", cfg.Gateway.Provider)
	assert.Equal(t, uint32(5), cfg.Gateway.BreakerConsecutiveFailures)
	assert.Equal(t, 30*time.Second, cfg.Gateway.BreakerOpenTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Gateway.ResponseCacheTTL)
	assert.Equal(t, 4, cfg.Saga.RetryMaxAttempts)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9090"
gateway:
  breaker_consecutive_failures: 10
  response_cache_ttl: 1m
saga:
  retry_max_attempts: 5
log_level: debug
`), 0o600))

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, uint32(10), cfg.Gateway.BreakerConsecutiveFailures)
	assert.Equal(t, time.Minute, cfg.Gateway.ResponseCacheTTL)
	assert.Equal(t, 5, cfg.Saga.RetryMaxAttempts)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched sections keep their defaults.
	assert.Equal(t, "memory", cfg.Stores.Backend)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: \":9090\"\n"), 0o600))
	t.Setenv("SERVER_ADDRESS", ":7070")
	t.Setenv("SAGA_RETRY_MAX_ATTEMPTS", "7")

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, 7, cfg.Saga.RetryMaxAttempts)
}

func TestLoad_ValidationFailures(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "papyrus")
		_, err := config.Load("")
		assert.Error(t, err)
	})

	t.Run("openai provider requires a key", func(t *testing.T) {
		t.Setenv("REASONING_PROVIDER", "openai")
		t.Setenv("OPENAI_API_KEY", "")
		_, err := config.Load("")
		assert.Error(t, err)
	})

	t.Run("durable backend requires a table", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "durable")
		t.Setenv("DYNAMODB_TABLE", "")
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("stores:\n  dynamodb_table: \"\"\n"), 0o600))
		_, err := config.Load(path)
		assert.Error(t, err)
	})
}

func TestDefaultLimits(t *testing.T) {
	limits := config.DefaultLimits()

	assert.Equal(t, 50, limits.MaxThesisQuantity)
	assert.Equal(t, 100, limits.MaxCategoriesPerConcept)
	assert.Equal(t, 32, limits.MaxConcurrentAsyncPlans)
}

func TestWatcher_ReloadsOnFileChange(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	path := filepath.Join(dir, "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_thesis_quantity: 10\nmax_categories_per_concept: 20\nmax_concurrent_async_plans: 4\n"), 0o600))

	watcher, err := config.NewWatcher(path, zap.NewNop())
	require.NoError(t, err)
	defer watcher.Stop()

	require.Equal(t, 10, watcher.Limits().MaxThesisQuantity)

	changed := make(chan config.Limits, 1)
	watcher.OnChange(func(limits config.Limits) {
		select {
		case changed <- limits:
		default:
		}
	})

	// Act
	require.NoError(t, os.WriteFile(path, []byte("max_thesis_quantity: 25\nmax_categories_per_concept: 20\nmax_concurrent_async_plans: 4\n"), 0o600))

	// Assert
	select {
	case limits := <-changed:
		assert.Equal(t, 25, limits.MaxThesisQuantity)
		assert.Equal(t, 25, watcher.Limits().MaxThesisQuantity)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never observed the rewrite")
	}
}
