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
	t.Setenv("AUTH_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, EventsLocal, cfg.Events.Driver)
	assert.Equal(t, 72*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.IdleTTL)
	assert.Equal(t, time.Minute, cfg.Sessions.SweepInterval)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Empty(t, cfg.Catalog.Dir)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORAGE_DRIVER", "MEMORY")
	t.Setenv("EVENTS_DRIVER", "redis")
	t.Setenv("SESSION_IDLE_TTL", "5m")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SAMPLE_RATIO", "0.25")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, EventsRedis, cfg.Events.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Sessions.IdleTTL)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, 0.25, cfg.Tracing.SampleRatio)
	assert.Equal(t, 0, cfg.Redis.DB)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("AUTH_JWT_SECRET=from-file\nSTORAGE_DRIVER=memory\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	// godotenv sets process env; clear what it wrote after the test
	t.Setenv("AUTH_JWT_SECRET", "")
	os.Unsetenv("AUTH_JWT_SECRET")
	t.Setenv("STORAGE_DRIVER", "")
	os.Unsetenv("STORAGE_DRIVER")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{DSN: "postgres://localhost"},
			Storage:  StorageConfig{Driver: StoragePostgres},
			Events:   EventsConfig{Driver: EventsLocal},
			Auth:     AuthConfig{JWTSecret: "secret"},
			Sessions: SessionsConfig{IdleTTL: time.Minute, SweepInterval: time.Minute},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown storage", func(c *Config) { c.Storage.Driver = "sqlite" }},
		{"unknown events", func(c *Config) { c.Events.Driver = "kafka" }},
		{"postgres without dsn", func(c *Config) { c.Database.DSN = "" }},
		{"postgres events without dsn", func(c *Config) {
			c.Storage.Driver = StorageMemory
			c.Events.Driver = EventsPostgres
			c.Database.DSN = ""
		}},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"zero idle ttl", func(c *Config) { c.Sessions.IdleTTL = 0 }},
		{"zero sweep", func(c *Config) { c.Sessions.SweepInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	memory := valid()
	memory.Storage.Driver = StorageMemory
	memory.Database.DSN = ""
	assert.NoError(t, memory.Validate())
}
