package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  postgres:
    host: localhost
    database: progression
    user: app
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5.0, cfg.Engine.MaxMultiplier)
	assert.Equal(t, 5, cfg.Engine.MaxMutationRetries)
	assert.Equal(t, "0 0 * * *", cfg.Scheduler.DailyResetCron)
	assert.Equal(t, "progression:invalidate", cfg.Database.Redis.InvalidationChannel)
	assert.False(t, cfg.Database.Redis.RedisEnabled())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
database:
  postgres:
    host: localhost
    database: progression
    user: app
engine:
  max_multiplier: 3
`)
	t.Setenv("ENGINE_MAX_MULTIPLIER", "2.5")
	t.Setenv("REDIS_HOST", "cache")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2.5, cfg.Engine.MaxMultiplier)
	assert.True(t, cfg.Database.Redis.RedisEnabled())
	assert.Equal(t, "cache:6379", cfg.Database.Redis.Addr())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Postgres: PostgresConfig{Host: "h", Database: "d", User: "u"}},
			Engine:   EngineConfig{MaxMultiplier: 5, MaxMutationRetries: 3, DayTimezone: "UTC"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing host", func(c *Config) { c.Database.Postgres.Host = "" }, "database.postgres.host"},
		{"zero multiplier", func(c *Config) { c.Engine.MaxMultiplier = 0 }, "max_multiplier"},
		{"no retries", func(c *Config) { c.Engine.MaxMutationRetries = 0 }, "max_mutation_retries"},
		{"bad timezone", func(c *Config) { c.Engine.DayTimezone = "Mars/Olympus" }, "day_timezone"},
		{"bad scheduler timezone", func(c *Config) {
			c.Scheduler.Enabled = true
			c.Scheduler.Timezone = "Nowhere/Land"
		}, "scheduler.timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNotificationTimeout(t *testing.T) {
	c := NotificationsConfig{}
	assert.Equal(t, 10*time.Second, c.NotificationTimeout())
	c.TimeoutSeconds = 3
	assert.Equal(t, 3*time.Second, c.NotificationTimeout())
}
