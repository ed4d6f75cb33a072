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
	t.Setenv("TASKTRAIL_AUTH_SECRET", "0123456789abcdef")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 20, cfg.RateBurst)
	assert.Equal(t, "@every 5m", cfg.AuditStatsSchedule)
	assert.Empty(t, cfg.PostgresDSN)
	assert.Zero(t, cfg.TraceSampleRatio)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoadTrustedProxies(t *testing.T) {
	t.Setenv("TASKTRAIL_AUTH_SECRET", "0123456789abcdef")
	t.Setenv("TASKTRAIL_TRUSTED_PROXIES", " 10.0.0.0/8, ,192.168.1.1 ")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.1"}, cfg.TrustedProxies)
}

func TestLoadFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	content := "TASKTRAIL_AUTH_SECRET=file-secret-value-123\nTASKTRAIL_TOKEN_TTL=2h\nTASKTRAIL_RATE_BURST=7\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// godotenv does not override variables that are already set.
	t.Setenv("TASKTRAIL_RATE_BURST", "9")
	t.Cleanup(func() {
		_ = os.Unsetenv("TASKTRAIL_AUTH_SECRET")
		_ = os.Unsetenv("TASKTRAIL_TOKEN_TTL")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file-secret-value-123", cfg.AuthSecret)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 9, cfg.RateBurst)
}

func TestValidate(t *testing.T) {
	base := Config{
		HTTPAddr:     ":8080",
		AuthSecret:   "0123456789abcdef",
		TokenTTL:     time.Hour,
		RateBurst:    1,
		RatePerSec:   1,
		MaxBodyBytes: 1024,
	}
	require.NoError(t, base.Validate())

	cases := map[string]func(c *Config){
		"missing secret": func(c *Config) { c.AuthSecret = "" },
		"short secret":   func(c *Config) { c.AuthSecret = "short" },
		"zero ttl":       func(c *Config) { c.TokenTTL = 0 },
		"zero burst":     func(c *Config) { c.RateBurst = 0 },
		"zero body":      func(c *Config) { c.MaxBodyBytes = 0 },
		"blank addr":     func(c *Config) { c.HTTPAddr = " " },
		"ratio above 1":  func(c *Config) { c.TraceSampleRatio = 1.5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestDatabaseDSNFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.env")
	require.NoError(t, os.WriteFile(path, []byte("TASKTRAIL_PG_DSN=postgres://localhost/tasktrail\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("TASKTRAIL_PG_DSN") })

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "postgres://localhost/tasktrail", DatabaseDSN())
}
