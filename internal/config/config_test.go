package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"server": {"environment": "development"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 24, cfg.Server.JWTExpiryH)
	assert.Equal(t, "disable", cfg.Postgres.SSLMode)
	assert.Equal(t, 3600, cfg.Admission.WindowSeconds)
	assert.Equal(t, 3, cfg.OpenAI.MaxRetries)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `{"server": {"port": "9000"}, "admission": {"window_seconds": 60}}`)

	t.Setenv("PORT", "7070")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("ADMISSION_WINDOW_SECONDS", "120")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Server.JWTSecret)
	assert.Equal(t, 120, cfg.Admission.WindowSeconds)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{
		Host:     "db",
		Port:     "5432",
		User:     "scholarmark",
		Password: "secret",
		Database: "scholarmark",
		SSLMode:  "disable",
	}

	assert.Equal(t, "host=db port=5432 user=scholarmark password=secret dbname=scholarmark sslmode=disable", cfg.DSN())
}

func TestRedisAddr(t *testing.T) {
	cfg := RedisConfig{Host: "cache", Port: "6379"}
	assert.Equal(t, "cache:6379", cfg.GetRedisAddr())
}
