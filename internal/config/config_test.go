package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "larder.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsNeedSecret(t *testing.T) {
	_, err := load("", env(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWTSecret")

	cfg, err := load("", env(map[string]string{"LARDER_JWT_SECRET": "0123456789abcdef"}))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 30, cfg.Storage.MaxBatchSize)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
storage:
  driver: memory
  max_batch_size: 10
auth:
  jwt_secret: file-secret-0123456789
  token_ttl: 2h
log:
  level: debug
`)
	cfg, err := load(path, env(nil))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 10, cfg.Storage.MaxBatchSize)
	assert.Equal(t, "file-secret-0123456789", cfg.Auth.JWTSecret)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\nauth:\n  jwt_secret: file-secret-0123456789\n")
	cfg, err := load(path, env(map[string]string{
		"LARDER_PORT":           "7070",
		"LARDER_DB_PATH":        "/tmp/other.db",
		"LARDER_MAX_BATCH_SIZE": "5",
		"LARDER_TOKEN_TTL":      "15m",
		"LARDER_LOG_LEVEL":      "warn",
	}))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/tmp/other.db", cfg.Storage.Path)
	assert.Equal(t, 5, cfg.Storage.MaxBatchSize)
	assert.Equal(t, 15*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestInvalid(t *testing.T) {
	secret := "0123456789abcdef"
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"bad port", map[string]string{"LARDER_PORT": "http", "LARDER_JWT_SECRET": secret}},
		{"port out of range", map[string]string{"LARDER_PORT": "70000", "LARDER_JWT_SECRET": secret}},
		{"unknown driver", map[string]string{"LARDER_STORAGE_DRIVER": "mongo", "LARDER_JWT_SECRET": secret}},
		{"sqlite without path", map[string]string{"LARDER_DB_PATH": "", "LARDER_JWT_SECRET": secret}},
		{"short secret", map[string]string{"LARDER_JWT_SECRET": "short"}},
		{"bad ttl", map[string]string{"LARDER_TOKEN_TTL": "soon", "LARDER_JWT_SECRET": secret}},
		{"bad level", map[string]string{"LARDER_LOG_LEVEL": "loud", "LARDER_JWT_SECRET": secret}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load("", env(tt.vars))
			assert.Error(t, err)
		})
	}
}

func TestMissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "nope.yaml"), env(nil))
	assert.Error(t, err)
}
