package src

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogConfig.Level)
	assert.Equal(t, "openai", cfg.LLMConfig.Provider)
	assert.Equal(t, 20*time.Second, cfg.LLMConfig.Timeout)
	assert.Equal(t, "sqlite", cfg.SessionConfig.Backend)
	assert.Equal(t, ":8080", cfg.ServerConfig.Addr)
	assert.Equal(t, 587, cfg.SMTPConfig.Port)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("DB_PATH", "/tmp/crm.db")
	t.Setenv("HTTP_REQUEST_TIMEOUT", "5s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogConfig.Level)
	assert.Equal(t, "ollama", cfg.LLMConfig.Provider)
	assert.Equal(t, "/tmp/crm.db", cfg.DatabaseConfig.Path)
	assert.Equal(t, 5*time.Second, cfg.ServerConfig.RequestTimeout)
}

func TestLoadConfigRejectsUnknownProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "mystery")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRedisNeedsURL(t *testing.T) {
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("REDIS_URL", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}
