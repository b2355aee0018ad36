package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		ChannelSecret: "secret",
		ChannelToken:  "token",
		LLMProvider:   "gemini",
		LLMAPIKey:     "key",
		StoreBackend:  "memory",
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLMProvider)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 30*time.Minute, cfg.ContextTTL)
	assert.Equal(t, 5*time.Minute, cfg.DedupWindow)
	assert.Equal(t, ":3000", cfg.ListenAddr)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("KAIWA_CHANNEL_SECRET", "env-secret")
	t.Setenv("KAIWA_CHANNEL_TOKEN", "env-token")
	t.Setenv("KAIWA_STORE_BACKEND", "redis")
	t.Setenv("KAIWA_CONTEXT_TTL", "45m")
	t.Setenv("KAIWA_LISTEN_ADDR", ":8080")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.ChannelSecret)
	assert.Equal(t, "env-token", cfg.ChannelToken)
	assert.Equal(t, "redis", cfg.StoreBackend)
	assert.Equal(t, 45*time.Minute, cfg.ContextTTL)
	assert.Equal(t, ":8080", cfg.ListenAddr)
}

func TestLoad_ProviderKeyFallback(t *testing.T) {
	t.Setenv("KAIWA_LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", cfg.LLMAPIKey)
}

func TestLoad_ExplicitKeyBeatsFallback(t *testing.T) {
	t.Setenv("KAIWA_LLM_API_KEY", "explicit")
	t.Setenv("GOOGLE_AI_API_KEY", "fallback")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "explicit", cfg.LLMAPIKey)
}

func TestValidate_Complete(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_MissingCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.ChannelSecret = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.ChannelToken = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_UnknownBackend(t *testing.T) {
	cfg := validConfig()
	cfg.StoreBackend = "etcd"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store backend")
}

func TestValidate_MissingAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.LLMAPIKey = ""
	assert.Error(t, cfg.Validate())
}
