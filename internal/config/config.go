// Package config loads kaiwabot's runtime configuration. Values come from
// environment variables (prefix KAIWA_), a local .env file, and defaults, in
// that priority order.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"kaiwabot/internal/logger"
)

// Config holds every runtime setting the bot reads at startup.
type Config struct {
	// LINE channel credentials, required.
	ChannelSecret string
	ChannelToken  string

	// Pre-provisioned rich menu IDs; empty disables menu switching.
	RichMenuMainID         string
	RichMenuConversationID string

	// LLM backend selection.
	LLMProvider string
	LLMModel    string
	LLMAPIKey   string

	// Store backend: memory, redis or dynamodb.
	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DynamoTable   string

	// Lifecycle windows.
	ContextTTL  time.Duration
	DedupWindow time.Duration

	// HTTP listen address.
	ListenAddr string
}

// Load reads configuration with priority: environment > .env > defaults.
func Load() (*Config, error) {
	// Best-effort .env for local development; a missing file is fine.
	if err := godotenv.Load(); err == nil {
		logger.Debug("Loaded .env file")
	}

	v := viper.New()
	v.SetEnvPrefix("KAIWA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("llm_provider", "gemini")
	v.SetDefault("llm_model", "gemini-2.0-flash")
	v.SetDefault("store_backend", "memory")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("dynamo_table", "kaiwabot-state")
	v.SetDefault("context_ttl", "30m")
	v.SetDefault("dedup_window", "5m")
	v.SetDefault("listen_addr", ":3000")

	cfg := &Config{
		ChannelSecret:          v.GetString("channel_secret"),
		ChannelToken:           v.GetString("channel_token"),
		RichMenuMainID:         v.GetString("richmenu_main_id"),
		RichMenuConversationID: v.GetString("richmenu_conversation_id"),
		LLMProvider:            v.GetString("llm_provider"),
		LLMModel:               v.GetString("llm_model"),
		LLMAPIKey:              v.GetString("llm_api_key"),
		StoreBackend:           v.GetString("store_backend"),
		RedisAddr:              v.GetString("redis_addr"),
		RedisPassword:          v.GetString("redis_password"),
		RedisDB:                v.GetInt("redis_db"),
		DynamoTable:            v.GetString("dynamo_table"),
		ContextTTL:             v.GetDuration("context_ttl"),
		DedupWindow:            v.GetDuration("dedup_window"),
		ListenAddr:             v.GetString("listen_addr"),
	}

	if cfg.LLMAPIKey == "" {
		cfg.LLMAPIKey = apiKeyFromProviderEnv(cfg.LLMProvider)
	}

	return cfg, nil
}

// Validate checks the settings the bot cannot run without.
func (c *Config) Validate() error {
	if c.ChannelSecret == "" {
		return fmt.Errorf("KAIWA_CHANNEL_SECRET is required")
	}
	if c.ChannelToken == "" {
		return fmt.Errorf("KAIWA_CHANNEL_TOKEN is required")
	}

	switch c.StoreBackend {
	case "memory", "redis", "dynamodb":
	default:
		return fmt.Errorf("unsupported store backend %q (expected memory, redis or dynamodb)", c.StoreBackend)
	}

	if c.LLMAPIKey == "" {
		return fmt.Errorf("no API key configured for provider %q (set KAIWA_LLM_API_KEY or the provider's environment variable)", c.LLMProvider)
	}
	return nil
}

// apiKeyFromProviderEnv falls back to each provider's conventional
// environment variable when no KAIWA_LLM_API_KEY is set.
func apiKeyFromProviderEnv(provider string) string {
	switch provider {
	case "gemini":
		if key := os.Getenv("GOOGLE_AI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return ""
	}
}
