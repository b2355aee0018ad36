package llm

import (
	"fmt"
	"sync"

	"kaiwabot/internal/logger"
)

// Factory manages the creation and caching of LLM clients by provider.
type Factory struct {
	mutex   sync.RWMutex
	clients map[string]Client
}

// NewFactory creates an empty client factory.
func NewFactory() *Factory {
	return &Factory{clients: make(map[string]Client)}
}

// GetClientForProvider returns a client for the given provider, creating and
// caching one on first use. Supported providers: gemini, openai, anthropic.
func (f *Factory) GetClientForProvider(provider, apiKey, model string) (Client, error) {
	if provider == "" {
		return nil, fmt.Errorf("provider cannot be empty")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("API key cannot be empty for provider '%s'", provider)
	}

	cacheKey := fmt.Sprintf("%s:%s:%s", provider, model, apiKey)

	f.mutex.RLock()
	if client, exists := f.clients[cacheKey]; exists {
		f.mutex.RUnlock()
		return client, nil
	}
	f.mutex.RUnlock()

	f.mutex.Lock()
	defer f.mutex.Unlock()

	// Double-check pattern
	if client, exists := f.clients[cacheKey]; exists {
		return client, nil
	}

	var client Client
	switch provider {
	case "gemini":
		client = NewGeminiClient(apiKey, model)
	case "openai":
		client = NewOpenAIClient(apiKey, model)
	case "anthropic":
		client = NewAnthropicClient(apiKey, model)
	default:
		return nil, fmt.Errorf("unsupported provider '%s'. Supported providers: gemini, openai, anthropic", provider)
	}

	f.clients[cacheKey] = client
	logger.Debug("Created new provider client", "provider", provider, "model", model)
	return client, nil
}
