package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"kaiwabot/internal/logger"
	"kaiwabot/pkg/chattypes"
)

// OpenAIClient implements the Client interface for OpenAI's API.
// The underlying client is created lazily on first use.
type OpenAIClient struct {
	apiKey string
	model  string
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAI client with lazy initialization.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		apiKey: apiKey,
		model:  model,
		client: nil, // Will be initialized lazily
	}
}

// GetProviderName returns the provider name for this client.
func (c *OpenAIClient) GetProviderName() string {
	return "openai"
}

// IsConfigured returns true if the client has a valid API key.
func (c *OpenAIClient) IsConfigured() bool {
	return c.apiKey != ""
}

// initializeClientIfNeeded initializes the OpenAI client if it hasn't been initialized yet.
func (c *OpenAIClient) initializeClientIfNeeded() error {
	if c.client != nil {
		return nil // Already initialized
	}

	if c.apiKey == "" {
		return fmt.Errorf("OpenAI API key not configured")
	}

	client := openai.NewClient(option.WithAPIKey(c.apiKey))
	c.client = &client

	logger.Debug("OpenAI client initialized", "provider", "openai", "model", c.model)
	return nil
}

// GenerateReply sends the conversation to OpenAI and returns the reply text.
func (c *OpenAIClient) GenerateReply(ctx context.Context, systemPrompt string, messages []chattypes.Message) (string, error) {
	logger.Debug("OpenAI GenerateReply starting", "model", c.model, "message_count", len(messages))

	if err := c.initializeClientIfNeeded(); err != nil {
		return "", fmt.Errorf("failed to initialize OpenAI client: %w", err)
	}

	converted := convertMessagesToOpenAI(messages)
	if systemPrompt != "" {
		converted = append([]openai.ChatCompletionMessageParamUnion{openai.SystemMessage(systemPrompt)}, converted...)
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: converted,
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Error("OpenAI request failed", "error", err)
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}

	content := completion.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("empty response content")
	}

	logger.Debug("OpenAI response received", "content_length", len(content))
	return content, nil
}

// convertMessagesToOpenAI converts conversation messages to OpenAI format.
func convertMessagesToOpenAI(messages []chattypes.Message) []openai.ChatCompletionMessageParamUnion {
	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chattypes.RoleUser:
			converted = append(converted, openai.UserMessage(msg.Content))
		case chattypes.RoleAssistant:
			converted = append(converted, openai.AssistantMessage(msg.Content))
		}
	}
	return converted
}
