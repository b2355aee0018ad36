package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"kaiwabot/internal/logger"
	"kaiwabot/pkg/chattypes"
)

// GeminiClient implements the Client interface for the Google Gemini API.
// The underlying genai client is created lazily on first use.
type GeminiClient struct {
	apiKey string
	model  string
	client *genai.Client
}

// NewGeminiClient creates a new Gemini client with lazy initialization.
func NewGeminiClient(apiKey, model string) *GeminiClient {
	return &GeminiClient{
		apiKey: apiKey,
		model:  model,
		client: nil, // Will be initialized lazily
	}
}

// GetProviderName returns the provider name for this client.
func (c *GeminiClient) GetProviderName() string {
	return "gemini"
}

// IsConfigured returns true if the client has a valid API key.
func (c *GeminiClient) IsConfigured() bool {
	return c.apiKey != ""
}

// initializeClientIfNeeded initializes the Gemini client if it hasn't been initialized yet.
func (c *GeminiClient) initializeClientIfNeeded(ctx context.Context) error {
	if c.client != nil {
		return nil // Already initialized
	}

	if c.apiKey == "" {
		return fmt.Errorf("google API key not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: c.apiKey})
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c.client = client
	logger.Debug("Gemini client initialized", "provider", "gemini", "model", c.model)
	return nil
}

// GenerateReply sends the conversation to Gemini and returns the reply text.
func (c *GeminiClient) GenerateReply(ctx context.Context, systemPrompt string, messages []chattypes.Message) (string, error) {
	logger.Debug("Gemini GenerateReply starting", "model", c.model, "message_count", len(messages))

	if err := c.initializeClientIfNeeded(ctx); err != nil {
		return "", fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	contents := convertMessagesToGemini(messages)

	config := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		logger.Error("Gemini request failed", "error", err)
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	content := extractGeminiText(result)
	if content == "" {
		return "", fmt.Errorf("empty response content")
	}

	logger.Debug("Gemini response received", "content_length", len(content))
	return content, nil
}

// convertMessagesToGemini converts conversation messages to Gemini format.
// Gemini uses "model" where the conversation history says "assistant".
func convertMessagesToGemini(messages []chattypes.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		var role string
		switch msg.Role {
		case chattypes.RoleUser:
			role = "user"
		case chattypes.RoleAssistant:
			role = "model"
		default:
			continue
		}

		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: msg.Content}},
			Role:  role,
		})
	}

	// Gemini rejects an empty content list
	if len(contents) == 0 {
		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: ""}},
			Role:  "user",
		})
	}

	return contents
}

// extractGeminiText concatenates the text parts of a response, skipping
// thinking blocks.
func extractGeminiText(result *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text == "" || part.Thought {
				continue
			}
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
