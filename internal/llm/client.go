// Package llm provides the generative-text backend clients used to produce
// bot replies. The bot treats the backend as an opaque completion function
// behind the Client interface; provider-specific wiring lives in the
// per-provider files.
package llm

import (
	"context"

	"kaiwabot/pkg/chattypes"
)

// Client is the contract every LLM provider client implements.
type Client interface {
	// GetProviderName returns the provider name for this client.
	GetProviderName() string

	// IsConfigured returns true if the client has a valid API key.
	IsConfigured() bool

	// GenerateReply sends the conversation so far plus a system prompt and
	// returns the assistant's reply text.
	GenerateReply(ctx context.Context, systemPrompt string, messages []chattypes.Message) (string, error)
}
