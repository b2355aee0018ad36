// Package chattypes defines the conversation state types shared across kaiwabot.
// This file contains the per-user conversation context, its message history,
// and the archive metadata produced when a session ends.
package chattypes

import "time"

// Role identifies the author of a conversation message.
type Role string

// Message roles. Messages are written once and never mutated afterwards.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in the conversation history.
// Messages are append-only; a context's message list is never reordered.
type Message struct {
	Role      Role      `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Sentiment string    `json:"sentiment,omitempty" yaml:"sentiment,omitempty"`
}

// Derived holds analysis fields accumulated over the course of a session.
type Derived struct {
	RecentTopics      []string `json:"recent_topics" yaml:"recent_topics"`
	InteractionCount  int      `json:"interaction_count" yaml:"interaction_count"`
	UserConcerns      []string `json:"user_concerns" yaml:"user_concerns"`
	RecommendedTopics []string `json:"recommended_topics" yaml:"recommended_topics"`
}

// ConversationContext is the per-user conversation state tracked between
// messages. Exactly one live context may exist per user at a time; it is
// owned by the session manager for its lifetime.
type ConversationContext struct {
	UserID       string    `json:"user_id" yaml:"user_id"`
	SessionID    string    `json:"session_id" yaml:"session_id"`
	LastMessage  string    `json:"last_message" yaml:"last_message"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
	AlcoholLevel int       `json:"alcohol_level" yaml:"alcohol_level"`
	Mood         string    `json:"mood" yaml:"mood"`
	Topic        string    `json:"topic" yaml:"topic"`
	Messages     []Message `json:"messages" yaml:"messages"`
	Derived      Derived   `json:"derived" yaml:"derived"`
	ExpiresAt    time.Time `json:"expires_at" yaml:"expires_at"`
}

// StartTime returns the timestamp of the first message, falling back to the
// last update time for sessions that never recorded a message.
func (c *ConversationContext) StartTime() time.Time {
	if len(c.Messages) > 0 {
		return c.Messages[0].Timestamp
	}
	return c.UpdatedAt
}

// ContextUpdate is a partial update applied to a live context. Nil fields are
// left untouched; set fields overwrite the corresponding context field
// (shallow per-field merge, nested collections are replaced as a whole only
// when explicitly provided).
type ContextUpdate struct {
	LastMessage  *string
	AlcoholLevel *int
	Mood         *string
	Topic        *string
	Derived      *Derived
}

// SessionMetadata is the structured payload embedded in an archive document.
// It is the single source of truth for restoration; the human-readable half
// of the document is never parsed back.
type SessionMetadata struct {
	SessionID string              `yaml:"session_id"`
	StartTime time.Time           `yaml:"start_time"`
	EndTime   time.Time           `yaml:"end_time"`
	Context   ConversationContext `yaml:"context"`
}
