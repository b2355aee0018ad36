// Package session owns the lifecycle of per-user conversation contexts:
// creation, reads, partial updates, message appends, TTL-based expiration,
// archival into a restorable document, and restoration from one.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kaiwabot/internal/codec"
	"kaiwabot/internal/logger"
	"kaiwabot/internal/store"
	"kaiwabot/internal/testutils"
	"kaiwabot/pkg/chattypes"
)

// DefaultTTL is how long an unrefreshed context stays live. Matches the
// 30-minute session window the bot advertises to users.
const DefaultTTL = 30 * time.Minute

const contextKeyPrefix = "context:"

// Manager is the sole authority over per-user conversation contexts. All
// persistence goes through the configured KeyValueStore; operations for the
// same user are serialized by a per-user lock so concurrent events cannot
// lose updates.
type Manager struct {
	kv    store.KeyValueStore
	ttl   time.Duration
	locks *keyedMutex

	// Injection points for deterministic tests.
	now          func() time.Time
	newSessionID func() string
}

// NewManager creates a Manager over kv. A non-positive ttl falls back to
// DefaultTTL.
func NewManager(kv store.KeyValueStore, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		kv:           kv,
		ttl:          ttl,
		locks:        newKeyedMutex(),
		now:          func() time.Time { return time.Now().UTC() },
		newSessionID: testutils.GenerateSessionID,
	}
}

// TTL returns the configured context time-to-live.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Create builds and persists a fresh context for userID. Returns
// ErrAlreadyExists if a live context is present; callers typically Get first.
func (m *Manager) Create(ctx context.Context, userID string) (*chattypes.ConversationContext, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	existing, err := m.load(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: user %s", ErrAlreadyExists, userID)
	}

	now := m.now()
	conv := &chattypes.ConversationContext{
		UserID:      userID,
		SessionID:   m.newSessionID(),
		UpdatedAt:   now,
		Messages:    make([]chattypes.Message, 0),
		Derived:     emptyDerived(),
		ExpiresAt:   now.Add(m.ttl),
		LastMessage: "",
	}

	if err := m.persist(ctx, conv); err != nil {
		return nil, err
	}

	logger.Info("Context created", "user", userID, "session", conv.SessionID)
	return conv, nil
}

// Get returns the live context for userID, or ErrNotFound when none exists.
// A stored-but-expired context is discarded on the spot and reported as
// absent; no archive document is produced for it (see the design notes on
// lazy expiration).
func (m *Manager) Get(ctx context.Context, userID string) (*chattypes.ConversationContext, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	return m.load(ctx, userID)
}

// Update merges updates into the live context for userID, refreshing its
// expiry. Returns ErrNotFound when no live context exists; Update never
// creates one implicitly.
func (m *Manager) Update(ctx context.Context, userID string, updates chattypes.ContextUpdate) (*chattypes.ConversationContext, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	conv, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	applyUpdate(conv, updates)
	conv.UpdatedAt = m.now()
	conv.ExpiresAt = conv.UpdatedAt.Add(m.ttl)

	if err := m.persist(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// AddMessage appends msg to the live context for userID and refreshes its
// expiry. Returns ErrNotFound when no live context exists.
func (m *Manager) AddMessage(ctx context.Context, userID string, msg chattypes.Message) (*chattypes.ConversationContext, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	conv, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	conv.Messages = append(conv.Messages, msg)
	conv.LastMessage = msg.Content
	conv.UpdatedAt = m.now()
	conv.ExpiresAt = conv.UpdatedAt.Add(m.ttl)

	if err := m.persist(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// Archive encodes the live context for userID into an archive document, then
// deletes the context. Produce-then-delete: if encoding fails the live
// context is left untouched, so a failed archive never loses a session.
func (m *Manager) Archive(ctx context.Context, userID string) (string, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	conv, err := m.load(ctx, userID)
	if err != nil {
		return "", err
	}

	document, err := codec.Encode(conv, m.now())
	if err != nil {
		return "", fmt.Errorf("failed to encode archive document: %w", err)
	}

	if err := m.kv.Delete(ctx, contextKey(userID)); err != nil {
		return "", err
	}

	logger.Info("Context archived", "user", userID, "session", conv.SessionID, "messages", len(conv.Messages))
	return document, nil
}

// Restore decodes document and installs the recovered context for userID
// with a freshly computed expiry, superseding any live context. Codec errors
// pass through unchanged and leave existing state untouched.
func (m *Manager) Restore(ctx context.Context, userID string, document string) (*chattypes.ConversationContext, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	conv, err := codec.Decode(document)
	if err != nil {
		return nil, err
	}

	conv.UserID = userID
	conv.ExpiresAt = m.now().Add(m.ttl)

	if err := m.persist(ctx, conv); err != nil {
		return nil, err
	}

	logger.Info("Context restored", "user", userID, "session", conv.SessionID, "messages", len(conv.Messages))
	return conv, nil
}

// Discard removes any live context for userID without producing a document.
// Used when the user leaves the channel entirely. Absent contexts are not an
// error.
func (m *Manager) Discard(ctx context.Context, userID string) error {
	unlock := m.locks.Lock(userID)
	defer unlock()

	return m.kv.Delete(ctx, contextKey(userID))
}

// load fetches and validates the stored context under the caller-held lock.
func (m *Manager) load(ctx context.Context, userID string) (*chattypes.ConversationContext, error) {
	data, err := m.kv.Get(ctx, contextKey(userID))
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, err
	}

	var conv chattypes.ConversationContext
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("%w: stored context unreadable: %v", store.ErrStoreUnavailable, err)
	}

	if !conv.ExpiresAt.After(m.now()) {
		// Lazy expiration: the session window has passed, so the record is
		// discarded without producing a document.
		if err := m.kv.Delete(ctx, contextKey(userID)); err != nil {
			logger.Warn("Failed to remove expired context", "user", userID, "error", err)
		}
		logger.Debug("Context expired", "user", userID, "session", conv.SessionID)
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}

	return &conv, nil
}

func (m *Manager) persist(ctx context.Context, conv *chattypes.ConversationContext) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}

	ttl := conv.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		ttl = time.Second
	}
	logger.StoreOperation("set", contextKey(conv.UserID), "ttl", ttl.String())
	return m.kv.Set(ctx, contextKey(conv.UserID), data, ttl)
}

func applyUpdate(conv *chattypes.ConversationContext, updates chattypes.ContextUpdate) {
	if updates.LastMessage != nil {
		conv.LastMessage = *updates.LastMessage
	}
	if updates.AlcoholLevel != nil {
		conv.AlcoholLevel = *updates.AlcoholLevel
	}
	if updates.Mood != nil {
		conv.Mood = *updates.Mood
	}
	if updates.Topic != nil {
		conv.Topic = *updates.Topic
	}
	if updates.Derived != nil {
		conv.Derived = *updates.Derived
	}
}

func emptyDerived() chattypes.Derived {
	return chattypes.Derived{
		RecentTopics:      make([]string, 0),
		UserConcerns:      make([]string, 0),
		RecommendedTopics: make([]string, 0),
	}
}

func contextKey(userID string) string {
	return contextKeyPrefix + userID
}
