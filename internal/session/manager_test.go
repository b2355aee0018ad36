package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kaiwabot/internal/codec"
	"kaiwabot/internal/store"
	"kaiwabot/internal/testutils"
	"kaiwabot/pkg/chattypes"
)

var testEpoch = time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)

// newTestManager returns a manager with deterministic IDs and a controllable
// clock over a fresh in-memory store.
func newTestManager(t *testing.T, ttl time.Duration) (*Manager, *time.Time) {
	t.Helper()
	now := testEpoch
	m := NewManager(store.NewMemoryStore(), ttl)
	m.now = func() time.Time { return now }
	m.newSessionID = testutils.NewDeterministicSessionIDs()
	return m, &now
}

func TestCreate_FreshContext(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	conv, err := m.Create(ctx, "user1")
	require.NoError(t, err)

	assert.Equal(t, "user1", conv.UserID)
	assert.Equal(t, "session_00000001", conv.SessionID)
	assert.Empty(t, conv.Messages)
	assert.NotNil(t, conv.Messages)
	assert.Equal(t, testEpoch, conv.UpdatedAt)
	assert.Equal(t, testEpoch.Add(30*time.Minute), conv.ExpiresAt)
	assert.Equal(t, 0, conv.AlcoholLevel)
}

func TestCreate_SecondLiveContextRejected(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	_, err := m.Create(ctx, "user1")
	require.NoError(t, err)

	_, err = m.Create(ctx, "user1")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCreate_DistinctUsersIndependent(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	first, err := m.Create(ctx, "user1")
	require.NoError(t, err)
	second, err := m.Create(ctx, "user2")
	require.NoError(t, err)

	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestGet_MissingContext(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Minute)

	_, err := m.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_ExpiredContextDiscarded(t *testing.T) {
	m, now := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	_, err := m.Create(ctx, "user1")
	require.NoError(t, err)

	// Just before expiry the context is still live.
	*now = testEpoch.Add(30*time.Minute - time.Second)
	_, err = m.Get(ctx, "user1")
	require.NoError(t, err)

	// At expiry it reads as absent and a new session can start.
	*now = testEpoch.Add(30 * time.Minute)
	_, err = m.Get(ctx, "user1")
	assert.ErrorIs(t, err, ErrNotFound)

	replacement, err := m.Create(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "session_00000002", replacement.SessionID)
}

func TestUpdate_MergesAndRefreshesExpiry(t *testing.T) {
	m, now := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	_, err := m.Create(ctx, "user1")
	require.NoError(t, err)

	*now = testEpoch.Add(10 * time.Minute)
	level := 2
	topic := "仕事"
	conv, err := m.Update(ctx, "user1", chattypes.ContextUpdate{AlcoholLevel: &level, Topic: &topic})
	require.NoError(t, err)

	assert.Equal(t, 2, conv.AlcoholLevel)
	assert.Equal(t, "仕事", conv.Topic)
	assert.Equal(t, "", conv.Mood, "unset fields stay untouched")
	assert.Equal(t, testEpoch.Add(40*time.Minute), conv.ExpiresAt)
}

func TestUpdate_NeverCreates(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Minute)
	topic := "趣味"

	_, err := m.Update(context.Background(), "ghost", chattypes.ContextUpdate{Topic: &topic})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound, "failed update must not leave a context behind")
}

func TestAddMessage_AppendsAndTracksLast(t *testing.T) {
	m, now := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	_, err := m.Create(ctx, "user1")
	require.NoError(t, err)

	*now = testEpoch.Add(time.Minute)
	_, err = m.AddMessage(ctx, "user1", chattypes.Message{
		Role: chattypes.RoleUser, Content: "hello", Timestamp: *now,
	})
	require.NoError(t, err)

	*now = testEpoch.Add(2 * time.Minute)
	conv, err := m.AddMessage(ctx, "user1", chattypes.Message{
		Role: chattypes.RoleAssistant, Content: "hi there", Timestamp: *now,
	})
	require.NoError(t, err)

	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "hello", conv.Messages[0].Content)
	assert.Equal(t, "hi there", conv.Messages[1].Content)
	assert.Equal(t, "hi there", conv.LastMessage)
	assert.Equal(t, testEpoch.Add(32*time.Minute), conv.ExpiresAt)
}

func TestAddMessage_RequiresLiveContext(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Minute)

	_, err := m.AddMessage(context.Background(), "ghost", chattypes.Message{
		Role: chattypes.RoleUser, Content: "hello", Timestamp: testEpoch,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddMessage_ConcurrentAppendsBothRetained(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	_, err := m.Create(ctx, "user1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, content := range []string{"first", "second"} {
		wg.Add(1)
		go func(content string) {
			defer wg.Done()
			_, err := m.AddMessage(ctx, "user1", chattypes.Message{
				Role: chattypes.RoleUser, Content: content, Timestamp: testEpoch,
			})
			assert.NoError(t, err)
		}(content)
	}
	wg.Wait()

	conv, err := m.Get(ctx, "user1")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 2, "neither concurrent append may be lost")
}

func TestArchive_ProducesDocumentAndDeletes(t *testing.T) {
	m, now := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	_, err := m.Create(ctx, "user1")
	require.NoError(t, err)
	_, err = m.AddMessage(ctx, "user1", chattypes.Message{
		Role: chattypes.RoleUser, Content: "hello", Timestamp: testEpoch,
	})
	require.NoError(t, err)

	*now = testEpoch.Add(15 * time.Minute)
	document, err := m.Archive(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, codec.IsArchiveDocument(document))

	_, err = m.Get(ctx, "user1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArchive_MissingContext(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Minute)

	_, err := m.Archive(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArchiveRestore_RoundTrip(t *testing.T) {
	m, now := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	_, err := m.Create(ctx, "user1")
	require.NoError(t, err)
	level := 1
	mood := "穏やか"
	topic := "趣味"
	_, err = m.Update(ctx, "user1", chattypes.ContextUpdate{AlcoholLevel: &level, Mood: &mood, Topic: &topic})
	require.NoError(t, err)
	for i, content := range []string{"hello", "world"} {
		role := chattypes.RoleUser
		if i%2 == 1 {
			role = chattypes.RoleAssistant
		}
		_, err = m.AddMessage(ctx, "user1", chattypes.Message{
			Role: role, Content: content, Timestamp: testEpoch.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	document, err := m.Archive(ctx, "user1")
	require.NoError(t, err)

	// The user pastes the document back an hour later.
	*now = testEpoch.Add(time.Hour)
	restored, err := m.Restore(ctx, "user1", document)
	require.NoError(t, err)

	assert.Equal(t, "session_00000001", restored.SessionID)
	assert.Equal(t, 1, restored.AlcoholLevel)
	assert.Equal(t, "穏やか", restored.Mood)
	assert.Equal(t, "趣味", restored.Topic)
	require.Len(t, restored.Messages, 2)
	assert.Equal(t, "hello", restored.Messages[0].Content)
	assert.Equal(t, "world", restored.Messages[1].Content)
	assert.Equal(t, "world", restored.LastMessage)
	assert.Equal(t, testEpoch.Add(time.Hour+30*time.Minute), restored.ExpiresAt, "restore assigns a fresh expiry")

	// The restored context is live again.
	conv, err := m.Get(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, restored.SessionID, conv.SessionID)
}

func TestRestore_MalformedDocumentLeavesStateUntouched(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	_, err := m.Create(ctx, "user1")
	require.NoError(t, err)
	_, err = m.AddMessage(ctx, "user1", chattypes.Message{
		Role: chattypes.RoleUser, Content: "keep me", Timestamp: testEpoch,
	})
	require.NoError(t, err)

	_, err = m.Restore(ctx, "user1", "# 会話セッション記録\nno metadata here")
	assert.ErrorIs(t, err, codec.ErrMalformedDocument)

	conv, err := m.Get(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "keep me", conv.Messages[0].Content)
}

func TestRestore_SupersedesLiveContext(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	_, err := m.Create(ctx, "user1")
	require.NoError(t, err)
	_, err = m.AddMessage(ctx, "user1", chattypes.Message{
		Role: chattypes.RoleUser, Content: "old session", Timestamp: testEpoch,
	})
	require.NoError(t, err)
	document, err := m.Archive(ctx, "user1")
	require.NoError(t, err)

	_, err = m.Create(ctx, "user1")
	require.NoError(t, err)

	restored, err := m.Restore(ctx, "user1", document)
	require.NoError(t, err)
	assert.Equal(t, "session_00000001", restored.SessionID)

	conv, err := m.Get(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "session_00000001", conv.SessionID)
}

func TestDiscard_RemovesWithoutDocument(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Minute)
	ctx := context.Background()

	_, err := m.Create(ctx, "user1")
	require.NoError(t, err)

	require.NoError(t, m.Discard(ctx, "user1"))
	_, err = m.Get(ctx, "user1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Discarding an absent context is not an error.
	assert.NoError(t, m.Discard(ctx, "nobody"))
}

func TestNewManager_NonPositiveTTLUsesDefault(t *testing.T) {
	m := NewManager(store.NewMemoryStore(), 0)
	assert.Equal(t, DefaultTTL, m.TTL())
}
