package chattypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupKey_PrefersPlatformEventID(t *testing.T) {
	event := InboundEvent{
		Kind:      EventKindMessage,
		UserID:    "user1",
		EventID:   "webhook-event-42",
		Timestamp: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, "webhook-event-42", event.DedupKey())
}

func TestDedupKey_FallsBackToUserAndTimestamp(t *testing.T) {
	event := InboundEvent{
		Kind:      EventKindMessage,
		UserID:    "user1",
		Timestamp: time.Date(2025, 1, 1, 12, 0, 0, 500_000_000, time.UTC),
	}

	assert.Equal(t, "user1-20250101120000.500", event.DedupKey())
}

func TestDedupKey_StableAcrossRedelivery(t *testing.T) {
	ts := time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)
	first := InboundEvent{Kind: EventKindMessage, UserID: "u", Timestamp: ts, Text: "hello"}
	redelivered := InboundEvent{Kind: EventKindMessage, UserID: "u", Timestamp: ts, Text: "hello", ReplyToken: "fresh-token"}

	assert.Equal(t, first.DedupKey(), redelivered.DedupKey())
}

func TestDedupKey_NormalizesTimezone(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	utc := InboundEvent{UserID: "u", Timestamp: time.Date(2025, 1, 1, 3, 0, 0, 0, time.UTC)}
	local := InboundEvent{UserID: "u", Timestamp: time.Date(2025, 1, 1, 12, 0, 0, 0, jst)}

	assert.Equal(t, utc.DedupKey(), local.DedupKey())
}

func TestStartTime_FirstMessageWins(t *testing.T) {
	first := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	conv := ConversationContext{
		UpdatedAt: time.Date(2025, 1, 1, 10, 20, 0, 0, time.UTC),
		Messages: []Message{
			{Role: RoleUser, Content: "hello", Timestamp: first},
			{Role: RoleAssistant, Content: "hi", Timestamp: first.Add(time.Minute)},
		},
	}

	assert.Equal(t, first, conv.StartTime())
}

func TestStartTime_FallsBackToUpdatedAt(t *testing.T) {
	updated := time.Date(2025, 1, 1, 10, 20, 0, 0, time.UTC)
	conv := ConversationContext{UpdatedAt: updated, Messages: []Message{}}

	assert.Equal(t, updated, conv.StartTime())
}
