// This file defines the closed set of inbound event variants the bot handles.
// Transport envelopes are parsed at the edge; the core only ever sees these.
package chattypes

import "time"

// EventKind discriminates the inbound event variants.
type EventKind string

// The closed set of event kinds dispatched by the bot.
const (
	EventKindMessage  EventKind = "message"
	EventKindPostback EventKind = "postback"
	EventKindFollow   EventKind = "follow"
	EventKindUnfollow EventKind = "unfollow"
)

// InboundEvent is a tagged variant over the event kinds. Each kind uses only
// the fields relevant to it; unused fields stay at their zero value.
type InboundEvent struct {
	Kind       EventKind
	UserID     string
	ReplyToken string
	Timestamp  time.Time

	// EventID is the platform's redelivery-stable event identifier, when the
	// platform supplies one. Empty otherwise.
	EventID string

	// Text carries the message body for EventKindMessage.
	Text string

	// PostbackData carries the action payload for EventKindPostback.
	PostbackData string
}

// DedupKey returns the key under which this event is tracked for duplicate
// suppression. It is built only from fields stable across redelivery of the
// same logical event: the platform event ID when available, otherwise the
// source user combined with the original event timestamp.
func (e *InboundEvent) DedupKey() string {
	if e.EventID != "" {
		return e.EventID
	}
	return e.UserID + "-" + e.Timestamp.UTC().Format("20060102150405.000")
}
