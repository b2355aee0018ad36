// Package dedup suppresses duplicate processing of inbound webhook events.
// The messaging platform delivers events at least once; Admit turns that
// into at-most-once handling by remembering event keys for a retention
// window in the shared key-value store.
package dedup

import (
	"context"
	"sync/atomic"
	"time"

	"kaiwabot/internal/logger"
	"kaiwabot/internal/store"
)

// DefaultRetentionWindow is how long an admitted event key is remembered.
// Redeliveries of the same logical event arrive well within this window.
const DefaultRetentionWindow = 5 * time.Minute

const keyPrefix = "dedup:"

// Deduplicator tracks recently admitted event keys in a KeyValueStore so the
// dedup window survives restarts and is shared across server instances.
type Deduplicator struct {
	kv        store.KeyValueStore
	window    time.Duration
	failOpens atomic.Int64
}

// New creates a Deduplicator over kv. A non-positive window falls back to
// DefaultRetentionWindow.
func New(kv store.KeyValueStore, window time.Duration) *Deduplicator {
	if window <= 0 {
		window = DefaultRetentionWindow
	}
	return &Deduplicator{kv: kv, window: window}
}

// Admit reports whether the event identified by eventKey should be processed.
// The first call for a key within the retention window returns true and
// records the key; subsequent calls return false. Two concurrent Admit calls
// for the same key cannot both return true: the insert-if-absent happens
// atomically in the store.
//
// Store failures fail open: the event is admitted so a broken store never
// drops legitimate messages. Such occurrences are logged and counted.
func (d *Deduplicator) Admit(ctx context.Context, eventKey string) bool {
	stamp := []byte(time.Now().UTC().Format(time.RFC3339))

	admitted, err := d.kv.SetNX(ctx, keyPrefix+eventKey, stamp, d.window)
	if err != nil {
		d.failOpens.Add(1)
		logger.Warn("Dedup lookup failed, admitting event", "key", eventKey, "error", err)
		return true
	}

	if !admitted {
		logger.Debug("Duplicate event suppressed", "key", eventKey)
	}
	return admitted
}

// FailOpenCount returns how many times Admit fell back to admitting an event
// because the store was unavailable.
func (d *Deduplicator) FailOpenCount() int64 {
	return d.failOpens.Load()
}
