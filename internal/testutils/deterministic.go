// Package testutils provides deterministic generators for kaiwabot tests.
// These utilities ensure consistent output while maintaining production
// format compatibility.
package testutils

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// GenerateSessionID returns a production session identifier.
func GenerateSessionID() string {
	return "session_" + uuid.New().String()
}

// NewDeterministicSessionIDs returns a generator producing stable session
// IDs (session_00000001, session_00000002, ...) for test assertions.
func NewDeterministicSessionIDs() func() string {
	var (
		mu      sync.Mutex
		counter uint64
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		counter++
		return fmt.Sprintf("session_%08d", counter)
	}
}

// NewDeterministicClock returns a clock function that starts at start and
// advances by step on every call, so sequences of mutations get strictly
// increasing, predictable timestamps.
func NewDeterministicClock(start time.Time, step time.Duration) func() time.Time {
	var (
		mu   sync.Mutex
		next = start
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current := next
		next = next.Add(step)
		return current
	}
}

// FixedClock returns a clock function that always reports t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
