package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kaiwabot/internal/store"
)

// failingStore simulates a backend outage for every operation.
type failingStore struct{}

func (f *failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, store.ErrStoreUnavailable
}

func (f *failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return store.ErrStoreUnavailable
}

func (f *failingStore) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func (f *failingStore) Delete(context.Context, string) error {
	return store.ErrStoreUnavailable
}

func TestAdmit_FirstDeliveryAdmitted(t *testing.T) {
	d := New(store.NewMemoryStore(), time.Minute)

	assert.True(t, d.Admit(context.Background(), "user1-20250101120000.000"))
}

func TestAdmit_RedeliverySuppressed(t *testing.T) {
	d := New(store.NewMemoryStore(), time.Minute)
	ctx := context.Background()

	require.True(t, d.Admit(ctx, "evt-abc"))
	assert.False(t, d.Admit(ctx, "evt-abc"))
	assert.False(t, d.Admit(ctx, "evt-abc"))
}

func TestAdmit_DistinctKeysIndependent(t *testing.T) {
	d := New(store.NewMemoryStore(), time.Minute)
	ctx := context.Background()

	assert.True(t, d.Admit(ctx, "evt-a"))
	assert.True(t, d.Admit(ctx, "evt-b"))
	assert.False(t, d.Admit(ctx, "evt-a"))
}

func TestAdmit_ReadmittedAfterRetentionWindow(t *testing.T) {
	d := New(store.NewMemoryStore(), 10*time.Millisecond)
	ctx := context.Background()

	require.True(t, d.Admit(ctx, "evt-late"))
	require.False(t, d.Admit(ctx, "evt-late"))

	time.Sleep(20 * time.Millisecond)

	assert.True(t, d.Admit(ctx, "evt-late"))
}

func TestAdmit_FailsOpenOnStoreError(t *testing.T) {
	d := New(&failingStore{}, time.Minute)
	ctx := context.Background()

	assert.True(t, d.Admit(ctx, "evt-1"))
	assert.True(t, d.Admit(ctx, "evt-1"))
	assert.Equal(t, int64(2), d.FailOpenCount())
}

func TestNew_NonPositiveWindowUsesDefault(t *testing.T) {
	d := New(store.NewMemoryStore(), 0)
	assert.Equal(t, DefaultRetentionWindow, d.window)
}

func TestAdmit_ConcurrentSameKeySingleWinner(t *testing.T) {
	d := New(store.NewMemoryStore(), time.Minute)
	ctx := context.Background()

	const workers = 16
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		go func() {
			results <- d.Admit(ctx, "evt-contended")
		}()
	}

	admitted := 0
	for i := 0; i < workers; i++ {
		if <-results {
			admitted++
		}
	}
	assert.Equal(t, 1, admitted, "exactly one delivery should be admitted")
}
