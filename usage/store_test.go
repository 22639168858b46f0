package usage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInMemoryStoreGetUsage(t *testing.T) {
	store := NewInMemoryStore(1000, []string{"1"})

	record, err := store.GetUsage(context.Background(), "1")
	require.NoError(t, err)
	require.Equal(t, Record{RemainingMs: 1000}, record)

	// Unknown users read as the zero record.
	record, err = store.GetUsage(context.Background(), "ghost")
	require.NoError(t, err)
	require.Equal(t, Record{}, record)
}

func TestInMemoryStoreUpdateUsage(t *testing.T) {
	store := NewInMemoryStore(1000, []string{"1"})

	record, err := store.UpdateUsage(context.Background(), "1", 250)
	require.NoError(t, err)
	require.Equal(t, Record{RemainingMs: 750, TotalUsedMs: 250}, record)

	// Overdraw clamps the remaining budget at zero while the total keeps
	// counting.
	record, err = store.UpdateUsage(context.Background(), "1", 900)
	require.NoError(t, err)
	require.Equal(t, Record{RemainingMs: 0, TotalUsedMs: 1150}, record)

	record, err = store.GetUsage(context.Background(), "1")
	require.NoError(t, err)
	require.Equal(t, Record{RemainingMs: 0, TotalUsedMs: 1150}, record)
}

func TestInMemoryStoreCancelledContext(t *testing.T) {
	store := NewInMemoryStore(1000, []string{"1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.GetUsage(ctx, "1")
	require.ErrorIs(t, err, context.Canceled)
	_, err = store.UpdateUsage(ctx, "1", 250)
	require.ErrorIs(t, err, context.Canceled)

	// The cancelled update must not have charged anything.
	record, err := store.GetUsage(context.Background(), "1")
	require.NoError(t, err)
	require.Equal(t, Record{RemainingMs: 1000}, record)
}

func TestInMemoryStoreConcurrentUpdates(t *testing.T) {
	const (
		workers     = 8
		updatesEach = 10
		chargeMs    = 10
	)
	store := NewInMemoryStore(int64(workers*updatesEach*chargeMs), []string{"1"})

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < updatesEach; j++ {
				_, _ = store.UpdateUsage(context.Background(), "1", chargeMs)
			}
		}()
	}
	wg.Wait()

	record, err := store.GetUsage(context.Background(), "1")
	require.NoError(t, err)
	require.Equal(t, Record{RemainingMs: 0, TotalUsedMs: int64(workers * updatesEach * chargeMs)}, record)
}

func TestInMemoryStoreReset(t *testing.T) {
	store := NewInMemoryStore(1000, []string{"1", "2"})
	_, err := store.UpdateUsage(context.Background(), "1", 600)
	require.NoError(t, err)

	store.Reset(500)
	for _, userID := range []string{"1", "2"} {
		record, err := store.GetUsage(context.Background(), userID)
		require.NoError(t, err)
		require.Equal(t, Record{RemainingMs: 500}, record)
	}
}
