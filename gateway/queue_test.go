package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketQueueFIFO(t *testing.T) {
	q := newPacketQueue()
	require.False(t, q.pending())

	for i := uint32(1); i <= 5; i++ {
		q.enqueue(workItem{sequenceID: i})
	}
	require.True(t, q.pending())

	for i := uint32(1); i <= 5; i++ {
		item, ok := q.dequeue()
		require.True(t, ok)
		require.Equal(t, i, item.sequenceID)
	}
	_, ok := q.dequeue()
	require.False(t, ok)
}

func TestPacketQueueAdvisoryFlag(t *testing.T) {
	q := newPacketQueue()

	require.True(t, q.tryAcquire())
	// Non-reentrant: a second acquire must fail until release.
	require.False(t, q.tryAcquire())
	q.release()
	require.True(t, q.tryAcquire())
	q.release()
}

func TestPacketQueueDrain(t *testing.T) {
	q := newPacketQueue()
	for i := uint32(1); i <= 3; i++ {
		q.enqueue(workItem{sequenceID: i})
	}
	require.Equal(t, 3, q.drain())
	require.False(t, q.pending())
	require.Equal(t, 0, q.drain())
}
