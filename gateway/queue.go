package gateway

import (
	"sync"
	"sync/atomic"
)

// packetQueue is the per-user FIFO of pending work items plus the advisory
// in-flight flag that serializes one user's transcriptions. tryAcquire is a
// CAS, never a blocking lock, so the dispatcher can skip busy users while
// scanning.
//
// There is no cap on queue length; budget exhaustion bounds growth within a
// short horizon.
type packetQueue struct {
	mu       sync.Mutex
	items    []workItem
	inflight atomic.Bool
}

func newPacketQueue() *packetQueue {
	return &packetQueue{}
}

func (q *packetQueue) enqueue(item workItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

func (q *packetQueue) dequeue() (workItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return workItem{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

func (q *packetQueue) pending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) > 0
}

// tryAcquire sets the in-flight flag if it is currently clear. While the
// flag is held no other task for this user may start.
func (q *packetQueue) tryAcquire() bool {
	return q.inflight.CompareAndSwap(false, true)
}

func (q *packetQueue) release() {
	q.inflight.Store(false)
}

// drain discards all pending items and returns how many were dropped. Called
// on session teardown; dropped items are not refunded or retried.
func (q *packetQueue) drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	dropped := len(q.items)
	q.items = nil
	return dropped
}
