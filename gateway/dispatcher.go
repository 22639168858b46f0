package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/voxgate/voxgate/transcriber"
	"github.com/voxgate/voxgate/usage"
)

const (
	// DefaultMaxConcurrent caps in-flight transcription tasks across all
	// users.
	DefaultMaxConcurrent = 5
	// defaultTaskTimeout is the hard per-packet transcription deadline.
	defaultTaskTimeout = time.Minute
)

// Dispatcher drains per-user queues into transcription tasks while
// preserving three guarantees: one user's items run strictly in enqueue
// order, at most maxConcurrent tasks run across all users, and every task
// observes cancellation from shutdown, session close, and its own deadline.
//
// The loop is event-driven: producers call Notify after every enqueue and
// each finished task notifies again, so after any enqueue on an idle user a
// task starts in bounded time without the producer blocking.
type Dispatcher struct {
	registry    *Registry
	store       usage.Store
	transcriber transcriber.Transcriber
	log         zerolog.Logger

	// timeout is the per-task deadline. Overridden in tests.
	timeout time.Duration

	wakeC chan struct{}
	sem   chan struct{}
	wg    sync.WaitGroup
}

func NewDispatcher(registry *Registry, store usage.Store, t transcriber.Transcriber, maxConcurrent int, log *zerolog.Logger) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	logger := log.With().Str("component", "dispatcher").Logger()
	return &Dispatcher{
		registry:    registry,
		store:       store,
		transcriber: t,
		log:         logger,
		timeout:     defaultTaskTimeout,
		// wakeC is a level trigger. A buffered slot is enough: one pending
		// wake already forces a full rescan.
		wakeC: make(chan struct{}, 1),
		sem:   make(chan struct{}, maxConcurrent),
	}
}

// Notify wakes the scheduling loop. Never blocks.
func (d *Dispatcher) Notify() {
	select {
	case d.wakeC <- struct{}{}:
	default:
	}
}

// Serve runs the scheduling loop until ctx is cancelled, then returns once
// every in-flight task has drained.
func (d *Dispatcher) Serve(ctx context.Context) error {
	d.log.Debug().Int("maxConcurrent", cap(d.sem)).Msg("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			d.log.Debug().Msg("dispatcher drained")
			return ctx.Err()
		case <-d.wakeC:
		}
		if !d.scan(ctx) {
			d.wg.Wait()
			d.log.Debug().Msg("dispatcher drained")
			return ctx.Err()
		}
	}
}

// scan walks every registered session once and starts at most one task per
// user whose queue has work and whose in-flight flag is clear. Returns false
// when ctx was cancelled mid-scan.
func (d *Dispatcher) scan(ctx context.Context) bool {
	for _, session := range d.registry.Snapshot() {
		if !session.Ready() || !session.queue.pending() {
			continue
		}
		if !session.queue.tryAcquire() {
			// Another task for this user is still in flight; its completion
			// will notify and we will pick the queue up on the next pass.
			continue
		}
		item, ok := session.queue.dequeue()
		if !ok {
			session.queue.release()
			continue
		}
		select {
		case d.sem <- struct{}{}:
		case <-ctx.Done():
			discardWorkItems(1)
			session.queue.release()
			return false
		}
		d.wg.Add(1)
		go d.runTask(ctx, session, item)
	}
	return true
}

// runTask performs one transcription: run the engine under the composed
// cancellation handle, charge the usage store, reply on the session, and
// close the session when the budget is exhausted.
func (d *Dispatcher) runTask(ctx context.Context, session *Session, item workItem) {
	defer d.wg.Done()
	defer d.Notify()
	defer func() { <-d.sem }()
	defer session.queue.release()

	// The registry holds only weak lookups: if this session is gone or has
	// been replaced by the time the task starts, the item is dropped.
	if current, ok := d.registry.Lookup(session.UserID); !ok || current.ID != session.ID || session.closed() {
		discardWorkItems(1)
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	stop := make(chan struct{})
	go func() {
		select {
		case <-session.Done():
			cancel()
		case <-stop:
		}
	}()
	defer close(stop)

	incrementInflight()
	result, err := d.transcriber.Transcribe(taskCtx, item.payload)
	decrementInflight()
	if err != nil {
		d.finishWithError(session, taskCtx, err)
		return
	}
	// A cancelled task must not touch the usage store or send frames, even
	// if the engine returned a result before noticing.
	if taskCtx.Err() != nil {
		discardWorkItems(1)
		return
	}

	record, updateErr := d.store.UpdateUsage(taskCtx, session.UserID, result.UsageUsedMs)
	exhausted := false
	if updateErr != nil {
		if taskCtx.Err() != nil {
			discardWorkItems(1)
			return
		}
		// The reply already happened from the client's point of view; no
		// rollback. Fall back to a read for the remaining budget.
		session.log.Error().Msgf("usage update failed: %s", updateErr)
		record, _ = d.store.GetUsage(taskCtx, session.UserID)
	} else {
		exhausted = record.RemainingMs <= 0
	}

	reply := transcriptionReply{
		ID:               item.sequenceID,
		Transcript:       result.Transcript,
		Confidence:       result.Confidence,
		UsageUsedMs:      result.UsageUsedMs,
		UsageRemainingMs: record.RemainingMs,
	}
	if err := session.send(taskCtx, reply); err != nil {
		// Session vanished mid-processing; the result is dropped silently
		// and the usage already charged stays charged.
		session.log.Debug().Msgf("dropping reply for packet %d: %s", item.sequenceID, err)
		discardWorkItems(1)
		return
	}
	observeProcessedWorkItem()
	session.log.Debug().
		Uint32("packet", item.sequenceID).
		Int64("usedMs", result.UsageUsedMs).
		Int64("remainingMs", record.RemainingMs).
		Dur("queued", time.Since(item.enqueuedAt)).
		Msg("packet transcribed")

	if exhausted {
		session.close(reasonExceeded)
		d.registry.Unregister(session)
	}
}

// finishWithError maps a failed transcription onto the close protocol. A
// task cancelled by session close or shutdown stays silent.
func (d *Dispatcher) finishWithError(session *Session, taskCtx context.Context, err error) {
	discardWorkItems(1)
	switch {
	case errors.Is(taskCtx.Err(), context.DeadlineExceeded):
		session.close(reasonTimeout)
		d.registry.Unregister(session)
	case taskCtx.Err() != nil:
		// Session close or shutdown already owns the close frame.
	case errors.Is(err, context.Canceled):
		// The engine aborted on its own while the session is still live.
		session.close(reasonAborted)
		d.registry.Unregister(session)
	case errors.Is(err, context.DeadlineExceeded):
		session.close(reasonTimeout)
		d.registry.Unregister(session)
	default:
		session.log.Error().Msgf("transcription failed: %s", err)
		session.close(reasonServerError(err))
		d.registry.Unregister(session)
	}
}
