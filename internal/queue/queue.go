// Package queue implements the Request Queue (C5): a bounded, in-process
// FIFO with priority bands and an anti-starvation reservation, feeding a
// fixed worker pool. Grounded on the teacher's worker-pool/channel-wake
// shape in internal/orchestrator/kafka.go, generalized from a single Kafka
// topic to an in-process priority queue.
package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lyraworks/qdc/internal/errorkind"
	"github.com/lyraworks/qdc/internal/model"
	"github.com/lyraworks/qdc/internal/observability"
)

const numBands = 10 // priority 0..9, 9 highest

// Outcome is what a dispatch produced for a completed Request.
type Outcome struct {
	Reply    string
	Degraded bool
}

// ReplyFunc delivers a completed Request's outcome back to whoever
// enqueued it (egress). Called exactly once per Request that reaches a
// terminal state, with err set instead of Outcome on failure or
// errorkind.Cancelled on cancellation.
type ReplyFunc func(Outcome, error)

// Handler runs one dispatch to completion or failure. Queue has no
// knowledge of the Dispatcher's internals; it is wired in as a plain
// function value (typically (*dispatch.Dispatcher).Dispatch).
type Handler func(ctx context.Context, req model.Request) (Outcome, error)

// EnqueueResult is returned from Enqueue.
type EnqueueResult struct {
	QueueID    string
	Position   int
	ETASeconds float64
}

// Status describes what a user's work in the queue is doing.
type Status struct {
	State    string // "processing", "queued", "none"
	Position int
	ETASeconds float64
}

type item struct {
	req        model.Request
	queueID    string
	userID     string
	priority   int
	enqueuedAt time.Time
	onComplete ReplyFunc
}

// Queue is the bounded FIFO-with-bands feeding a fixed worker pool.
type Queue struct {
	mu    sync.Mutex
	bands [numBands][]*item
	size  int

	maxSize       int
	workers       int
	dispatchCount int

	handler   Handler
	cancelReg CancelRegistry

	activeByQueueID map[string]string // queueID -> userID, so concurrent same-user dispatches each hold their own entry
	activeCancel    map[string]context.CancelFunc

	meanServiceTime time.Duration

	intakeStopped atomic.Bool
	wake          chan struct{}
}

// New builds a Queue. maxSize is the hard cap (Overloaded beyond it);
// workers is the fixed worker pool size; initialMeanServiceTime seeds the
// EWMA used for ETA estimates before any dispatch has completed.
func New(maxSize, workers int, initialMeanServiceTime time.Duration, handler Handler, cancelReg CancelRegistry) *Queue {
	return &Queue{
		maxSize:         maxSize,
		workers:         workers,
		handler:         handler,
		cancelReg:       cancelReg,
		activeByQueueID: make(map[string]string),
		activeCancel:    make(map[string]context.CancelFunc),
		meanServiceTime: initialMeanServiceTime,
		wake:            make(chan struct{}, maxSize+workers),
	}
}

// Enqueue admits req, or fails with errorkind.Overloaded if the queue is at
// its hard cap or intake has been stopped for shutdown drain.
func (q *Queue) Enqueue(req model.Request, onComplete ReplyFunc) (EnqueueResult, error) {
	if q.intakeStopped.Load() {
		return EnqueueResult{}, errorkind.Overloaded
	}

	q.mu.Lock()
	if q.size >= q.maxSize {
		q.mu.Unlock()
		return EnqueueResult{}, errorkind.Overloaded
	}

	queueID := req.ID
	if queueID == "" {
		queueID = fmt.Sprintf("qid_%d_%s", req.Arrived.UnixNano(), req.UserID)
	}
	priority := clampPriority(int(req.Priority))
	it := &item{
		req:        req,
		queueID:    queueID,
		userID:     req.UserID,
		priority:   priority,
		enqueuedAt: req.Arrived,
		onComplete: onComplete,
	}
	q.bands[priority] = append(q.bands[priority], it)
	position := q.positionLocked(it)
	q.size++
	mean := q.meanServiceTime
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	return EnqueueResult{
		QueueID:    queueID,
		Position:   position,
		ETASeconds: float64(position) * mean.Seconds(),
	}, nil
}

// positionLocked counts requests strictly ahead of it under a simple
// priority-then-FIFO model. Must be called with q.mu held. The anti-
// starvation reservation perturbs actual dispatch order slightly (every
// fourth dispatch serves the lowest non-empty band); position is reported
// as an estimate under the dominant priority-band policy, consistent with
// etaSeconds itself being an estimate.
func (q *Queue) positionLocked(target *item) int {
	ahead := 0
	for p := numBands - 1; p > target.priority; p-- {
		ahead += len(q.bands[p])
	}
	for _, other := range q.bands[target.priority] {
		if other == target {
			break
		}
		ahead++
	}
	return ahead
}

// Status reports "processing" if any of userID's requests is active,
// otherwise the first of its queued requests found scanning from the
// highest priority band down, otherwise "none". O(N) scan.
func (q *Queue) Status(userID string) Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, activeUserID := range q.activeByQueueID {
		if activeUserID == userID {
			return Status{State: "processing"}
		}
	}
	for p := numBands - 1; p >= 0; p-- {
		for _, it := range q.bands[p] {
			if it.userID == userID {
				pos := q.positionLocked(it)
				return Status{State: "queued", Position: pos, ETASeconds: float64(pos) * q.meanServiceTime.Seconds()}
			}
		}
	}
	return Status{State: "none"}
}

// Cancel stops queueID's work: if still queued, it is removed without ever
// dispatching; if already active, its Dispatcher-facing context is
// cancelled so cooperative cancellation can release sub-calls within
// gracePeriod (spec.md §5). Returns false if queueID is unknown to either
// path (already completed, or never existed).
func (q *Queue) Cancel(queueID string) bool {
	q.mu.Lock()
	for p := 0; p < numBands; p++ {
		for i, it := range q.bands[p] {
			if it.queueID == queueID {
				q.bands[p] = append(q.bands[p][:i], q.bands[p][i+1:]...)
				q.size--
				q.mu.Unlock()
				if it.onComplete != nil {
					go it.onComplete(Outcome{}, errorkind.Cancelled)
				}
				if q.cancelReg != nil {
					_ = q.cancelReg.MarkCancelled(context.Background(), queueID)
				}
				return true
			}
		}
	}
	cancel, active := q.activeCancel[queueID]
	q.mu.Unlock()
	if !active {
		return false
	}
	if q.cancelReg != nil {
		_ = q.cancelReg.MarkCancelled(context.Background(), queueID)
	}
	cancel()
	return true
}

// popNext selects the next item to dispatch, applying the anti-starvation
// reservation: every fourth dispatch is reserved for the lowest non-empty
// band regardless of overall priority ordering.
func (q *Queue) popNext() (*item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return nil, false
	}
	q.dispatchCount++

	var it *item
	if q.dispatchCount%4 == 0 {
		for p := 0; p < numBands; p++ {
			if len(q.bands[p]) > 0 {
				it = q.bands[p][0]
				q.bands[p] = q.bands[p][1:]
				break
			}
		}
	}
	if it == nil {
		for p := numBands - 1; p >= 0; p-- {
			if len(q.bands[p]) > 0 {
				it = q.bands[p][0]
				q.bands[p] = q.bands[p][1:]
				break
			}
		}
	}
	if it == nil {
		return nil, false
	}
	q.size--
	q.activeByQueueID[it.queueID] = it.userID
	return it, true
}

func (q *Queue) finishActive(queueID string, elapsed time.Duration) {
	q.mu.Lock()
	delete(q.activeByQueueID, queueID)
	const alpha = 0.2
	q.meanServiceTime = time.Duration(alpha*float64(elapsed) + (1-alpha)*float64(q.meanServiceTime))
	q.mu.Unlock()
}

// Run starts the worker pool and blocks until ctx is cancelled and every
// worker has returned from its current dispatch.
func (q *Queue) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(q.workers)
	for i := 0; i < q.workers; i++ {
		go func() {
			defer wg.Done()
			q.runWorker(ctx)
		}()
	}
	wg.Wait()
}

func (q *Queue) runWorker(ctx context.Context) {
	for {
		it, ok := q.popNext()
		if !ok {
			select {
			case <-q.wake:
			case <-time.After(50 * time.Millisecond):
			case <-ctx.Done():
				return
			}
			continue
		}
		q.process(ctx, it)
		if ctx.Err() != nil {
			return
		}
	}
}

func (q *Queue) process(ctx context.Context, it *item) {
	ctx, span := observability.StartSpan(ctx, "queue.dispatch")
	defer span.End()

	if q.cancelReg != nil {
		if cancelled, _ := q.cancelReg.IsCancelled(ctx, it.queueID); cancelled {
			q.finishActive(it.queueID, 0)
			if it.onComplete != nil {
				it.onComplete(Outcome{}, errorkind.Cancelled)
			}
			return
		}
	}

	dispatchCtx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.activeCancel[it.queueID] = cancel
	q.mu.Unlock()

	start := time.Now()
	outcome, err := q.handler(dispatchCtx, it.req)
	elapsed := time.Since(start)
	cancel()
	q.mu.Lock()
	delete(q.activeCancel, it.queueID)
	q.mu.Unlock()

	observability.RecordError(span, err)
	q.finishActive(it.queueID, elapsed)

	if it.onComplete != nil {
		it.onComplete(outcome, err)
	}
}

// StopIntake causes every subsequent Enqueue to fail with Overloaded,
// without disturbing already-queued or in-flight work. Used by the
// Supervisor at the start of a graceful shutdown drain.
func (q *Queue) StopIntake() {
	q.intakeStopped.Store(true)
}

// Drain cancels every still-queued (not yet active) Request and returns
// once the queue is empty of queued work; it does not wait for in-flight
// dispatches, which the Supervisor bounds separately via its drain period.
func (q *Queue) Drain() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for p := 0; p < numBands; p++ {
		for _, it := range q.bands[p] {
			if it.onComplete != nil {
				go it.onComplete(Outcome{}, errorkind.Cancelled)
			}
		}
		q.bands[p] = nil
	}
	q.size = 0
}

// ActiveCount reports how many dispatches are currently in flight.
func (q *Queue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.activeByQueueID)
}

// QueuedCount reports how many Requests are waiting across all bands.
func (q *Queue) QueuedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func clampPriority(p int) int {
	if p < 0 {
		return 0
	}
	if p > numBands-1 {
		return numBands - 1
	}
	return p
}
