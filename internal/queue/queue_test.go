package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lyraworks/qdc/internal/errorkind"
	"github.com/lyraworks/qdc/internal/model"
)

func newTestQueue(t *testing.T, maxSize, workers int, handler Handler) *Queue {
	t.Helper()
	reg, err := NewCancelRegistry("")
	if err != nil {
		t.Fatalf("NewCancelRegistry() error = %v", err)
	}
	return New(maxSize, workers, 10*time.Second, handler, reg)
}

func TestEnqueue_RejectsAtHardCap(t *testing.T) {
	block := make(chan struct{})
	q := newTestQueue(t, 1, 1, func(ctx context.Context, req model.Request) (Outcome, error) {
		<-block
		return Outcome{Reply: "ok"}, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	if _, err := q.Enqueue(model.Request{ID: "r1", UserID: "u1", Arrived: time.Now()}, nil); err != nil {
		t.Fatalf("first Enqueue() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond) // let the worker pick it up so the band empties

	if _, err := q.Enqueue(model.Request{ID: "r2", UserID: "u2", Arrived: time.Now()}, nil); err != nil {
		t.Fatalf("second Enqueue() error = %v", err)
	}
	_, err := q.Enqueue(model.Request{ID: "r3", UserID: "u3", Arrived: time.Now()}, nil)
	if err != errorkind.Overloaded {
		t.Fatalf("third Enqueue() error = %v, want Overloaded", err)
	}
	close(block)
}

func TestEnqueue_HigherPriorityServedFirst(t *testing.T) {
	var mu sync.Mutex
	var order []string
	done := make(chan struct{}, 3)

	q := newTestQueue(t, 10, 1, func(ctx context.Context, req model.Request) (Outcome, error) {
		mu.Lock()
		order = append(order, req.ID)
		mu.Unlock()
		done <- struct{}{}
		return Outcome{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Enqueue a blocker, then a low and a high request, all before the
	// worker pool starts, so the pool sees all three queued at once; the
	// blocker is released as soon as the pool starts.
	block := make(chan struct{})
	blockerHandler := q.handler
	q.handler = func(ctx context.Context, req model.Request) (Outcome, error) {
		if req.ID == "blocker" {
			<-block
			return Outcome{}, nil
		}
		return blockerHandler(ctx, req)
	}
	if _, err := q.Enqueue(model.Request{ID: "blocker", UserID: "u0", Arrived: time.Now(), Priority: 5}, nil); err != nil {
		t.Fatalf("Enqueue(blocker) error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, err := q.Enqueue(model.Request{ID: "low", UserID: "u1", Arrived: time.Now(), Priority: 1}, nil); err != nil {
		t.Fatalf("Enqueue(low) error = %v", err)
	}
	if _, err := q.Enqueue(model.Request{ID: "high", UserID: "u2", Arrived: time.Now(), Priority: 9}, nil); err != nil {
		t.Fatalf("Enqueue(high) error = %v", err)
	}

	go q.Run(ctx)
	close(block)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for dispatches")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) < 2 || order[0] != "high" {
		t.Fatalf("order = %v, want high served before low", order)
	}
}

func TestCancel_RemovesQueuedRequest(t *testing.T) {
	q := newTestQueue(t, 10, 0, func(ctx context.Context, req model.Request) (Outcome, error) {
		return Outcome{}, nil
	})
	res, err := q.Enqueue(model.Request{ID: "r1", UserID: "u1", Arrived: time.Now()}, nil)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if !q.Cancel(res.QueueID) {
		t.Fatal("Cancel() = false, want true")
	}
	if q.Cancel(res.QueueID) {
		t.Fatal("second Cancel() = true, want false (already removed)")
	}
	if q.QueuedCount() != 0 {
		t.Errorf("QueuedCount() = %d, want 0", q.QueuedCount())
	}
}

func TestCancel_StopsActiveDispatch(t *testing.T) {
	entered := make(chan struct{})
	q := newTestQueue(t, 10, 1, func(ctx context.Context, req model.Request) (Outcome, error) {
		close(entered)
		<-ctx.Done()
		return Outcome{}, errorkind.Cancelled
	})
	ctx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go q.Run(ctx)

	result := make(chan error, 1)
	res, err := q.Enqueue(model.Request{ID: "r1", UserID: "u1", Arrived: time.Now()}, func(_ Outcome, err error) {
		result <- err
	})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("dispatch never started")
	}

	if !q.Cancel(res.QueueID) {
		t.Fatal("Cancel() = false, want true for an active dispatch")
	}

	select {
	case err := <-result:
		if err != errorkind.Cancelled {
			t.Fatalf("onComplete err = %v, want Cancelled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("onComplete never called after cancel")
	}
}

func TestStatus_ReportsQueuedThenNone(t *testing.T) {
	q := newTestQueue(t, 10, 0, func(ctx context.Context, req model.Request) (Outcome, error) {
		return Outcome{}, nil
	})
	if _, err := q.Enqueue(model.Request{ID: "r1", UserID: "u1", Arrived: time.Now()}, nil); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if st := q.Status("u1"); st.State != "queued" {
		t.Errorf("Status() = %+v, want queued", st)
	}
	if st := q.Status("u-unknown"); st.State != "none" {
		t.Errorf("Status() = %+v, want none", st)
	}
}

func TestStopIntake_RejectsNewWork(t *testing.T) {
	q := newTestQueue(t, 10, 0, func(ctx context.Context, req model.Request) (Outcome, error) {
		return Outcome{}, nil
	})
	q.StopIntake()
	_, err := q.Enqueue(model.Request{ID: "r1", UserID: "u1", Arrived: time.Now()}, nil)
	if err != errorkind.Overloaded {
		t.Fatalf("Enqueue() error = %v, want Overloaded", err)
	}
}
