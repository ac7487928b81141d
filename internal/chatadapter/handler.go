package chatadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/lyraworks/qdc/internal/model"
	"github.com/lyraworks/qdc/internal/queue"
)

// Submitter is the narrow Supervisor surface this adapter needs, matching
// Supervisor.Submit's signature exactly so the adapter never imports the
// supervisor package directly (avoids a dependency cycle, mirrors
// internal/queue's own Handler decoupling from internal/dispatch).
type Submitter interface {
	Submit(req model.Request, onComplete queue.ReplyFunc) (queue.EnqueueResult, error)
}

type completion struct {
	outcome queue.Outcome
	err     error
}

// HandleCommand submits one command envelope and blocks until its reply
// arrives, the request deadline passes, or ctx is cancelled, returning the
// envelope to publish to the responses topic (or its DLQ).
func HandleCommand(ctx context.Context, sub Submitter, cmd CommandEnvelope, requestTimeout time.Duration) ResponseEnvelope {
	if cmd.CorrelationID == "" {
		return ResponseEnvelope{Status: "error", Error: "missing correlation_id"}
	}
	if cmd.UserID == "" || cmd.Text == "" {
		return ResponseEnvelope{CorrelationID: cmd.CorrelationID, Status: "error", Error: "missing user_id or text"}
	}

	priority := model.PriorityDefault
	if cmd.Priority != nil {
		priority = *cmd.Priority
	}

	now := time.Now()
	req := model.Request{
		ID:       cmd.CorrelationID,
		UserID:   cmd.UserID,
		Arrived:  now,
		Text:     cmd.Text,
		Channel:  cmd.Channel,
		Priority: priority,
		Deadline: now.Add(requestTimeout),
	}

	done := make(chan completion, 1)
	_, err := sub.Submit(req, func(outcome queue.Outcome, err error) {
		done <- completion{outcome: outcome, err: err}
	})
	if err != nil {
		return ResponseEnvelope{CorrelationID: cmd.CorrelationID, Status: "error", Error: err.Error()}
	}

	select {
	case c := <-done:
		if c.err != nil {
			return ResponseEnvelope{CorrelationID: cmd.CorrelationID, Status: "error", Error: c.err.Error()}
		}
		status := "ok"
		if c.outcome.Degraded {
			status = "degraded"
		}
		return ResponseEnvelope{CorrelationID: cmd.CorrelationID, Status: status, Reply: c.outcome.Reply}
	case <-ctx.Done():
		return ResponseEnvelope{CorrelationID: cmd.CorrelationID, Status: "error", Error: fmt.Sprintf("adapter shutting down: %v", ctx.Err())}
	case <-time.After(requestTimeout + 5*time.Second):
		return ResponseEnvelope{CorrelationID: cmd.CorrelationID, Status: "error", Error: "timed out waiting for reply"}
	}
}
