// Package chatadapter is the peripheral Kafka ingress/egress adapter: it
// reads command envelopes off a commands topic, submits each as a Request
// to the Supervisor, and publishes the reply (or a failure) to a responses
// topic or its DLQ. It sits outside the C1-C7 core and exists only to give
// the fixed external interface something real to talk to. Grounded on
// internal/orchestrator/{handler.go,kafka.go}.
package chatadapter

import "github.com/lyraworks/qdc/internal/model"

// CommandEnvelope is one inbound message on the commands topic.
type CommandEnvelope struct {
	CorrelationID string        `json:"correlation_id"`
	UserID        string        `json:"user_id"`
	Text          string        `json:"text"`
	Channel       string        `json:"channel,omitempty"`
	Priority      *model.Priority `json:"priority,omitempty"`
}

// ResponseEnvelope is published to the responses topic on success, or to
// the responses topic's ".dlq" topic on permanent failure.
type ResponseEnvelope struct {
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`
	Reply         string `json:"reply,omitempty"`
	Error         string `json:"error,omitempty"`
}
