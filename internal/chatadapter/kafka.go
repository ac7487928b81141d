package chatadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/lyraworks/qdc/internal/config"
)

// Adapter consumes command envelopes from a Kafka topic, submits each to a
// Supervisor, and publishes the reply (or DLQs it after retries are
// exhausted). Grounded on internal/orchestrator/kafka.go's reader-loop +
// worker-pool + commit-after-handling shape.
type Adapter struct {
	reader   *kafka.Reader
	producer *kafka.Writer

	submitter      Submitter
	responsesTopic string
	requestTimeout time.Duration
	workers        int
	maxAttempts    int
}

// New builds an Adapter from cfg. It returns (nil, nil) when no brokers are
// configured, signalling the caller should simply not start it — the core
// is fully usable without this peripheral adapter.
func New(cfg config.ChatAdapterConfig, sub Submitter, requestTimeout time.Duration, workers int) (*Adapter, error) {
	brokers := splitCSV(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		return nil, nil
	}
	if cfg.KafkaCommandsTopic == "" || cfg.KafkaResponsesTopic == "" {
		return nil, fmt.Errorf("chatadapter: commandsTopic and responsesTopic are required when brokers are configured")
	}
	if workers <= 0 {
		workers = 4
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  cfg.KafkaGroupID,
		Topic:    cfg.KafkaCommandsTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	producer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Balancer: &kafka.LeastBytes{},
	})

	return &Adapter{
		reader:         reader,
		producer:       producer,
		submitter:      sub,
		responsesTopic: cfg.KafkaResponsesTopic,
		requestTimeout: requestTimeout,
		workers:        workers,
		maxAttempts:    3,
	}, nil
}

// Close releases the Kafka reader and producer.
func (a *Adapter) Close() error {
	var first error
	if err := a.reader.Close(); err != nil {
		first = err
	}
	if err := a.producer.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// Run reads commands until ctx is cancelled, fanning each out to a bounded
// worker pool; messages are committed only once handled (published or
// DLQ'd), matching the teacher's at-least-once semantics.
func (a *Adapter) Run(ctx context.Context) error {
	jobs := make(chan kafka.Message, a.workers*4)

	var wg sync.WaitGroup
	wg.Add(a.workers)
	for i := 0; i < a.workers; i++ {
		go func() {
			defer wg.Done()
			a.worker(ctx, jobs)
		}()
	}

	go func() {
		defer close(jobs)
		for {
			if ctx.Err() != nil {
				return
			}
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				log.Warn().Err(err).Msg("chatadapter: fetch error")
				t := time.NewTimer(500 * time.Millisecond)
				select {
				case <-t.C:
				case <-ctx.Done():
					t.Stop()
					return
				}
				continue
			}
			select {
			case jobs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	return ctx.Err()
}

func (a *Adapter) worker(ctx context.Context, jobs <-chan kafka.Message) {
	for msg := range jobs {
		a.handleWithRetry(ctx, msg)
		if err := a.reader.CommitMessages(ctx, msg); err != nil {
			log.Warn().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).Msg("chatadapter: commit failed")
		}
	}
}

func (a *Adapter) handleWithRetry(ctx context.Context, msg kafka.Message) {
	var cmd CommandEnvelope
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		env := ResponseEnvelope{CorrelationID: string(msg.Key), Status: "error", Error: fmt.Sprintf("malformed command JSON: %v", err)}
		a.publish(ctx, dlqTopic(a.responsesTopic), env)
		return
	}

	var lastResp ResponseEnvelope
retryLoop:
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		lastResp = HandleCommand(ctx, a.submitter, cmd, a.requestTimeout)
		if lastResp.Status != "error" || ctx.Err() != nil {
			break
		}
		if attempt < a.maxAttempts {
			backoff := time.Duration(200*(1<<uint(attempt-1))) * time.Millisecond
			log.Warn().Str("correlation_id", cmd.CorrelationID).Int("attempt", attempt).Dur("backoff", backoff).Str("error", lastResp.Error).Msg("chatadapter: retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				break retryLoop
			}
		}
	}

	if lastResp.Status == "error" {
		a.publish(ctx, dlqTopic(a.responsesTopic), lastResp)
		return
	}
	a.publish(ctx, a.responsesTopic, lastResp)
}

func (a *Adapter) publish(ctx context.Context, topic string, env ResponseEnvelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("correlation_id", env.CorrelationID).Msg("chatadapter: failed to marshal response")
		return
	}
	if err := a.producer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: []byte(env.CorrelationID), Value: payload}); err != nil {
		log.Error().Err(err).Str("correlation_id", env.CorrelationID).Str("topic", topic).Msg("chatadapter: failed to publish")
	}
}

func dlqTopic(responsesTopic string) string {
	return responsesTopic + ".dlq"
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
