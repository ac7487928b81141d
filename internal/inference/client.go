// Package inference implements the Inference Client (C1): a raw-HTTP round
// trip to one of three remote model endpoints, with absolute-deadline
// enforcement and a closed set of failure kinds. No retries live here —
// retry/fallback policy belongs to the Dispatcher.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lyraworks/qdc/internal/errorkind"
	"github.com/lyraworks/qdc/internal/observability"
)

// EndpointKind selects which of the three wire shapes a Client call uses.
type EndpointKind string

const (
	Generative EndpointKind = "generative"
	Contextual EndpointKind = "contextual"
	Embedding  EndpointKind = "embedding"
)

// Endpoint is one remote backend's fixed configuration.
type Endpoint struct {
	Kind  EndpointKind
	URL   string
	Model string
}

// Params is the structured prompt config subset a caller may supply;
// zero-valued fields are omitted from the outbound request.
type Params struct {
	MaxTokens      int
	Temperature    float64
	TopP           float64
	TopK           int
	RepeatPenalty  float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// Message is one chat turn for the generative endpoint.
type Message struct {
	Role    string
	Content string
}

// Result is a successful round trip.
type Result struct {
	Text    string
	Latency time.Duration
}

// Client performs HTTP round trips to one configured Endpoint. Idempotent
// from the caller's viewpoint: the only mutable state is the shared
// *http.Client connection pool.
type Client struct {
	endpoint Endpoint
	http     *http.Client
}

// New builds a Client for endpoint, using httpClient's connection pool. A
// nil httpClient gets a new client with its own tuned transport (8
// connections per host), so each Client built that way has its own pool.
func New(endpoint Endpoint, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = observability.NewHTTPClient(&http.Client{Transport: observability.TunedTransport(8)})
	}
	return &Client{endpoint: endpoint, http: httpClient}
}

// Call issues one round trip. deadline is absolute: if now >= deadline on
// entry, it fails immediately with Timeout without attempting a request.
func (c *Client) Call(ctx context.Context, msgs []Message, params Params, deadline time.Time) (Result, error) {
	now := time.Now()
	if !now.Before(deadline) {
		return Result{}, errorkind.Timeout
	}

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ctx, span := observability.StartSpan(ctx, "inference.call")
	defer span.End()

	body, err := c.buildBody(msgs, params)
	if err != nil {
		return Result{}, errorkind.Wrap(errorkind.Protocol, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, errorkind.Wrap(errorkind.Protocol, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.RecordError(span, err)
		if ctx.Err() == context.DeadlineExceeded {
			return Result{}, errorkind.Timeout
		}
		if ctx.Err() == context.Canceled {
			return Result{}, errorkind.Cancelled
		}
		return Result{}, errorkind.Wrap(errorkind.Unavailable, err)
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, errorkind.Wrap(errorkind.Protocol, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, errorkind.Wrap(errorkind.Protocol, fmt.Errorf("%s: status %d: %s", c.endpoint.Kind, resp.StatusCode, string(respBody)))
	}

	text, err := c.extractText(respBody)
	if err != nil {
		return Result{}, errorkind.Wrap(errorkind.Protocol, err)
	}
	return Result{Text: text, Latency: latency}, nil
}

func (c *Client) buildBody(msgs []Message, params Params) ([]byte, error) {
	switch c.endpoint.Kind {
	case Generative:
		return json.Marshal(generativeRequest{
			Model:            c.endpoint.Model,
			Messages:         toWireMessages(msgs),
			Temperature:      params.Temperature,
			TopP:             params.TopP,
			MaxTokens:        params.MaxTokens,
			TopK:             params.TopK,
			RepeatPenalty:    params.RepeatPenalty,
			FrequencyPenalty: params.FrequencyPenalty,
			PresencePenalty:  params.PresencePenalty,
		})
	case Contextual:
		prompt := ""
		if len(msgs) > 0 {
			prompt = msgs[len(msgs)-1].Content
		}
		return json.Marshal(contextualRequest{
			Model:  c.endpoint.Model,
			Prompt: prompt,
			Stream: false,
			Options: contextualOptions{
				Temperature: params.Temperature,
				TopP:        params.TopP,
			},
		})
	case Embedding:
		input := ""
		if len(msgs) > 0 {
			input = msgs[len(msgs)-1].Content
		}
		return json.Marshal(embeddingRequest{Model: c.endpoint.Model, Input: input})
	default:
		return nil, fmt.Errorf("inference: unknown endpoint kind %q", c.endpoint.Kind)
	}
}

func (c *Client) extractText(body []byte) (string, error) {
	switch c.endpoint.Kind {
	case Generative:
		var resp generativeResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("inference: generative response has no choices")
		}
		return resp.Choices[0].Message.Content, nil
	case Contextual:
		var resp contextualResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", err
		}
		return resp.Response, nil
	default:
		return "", fmt.Errorf("inference: extractText not supported for endpoint kind %q", c.endpoint.Kind)
	}
}

// Embed is the Embedding-kind-specific call, since its response shape is a
// float vector rather than text.
func (c *Client) Embed(ctx context.Context, text string, deadline time.Time) ([]float64, error) {
	now := time.Now()
	if !now.Before(deadline) {
		return nil, errorkind.Timeout
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ctx, span := observability.StartSpan(ctx, "inference.embed")
	defer span.End()

	body, err := json.Marshal(embeddingRequest{Model: c.endpoint.Model, Input: text})
	if err != nil {
		return nil, errorkind.Wrap(errorkind.Protocol, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return nil, errorkind.Wrap(errorkind.Protocol, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		observability.RecordError(span, err)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errorkind.Timeout
		}
		if ctx.Err() == context.Canceled {
			return nil, errorkind.Cancelled
		}
		return nil, errorkind.Wrap(errorkind.Unavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errorkind.Wrap(errorkind.Protocol, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errorkind.Wrap(errorkind.Protocol, fmt.Errorf("embedding: status %d: %s", resp.StatusCode, string(respBody)))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, errorkind.Wrap(errorkind.Protocol, err)
	}
	if len(parsed.Data) == 0 {
		return nil, errorkind.Wrap(errorkind.Protocol, fmt.Errorf("embedding response has no data"))
	}
	return parsed.Data[0].Embedding, nil
}

func toWireMessages(msgs []Message) []wireMessage {
	out := make([]wireMessage, len(msgs))
	for i, m := range msgs {
		out[i] = wireMessage{Role: m.Role, Content: m.Content}
	}
	return out
}
