package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lyraworks/qdc/internal/errorkind"
)

func TestCall_Generative_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generativeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("model = %q, want test-model", req.Model)
		}
		json.NewEncoder(w).Encode(generativeResponse{
			Choices: []struct {
				Message wireMessage `json:"message"`
			}{{Message: wireMessage{Role: "assistant", Content: "hi there"}}},
		})
	}))
	defer srv.Close()

	c := New(Endpoint{Kind: Generative, URL: srv.URL, Model: "test-model"}, srv.Client())
	result, err := c.Call(context.Background(), []Message{{Role: "user", Content: "hello"}}, Params{}, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if result.Text != "hi there" {
		t.Errorf("Text = %q, want %q", result.Text, "hi there")
	}
}

func TestCall_Contextual_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req contextualRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("expected stream=false")
		}
		json.NewEncoder(w).Encode(contextualResponse{Response: "returning customer"})
	}))
	defer srv.Close()

	c := New(Endpoint{Kind: Contextual, URL: srv.URL, Model: "ctx-model"}, srv.Client())
	result, err := c.Call(context.Background(), []Message{{Role: "user", Content: "hello"}}, Params{}, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if result.Text != "returning customer" {
		t.Errorf("Text = %q, want %q", result.Text, "returning customer")
	}
}

func TestCall_PastDeadline_FailsImmediately(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := New(Endpoint{Kind: Generative, URL: srv.URL, Model: "m"}, srv.Client())
	_, err := c.Call(context.Background(), []Message{{Role: "user", Content: "x"}}, Params{}, time.Now().Add(-time.Second))
	if err != errorkind.Timeout {
		t.Fatalf("err = %v, want Timeout", err)
	}
	if called {
		t.Error("expected no HTTP call for an already-past deadline")
	}
}

func TestCall_ServerError_ReturnsProtocol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(Endpoint{Kind: Generative, URL: srv.URL, Model: "m"}, srv.Client())
	_, err := c.Call(context.Background(), []Message{{Role: "user", Content: "x"}}, Params{}, time.Now().Add(time.Second))
	kind, ok := errorkind.Of(err)
	if !ok || kind != errorkind.Protocol {
		t.Fatalf("err kind = %v (ok=%v), want Protocol", kind, ok)
	}
}

func TestCall_Unreachable_ReturnsUnavailable(t *testing.T) {
	c := New(Endpoint{Kind: Generative, URL: "http://127.0.0.1:1", Model: "m"}, http.DefaultClient)
	_, err := c.Call(context.Background(), []Message{{Role: "user", Content: "x"}}, Params{}, time.Now().Add(2*time.Second))
	kind, ok := errorkind.Of(err)
	if !ok || kind != errorkind.Unavailable {
		t.Fatalf("err kind = %v (ok=%v), want Unavailable", kind, ok)
	}
}

func TestEmbed_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(embeddingResponse{
			Data: []struct {
				Embedding []float64 `json:"embedding"`
			}{{Embedding: []float64{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	c := New(Endpoint{Kind: Embedding, URL: srv.URL, Model: "embed-model"}, srv.Client())
	vec, err := c.Embed(context.Background(), "quantum AI", time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("vec = %+v, want [0.1 0.2 0.3]", vec)
	}
}

func TestEmbed_PastDeadline_FailsImmediately(t *testing.T) {
	c := New(Endpoint{Kind: Embedding, URL: "http://127.0.0.1:1", Model: "m"}, http.DefaultClient)
	_, err := c.Embed(context.Background(), "x", time.Now().Add(-time.Second))
	if err != errorkind.Timeout {
		t.Fatalf("err = %v, want Timeout", err)
	}
}
