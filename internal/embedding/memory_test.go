package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/lyraworks/qdc/internal/errorkind"
)

type stubEmbedder struct {
	vector []float64
	err    error
}

func (s stubEmbedder) Embed(context.Context, string, time.Time) ([]float64, error) {
	return s.vector, s.err
}

func TestMemory_Embed_FallsBackOnUnavailable(t *testing.T) {
	dir := t.TempDir()
	idx, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	defer idx.Close()

	mem := NewMemory(stubEmbedder{err: errorkind.Unavailable}, idx)
	vector, fallback, err := mem.Embed(context.Background(), "hello world", time.Now())
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if !fallback {
		t.Error("expected fallback=true on Unavailable")
	}
	if len(vector) != FallbackDim {
		t.Errorf("len(vector) = %d, want %d", len(vector), FallbackDim)
	}
}

func TestMemory_Embed_PropagatesNonRecoverableError(t *testing.T) {
	dir := t.TempDir()
	idx, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	defer idx.Close()

	mem := NewMemory(stubEmbedder{err: errorkind.StoreFailed}, idx)
	_, _, err = mem.Embed(context.Background(), "hello", time.Now())
	if err == nil {
		t.Fatal("expected error to propagate for non-recoverable kind")
	}
}

func TestMemory_TopK_FallbackCapsScore(t *testing.T) {
	dir := t.TempDir()
	idx, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	if err := idx.Index(ctx, "mem1", HashEmbedding("quantum AI superposition"), "quantum AI superposition", time.Now()); err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	mem := NewMemory(stubEmbedder{}, idx)
	matches, err := mem.TopK(ctx, "quantum AI superposition concepts", nil, 3, 0.7, true)
	if err != nil {
		t.Fatalf("TopK() error = %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %+v, want 1", matches)
	}
	if matches[0].Score > FallbackScoreCap {
		t.Errorf("score = %v, exceeds fallback cap %v", matches[0].Score, FallbackScoreCap)
	}
	if matches[0].Score >= 1.0 {
		t.Errorf("fallback score = %v, must never reach 1.0", matches[0].Score)
	}
}
