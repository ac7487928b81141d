package embedding

import (
	"context"
	"crypto/sha256"
	"sort"
	"strings"
	"time"

	"github.com/lyraworks/qdc/internal/errorkind"
	"github.com/lyraworks/qdc/internal/model"
)

// Embedder calls the remote embedding endpoint (C1). Memory depends on this
// narrow interface rather than the inference package directly, so embedding
// has no import-time dependency on HTTP transport details.
type Embedder interface {
	Embed(ctx context.Context, text string, deadline time.Time) ([]float64, error)
}

// Memory composes an Embedder with an Index backend to implement the full
// C4 contract: embed-with-fallback, then topK with the same fallback
// visible to the caller via the returned bool.
type Memory struct {
	embedder Embedder
	index    Index
}

func NewMemory(embedder Embedder, index Index) *Memory {
	return &Memory{embedder: embedder, index: index}
}

// Embed returns a vector for text. On Unavailable/Timeout/Protocol/Cancelled
// from the embedding endpoint, it returns a deterministic fallback pseudo-embedding
// and fallback=true rather than failing the caller.
func (m *Memory) Embed(ctx context.Context, text string, deadline time.Time) (vector []float64, fallback bool, err error) {
	vector, err = m.embedder.Embed(ctx, text, deadline)
	if err == nil {
		return vector, false, nil
	}
	if kind, ok := errorkind.Of(err); ok {
		switch kind {
		case errorkind.Unavailable, errorkind.Timeout, errorkind.Protocol, errorkind.Cancelled:
			return HashEmbedding(text), true, nil
		}
	}
	return nil, false, err
}

// HashEmbedding produces a deterministic pseudo-embedding of FallbackDim
// floats in [0,1] by hashing text and reinterpreting the first bytes as
// fractional values.
func HashEmbedding(text string) []float64 {
	sum := sha256.Sum256([]byte(text))
	out := make([]float64, FallbackDim)
	for i := 0; i < FallbackDim; i++ {
		out[i] = float64(sum[i%len(sum)]) / 255.0
	}
	return out
}

// Index appends vector (already computed by the caller, real or fallback)
// to the configured backend.
func (m *Memory) Index(ctx context.Context, memID string, vector []float64, content string, ts time.Time) error {
	return m.index.Index(ctx, memID, vector, content, ts)
}

// TopK returns the top k matches. When fallback is true (the query vector
// came from HashEmbedding), it degrades to a keyword-overlap heuristic over
// recently indexed memories rather than trusting vector similarity, and
// caps scores at FallbackScoreCap.
func (m *Memory) TopK(ctx context.Context, queryText string, vector []float64, k int, similarityThreshold float64, fallback bool) ([]model.MemoryMatch, error) {
	if !fallback {
		return m.index.TopK(ctx, vector, k, similarityThreshold)
	}
	return m.fallbackTopK(ctx, queryText, k)
}

// fallbackTopK scores recent memories by keyword-overlap count with
// queryText, normalised and capped below 1.0 so a degraded match is never
// indistinguishable from a genuine exact one.
func (m *Memory) fallbackTopK(ctx context.Context, queryText string, k int) ([]model.MemoryMatch, error) {
	const recentWindow = 200
	recent, err := m.index.Recent(ctx, recentWindow)
	if err != nil {
		return nil, err
	}

	queryWords := wordSet(queryText)
	if len(queryWords) == 0 {
		return nil, nil
	}

	scored := make([]model.MemoryMatch, 0, len(recent))
	for _, r := range recent {
		overlap := overlapCount(queryWords, wordSet(r.Content))
		if overlap == 0 {
			continue
		}
		score := float64(overlap) / float64(len(queryWords))
		if score > FallbackScoreCap {
			score = FallbackScoreCap
		}
		r.Score = score
		scored = append(scored, r)
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func overlapCount(a, b map[string]struct{}) int {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}

// Close releases the underlying Index backend's resources.
func (m *Memory) Close() error {
	return m.index.Close()
}
