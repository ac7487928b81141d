// Package embedding implements the Embedding Memory (C4): nearest-neighbour
// lookup over stored memories, with a deterministic fallback mode when the
// real embedding backend is unavailable.
package embedding

import (
	"context"
	"time"

	"github.com/lyraworks/qdc/internal/model"
)

// Index is the nearest-neighbour backend contract shared by the local
// file-backed implementation and the optional Qdrant-backed one. Both
// L2-normalise on insert and use inner-product similarity at query time.
type Index interface {
	// Index appends vector under memID. Index is a single-writer,
	// many-reader operation: a concurrent TopK either sees vector fully or
	// not at all.
	Index(ctx context.Context, memID string, vector []float64, content string, ts time.Time) error

	// TopK returns up to k matches scoring at or above similarityThreshold,
	// highest score first.
	TopK(ctx context.Context, vector []float64, k int, similarityThreshold float64) ([]model.MemoryMatch, error)

	// Recent returns up to limit most-recently indexed entries with no
	// similarity score attached. Used only by fallback-mode keyword search.
	Recent(ctx context.Context, limit int) ([]model.MemoryMatch, error)

	// Close releases any held resources (files, network clients).
	Close() error
}

// FallbackDim is the fixed length of a hash-derived pseudo-embedding.
const FallbackDim = 16

// FallbackScoreCap is the maximum score topK may report in fallback mode;
// it never reaches 1.0 so callers can distinguish a degraded match from a
// genuine exact match.
const FallbackScoreCap = 0.95
