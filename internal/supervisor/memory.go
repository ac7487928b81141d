package supervisor

import (
	"fmt"

	"github.com/lyraworks/qdc/internal/config"
	"github.com/lyraworks/qdc/internal/embedding"
	"github.com/lyraworks/qdc/internal/inference"
)

// defaultEmbeddingDimensions is used to size the Qdrant collection; the
// embedding endpoint's actual vector width is not configuration, so this is
// a reasonable fixed default for the backends the pack wires (matches
// common sentence-embedding model widths).
const defaultEmbeddingDimensions = 1536

// newMemory builds the embedding.Memory for cfg.Embedding.Backend. It
// returns the Local backend alongside Memory whenever one is reachable
// (always for "local", and as the mirror for "qdrant") so the Supervisor can
// hand it to the S3 archiver without a type assertion.
func newMemory(cfg config.Config, embedClient *inference.Client) (*embedding.Memory, *embedding.Local, error) {
	local, err := embedding.NewLocal(cfg.DataRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("init local embedding index: %w", err)
	}

	switch cfg.Embedding.Backend {
	case "", "local":
		return embedding.NewMemory(embedClient, local), local, nil
	case "qdrant":
		q, err := embedding.NewQdrant(cfg.Embedding.QdrantDSN, "qdc_memories", defaultEmbeddingDimensions, local)
		if err != nil {
			return nil, nil, fmt.Errorf("init qdrant index: %w", err)
		}
		return embedding.NewMemory(embedClient, q), local, nil
	default:
		return nil, nil, fmt.Errorf("unknown embedding backend %q", cfg.Embedding.Backend)
	}
}
