package embedding

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/lyraworks/qdc/internal/errorkind"
	"github.com/lyraworks/qdc/internal/model"
)

// originalIDField stores the memId in the point payload since Qdrant point
// IDs must be a UUID or a positive integer.
const originalIDField = "_mem_id"

// Qdrant delegates Index/TopK to a Qdrant collection for operators who want
// horizontal scale beyond one process. It mirrors every write to a Local
// index so a downgrade back to the "local" backend never loses data; Local
// remains the snapshot/sidecar source of truth replayed on startup
// regardless of which backend is configured.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	mirror     *Local
}

// NewQdrant connects to dsn (host:port, e.g. "localhost:6334", optionally
// "https://host:6334?api_key=...") and ensures collection exists with the
// given vector dimension, using inner-product distance to match Local's
// L2-normalize + inner-product semantics.
func NewQdrant(dsn, collection string, dimensions int, mirror *Local) (*Qdrant, error) {
	if collection == "" {
		return nil, fmt.Errorf("embedding: qdrant collection name is required")
	}
	if !strings.Contains(dsn, "://") {
		// A bare host:port would otherwise parse as scheme:opaque.
		dsn = "//" + dsn
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, errorkind.Wrap(errorkind.Unavailable, fmt.Errorf("parse qdrant dsn: %w", err))
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, errorkind.Wrap(errorkind.Unavailable, fmt.Errorf("invalid qdrant port: %w", err))
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}

	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, errorkind.Wrap(errorkind.Unavailable, fmt.Errorf("create qdrant client: %w", err))
	}

	q := &Qdrant{client: client, collection: collection, mirror: mirror}
	if err := q.ensureCollection(context.Background(), dimensions); err != nil {
		client.Close()
		return nil, err
	}
	return q, nil
}

func (q *Qdrant) ensureCollection(ctx context.Context, dimensions int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return errorkind.Wrap(errorkind.Unavailable, err)
	}
	if exists {
		return nil
	}
	if dimensions <= 0 {
		return fmt.Errorf("embedding: qdrant requires dimensions > 0")
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimensions),
			Distance: qdrant.Distance_Dot,
		}),
	})
	if err != nil {
		return errorkind.Wrap(errorkind.Unavailable, err)
	}
	return nil
}

func pointIDFor(memID string) string {
	if _, err := uuid.Parse(memID); err == nil {
		return memID
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(memID)).String()
}

// Index upserts vector into the Qdrant collection, then mirrors the write
// into the Local index unconditionally.
func (q *Qdrant) Index(ctx context.Context, memID string, vector []float64, content string, ts time.Time) error {
	normalized := l2Normalize(vector)
	vec32 := make([]float32, len(normalized))
	for i, v := range normalized {
		vec32[i] = float32(v)
	}
	payload := qdrant.NewValueMap(map[string]any{
		originalIDField: memID,
		"content":       content,
		"timestamp":     ts.UTC().Format(time.RFC3339),
	})
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(pointIDFor(memID)),
			Vectors: qdrant.NewVectorsDense(vec32),
			Payload: payload,
		}},
	})
	if err != nil {
		return errorkind.Wrap(errorkind.Unavailable, err)
	}
	return q.mirror.Index(ctx, memID, vector, content, ts)
}

// TopK queries the Qdrant collection for the k nearest points, dropping any
// below similarityThreshold.
func (q *Qdrant) TopK(ctx context.Context, vector []float64, k int, similarityThreshold float64) ([]model.MemoryMatch, error) {
	normalized := l2Normalize(vector)
	vec32 := make([]float32, len(normalized))
	for i, v := range normalized {
		vec32[i] = float32(v)
	}
	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec32),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, errorkind.Wrap(errorkind.Unavailable, err)
	}

	matches := make([]model.MemoryMatch, 0, len(hits))
	for _, hit := range hits {
		score := float64(hit.Score)
		if score < similarityThreshold {
			continue
		}
		memID := ""
		content := ""
		var ts time.Time
		if hit.Payload != nil {
			if v, ok := hit.Payload[originalIDField]; ok {
				memID = v.GetStringValue()
			}
			if v, ok := hit.Payload["content"]; ok {
				content = v.GetStringValue()
			}
			if v, ok := hit.Payload["timestamp"]; ok {
				ts, _ = time.Parse(time.RFC3339, v.GetStringValue())
			}
		}
		matches = append(matches, model.MemoryMatch{
			MemID:     memID,
			Score:     score,
			Content:   content,
			Timestamp: ts,
		})
	}
	return matches, nil
}

// Recent delegates to the mirrored Local index, since every Qdrant write is
// mirrored there unconditionally.
func (q *Qdrant) Recent(ctx context.Context, limit int) ([]model.MemoryMatch, error) {
	return q.mirror.Recent(ctx, limit)
}

// Close closes the Qdrant client and the mirrored Local index.
func (q *Qdrant) Close() error {
	q.client.Close()
	return q.mirror.Close()
}

var _ Index = (*Qdrant)(nil)
