package model

import "time"

// MemoryEntry is one append-only record of a past exchange. Written once
// and never modified by the core.
type MemoryEntry struct {
	ID        string
	UserID    string
	Timestamp time.Time
	Type      string
	Content   string

	// EmotionWeights is optional; absent for memories that predate scoring
	// or were appended without an EmotionState.
	EmotionWeights EmotionState
	Metadata       map[string]string
}

// Embedding is a fixed-length real vector attached to a MemoryEntry. It may
// be absent from a MemoryEntry when the embedding backend degraded at
// index time.
type Embedding struct {
	MemID  string
	Vector []float64
}

// ContextMatch is one ranked result from Profile Store's searchContext.
type ContextMatch struct {
	MemID     string
	MemType   string
	Timestamp time.Time
	Preview   string
	Relevance int
}

// MemoryMatch is one ranked result from Embedding Memory's topK.
type MemoryMatch struct {
	MemID     string
	Score     float64
	Content   string
	Timestamp time.Time
}
