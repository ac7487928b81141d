package model

import "time"

// Profile is a user's persistent display/cognitive attributes plus the
// rolling context-line index the Dispatcher reads before every dispatch.
type Profile struct {
	UserID string

	BasicInformation        BasicInformation
	CognitiveProfile        map[string]string
	CommunicationGuidelines map[string]string
	RelationshipToAI        map[string]string

	MemoryContextIndex MemoryContextIndex
	SystemMetadata     SystemMetadata
}

// BasicInformation holds free-form display attributes restored from
// original_source's default profile template (name/age/role, among others).
type BasicInformation struct {
	Name string
	Age  string
	Role string
}

// MemoryContextIndex tracks the append-only memory log in compact form.
// Invariant: len(ContextLines) == TotalMemories.
type MemoryContextIndex struct {
	TotalMemories int
	ContextLines  []string
}

type SystemMetadata struct {
	CreatedDate        time.Time
	LastUpdated        time.Time
	InteractionCount   int
	ProfileCompleteness float64
	TrustLevel          float64
}
