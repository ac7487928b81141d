package dispatch

import (
	"fmt"
	"strings"
	"time"
)

// waveResult is the Wave position's output: a context summary, a coarse
// emotion profile distinct from the lexicon's EmotionState, and a list of
// prior interactions the model judged relevant. Degraded is set when the
// contextual call itself failed and these are substituted defaults.
type waveResult struct {
	ContextSummary   string
	EmotionProfile   map[string]float64
	RelevantMemories []string
	Degraded         bool
	Elapsed          time.Duration
}

func buildWavePrompt(userID, text string) string {
	return fmt.Sprintf(
		"WAVE POSITION - CONTEXT AND MEMORY ANALYSIS\n\nUser Query: %q\nUser ID: %s\n\n"+
			"Analyze the context, emotions, and memory patterns for this user. Provide:\n"+
			"1. Context summary\n2. Emotion profile\n3. Relevant memories\n4. Interaction patterns\n",
		text, userID,
	)
}

// parseWaveResponse extracts a context summary, coarse emotion profile, and
// a relevant-memories list from the contextual endpoint's free text, via
// keyword detection rather than a fixed wire schema (the contextual
// endpoint returns plain prose, not structured JSON).
func parseWaveResponse(response string) waveResult {
	preview := response
	if len(preview) > 100 {
		preview = preview[:100]
	}
	summary := "User interaction analyzed: " + preview + "..."

	lower := strings.ToLower(response)
	emotions := make(map[string]float64)
	switch {
	case strings.Contains(lower, "happy") || strings.Contains(lower, "excited"):
		emotions["happy"] = 0.8
	case strings.Contains(lower, "sad") || strings.Contains(lower, "depressed"):
		emotions["sad"] = 0.8
	case strings.Contains(lower, "angry") || strings.Contains(lower, "frustrated"):
		emotions["angry"] = 0.8
	}
	if strings.Contains(lower, "returning customer") {
		// context-carrying responses are not necessarily emotional; leaving
		// emotions untouched here keeps "returning customer" from also
		// forcing a spurious dominant emotion.
	}
	if len(emotions) == 0 {
		emotions["neutral"] = 1.0
	}

	return waveResult{
		ContextSummary:   summary,
		EmotionProfile:   emotions,
		RelevantMemories: []string{"prior interaction context"},
	}
}

// degradedWaveResult substitutes an empty context summary and neutral
// emotion profile when the contextual call itself failed (timeout matrix
// row "Wave", spec.md §4.6.2).
func degradedWaveResult() waveResult {
	return waveResult{
		ContextSummary:   "",
		EmotionProfile:   map[string]float64{"neutral": 1.0},
		RelevantMemories: nil,
		Degraded:         true,
	}
}
