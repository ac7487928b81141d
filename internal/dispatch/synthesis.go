package dispatch

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lyraworks/qdc/internal/model"
)

const noRelevantMemories = "No relevant memories found."

var (
	thinkBlockPattern = regexp.MustCompile(`(?is)<think>.*?</think>`)
	tagBlockPattern   = regexp.MustCompile(`(?is)<[a-zA-Z/][^>]*>`)
	extraBlankLines   = regexp.MustCompile(`\n\s*\n+`)
)

// cleanParticleText strips any <think>...</think> block and remaining
// angle-bracket tagged blocks, collapses runs of blank lines down to one,
// and trims, per the synthesis rule's first step.
func cleanParticleText(raw string) string {
	s := thinkBlockPattern.ReplaceAllString(raw, "")
	s = tagBlockPattern.ReplaceAllString(s, "")
	s = extraBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// buildMemoryContext renders topK memory matches into the exact textual
// form the synthesis rule appends, or the sentinel when there are none.
func buildMemoryContext(matches []model.MemoryMatch) string {
	if len(matches) == 0 {
		return noRelevantMemories
	}
	lines := make([]string, 0, len(matches)+1)
	lines = append(lines, "Relevant memories:")
	for i, m := range matches {
		lines = append(lines, fmt.Sprintf("%d. %s (relevance: %.2f)", i+1, m.Content, m.Score))
	}
	return strings.Join(lines, "\n")
}

// synthesize implements the deterministic synthesis rule of spec.md §4.6.3.
// Pure given its inputs: identical particleText/wave/memoryContext always
// produce an identical reply.
func synthesize(particleText string, wave waveResult, memoryContext string) string {
	reply := cleanParticleText(particleText)

	if strings.Contains(strings.ToLower(wave.ContextSummary), "returning customer") {
		reply = "Welcome back! " + reply
	}

	dominant := dominantEmotion(wave.EmotionProfile)
	if dominant != "" && dominant != "neutral" {
		reply += " I can sense your " + dominant + " energy and I'm here with you."
	}

	if len(wave.RelevantMemories) > 0 {
		reply = "Based on our previous interactions, " + reply
	}

	if memoryContext != noRelevantMemories {
		reply += " Drawing from our shared memories: " + memoryContext
	}

	return reply
}

func dominantEmotion(profile map[string]float64) string {
	best := ""
	bestScore := -1.0
	for emotion, score := range profile {
		if score > bestScore {
			best = emotion
			bestScore = score
		}
	}
	return best
}

// personalizationScore is metadata-only: it never influences the reply
// text, only what the Dispatcher records alongside it.
func personalizationScore(particleConfidence float64, emotionAxisCount int, particleTime, waveTime float64) float64 {
	score := 0.3 + 0.3*particleConfidence

	switch {
	case emotionAxisCount > 3:
		score += 0.2
	case emotionAxisCount > 1:
		score += 0.1
	}

	if particleTime < 5.0 && waveTime < 3.0 {
		score += 0.2
	}

	if score > 1.0 {
		return 1.0
	}
	if score < 0.0 {
		return 0.0
	}
	return score
}
