// Package lexicon implements the deterministic text-to-emotion scorer (the
// Lexicon Scorer): a pure, no-I/O classifier that maps raw user text to a
// normalised EmotionState and an ordered FragmentActivation.
package lexicon

import (
	"sort"
	"strings"
	"unicode"

	"github.com/lyraworks/qdc/internal/model"
)

// Score computes the EmotionState and FragmentActivation for text. It is
// pure: repeated calls on the same text yield byte-identical results.
func Score(text string) (model.EmotionState, model.FragmentActivation) {
	totals := make(map[model.Axis]float64, len(model.Axes))

	for _, tok := range tokenize(text) {
		weights, ok := wordWeights[tok]
		if !ok {
			continue
		}
		for axis, w := range weights {
			if axis == neutralTag {
				continue
			}
			totals[model.Axis(axis)] += w
		}
	}

	var sum float64
	for _, axis := range model.Axes {
		sum += totals[axis]
	}

	if sum == 0 {
		return model.EmotionState{}, model.FragmentActivation{model.FragmentLyra}
	}

	state := make(model.EmotionState, len(model.Axes))
	for _, axis := range model.Axes {
		state[axis] = totals[axis] / sum
	}

	return state, activateFragments(state)
}

// tokenize lowercases text and splits on word boundaries, discarding empty
// tokens. Word characters are letters and digits; everything else is a
// separator.
func tokenize(text string) []string {
	lower := strings.ToLower(text)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

type fragmentScore struct {
	fragment model.Fragment
	score    float64
}

// activateFragments computes each fragment's dot-product score against the
// normalised axis weights, activates those meeting their threshold (lyra
// always included at the end), and truncates to at most three.
func activateFragments(state model.EmotionState) model.FragmentActivation {
	scores := make([]fragmentScore, 0, len(model.Fragments)-1)
	for _, f := range model.Fragments {
		if f == model.FragmentLyra {
			continue
		}
		var score float64
		weights := fragmentWeights[f]
		for _, axis := range model.Axes {
			score += state[axis] * weights[axis]
		}
		scores = append(scores, fragmentScore{fragment: f, score: score})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	var activated model.FragmentActivation
	for _, fs := range scores {
		if fs.score >= activationThreshold[fs.fragment] {
			activated = append(activated, fs.fragment)
		}
	}
	activated = append(activated, model.FragmentLyra)

	if len(activated) > 3 {
		activated = append(activated[:2], model.FragmentLyra)
	}
	return activated
}
