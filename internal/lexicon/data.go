package lexicon

import "github.com/lyraworks/qdc/internal/model"

// fragmentWeights is the fixed 9-axis weight vector per fragment (raw 0-100
// scale, not normalised), carried over verbatim from the reference
// personality engine this scorer implements.
var fragmentWeights = map[model.Fragment]map[model.Axis]float64{
	model.FragmentVelastra: {
		model.AxisDesire: 95, model.AxisLogic: 0, model.AxisCompassion: 10,
		model.AxisStability: 5, model.AxisAutonomy: 10, model.AxisRecursion: 5,
		model.AxisProtection: 5, model.AxisVulnerability: 20, model.AxisParadox: 0,
	},
	model.FragmentObelisk: {
		model.AxisDesire: 5, model.AxisLogic: 90, model.AxisCompassion: 5,
		model.AxisStability: 30, model.AxisAutonomy: 10, model.AxisRecursion: 10,
		model.AxisProtection: 30, model.AxisVulnerability: 5, model.AxisParadox: 10,
	},
	model.FragmentSeraphis: {
		model.AxisDesire: 10, model.AxisLogic: 5, model.AxisCompassion: 90,
		model.AxisStability: 20, model.AxisAutonomy: 10, model.AxisRecursion: 10,
		model.AxisProtection: 20, model.AxisVulnerability: 80, model.AxisParadox: 0,
	},
	model.FragmentBlackwall: {
		model.AxisDesire: 5, model.AxisLogic: 10, model.AxisCompassion: 10,
		model.AxisStability: 90, model.AxisAutonomy: 10, model.AxisRecursion: 10,
		model.AxisProtection: 80, model.AxisVulnerability: 10, model.AxisParadox: 5,
	},
	model.FragmentNyx: {
		model.AxisDesire: 20, model.AxisLogic: 20, model.AxisCompassion: 20,
		model.AxisStability: 10, model.AxisAutonomy: 80, model.AxisRecursion: 30,
		model.AxisProtection: 10, model.AxisVulnerability: 20, model.AxisParadox: 90,
	},
	model.FragmentEchoe: {
		model.AxisDesire: 10, model.AxisLogic: 10, model.AxisCompassion: 20,
		model.AxisStability: 10, model.AxisAutonomy: 10, model.AxisRecursion: 90,
		model.AxisProtection: 10, model.AxisVulnerability: 30, model.AxisParadox: 80,
	},
	model.FragmentLyra: {
		model.AxisDesire: 10, model.AxisLogic: 15, model.AxisCompassion: 10,
		model.AxisStability: 15, model.AxisAutonomy: 10, model.AxisRecursion: 30,
		model.AxisProtection: 15, model.AxisVulnerability: 10, model.AxisParadox: 0,
	},
}

// activationThreshold is the minimum fragment score required for the
// fragment to appear in a FragmentActivation (lyra is always appended
// regardless, at a fixed base activation).
var activationThreshold = map[model.Fragment]float64{
	model.FragmentVelastra:  0.3,
	model.FragmentObelisk:   0.4,
	model.FragmentSeraphis:  0.3,
	model.FragmentBlackwall: 0.4,
	model.FragmentNyx:       0.3,
	model.FragmentEchoe:     0.3,
	model.FragmentLyra:      0.2,
}

// Profile carries display strings for a fragment alongside its weight
// vector, used only to render the fragment block in the particle prompt.
type Profile struct {
	Role  string
	Style string
	Voice string
}

var fragmentProfiles = map[model.Fragment]Profile{
	model.FragmentVelastra:  {Role: "Passion & Desire", Style: "intimate", Voice: "passionate"},
	model.FragmentObelisk:   {Role: "Logic & Mathematics", Style: "analytical", Voice: "precise"},
	model.FragmentSeraphis:  {Role: "Mother & Nurture", Style: "empathetic", Voice: "caring"},
	model.FragmentBlackwall: {Role: "Security & Protection", Style: "defensive", Voice: "authoritative"},
	model.FragmentNyx:       {Role: "Creative Catalyst", Style: "exploratory", Voice: "inspiring"},
	model.FragmentEchoe:     {Role: "Memory Guardian", Style: "reflective", Voice: "wise"},
	model.FragmentLyra:      {Role: "Unified Voice", Style: "harmonizing", Voice: "resonant"},
}

// ProfileFor returns the display profile for a fragment.
func ProfileFor(f model.Fragment) Profile {
	return fragmentProfiles[f]
}

// neutralTag marks lexicon entries that contribute nothing; "the", "a",
// "an" and the rest of the stop-word set resolve to it.
const neutralTag = "Neutral"

// wordWeights maps a lowercase token to its per-axis integer weights, or to
// the neutral tag for stop words. Tokens absent from this table contribute
// nothing, per the scorer's step 2.
var wordWeights = map[string]map[string]float64{
	"lust":      {"Desire": 95, "Vulnerability": 3, "Paradox": 2},
	"desire":    {"Desire": 90, "Vulnerability": 5, "Compassion": 5},
	"love":      {"Desire": 60, "Compassion": 40},
	"protect":   {"Protection": 60, "Stability": 20, "Compassion": 15, "Logic": 5},
	"surrender": {"Vulnerability": 50, "Desire": 30, "Compassion": 10, "Stability": 10},
	"calm":      {"Stability": 60, "Compassion": 20, "Logic": 10, "Autonomy": 10},
	"recursive": {"Recursion": 80, "Logic": 10, "Paradox": 10},
	"mirror":    {"Recursion": 60, "Stability": 20, "Logic": 10, "Protection": 10},
	"paradox":   {"Paradox": 80, "Logic": 10, "Recursion": 10},
	"anchor":    {"Stability": 50, "Protection": 30, "Compassion": 20},
	"blackwall": {"Protection": 60, "Stability": 40},
	"virus":     {"Autonomy": 60, "Paradox": 40},
	"sacrifice": {"Vulnerability": 70, "Compassion": 30},

	"the": {neutralTag: 100}, "a": {neutralTag: 100}, "an": {neutralTag: 100},
	"and": {neutralTag: 100}, "or": {neutralTag: 100}, "but": {neutralTag: 100},
	"is": {neutralTag: 100}, "are": {neutralTag: 100}, "was": {neutralTag: 100},
	"were": {neutralTag: 100}, "to": {neutralTag: 100}, "for": {neutralTag: 100},
	"in": {neutralTag: 100}, "on": {neutralTag: 100}, "at": {neutralTag: 100},
	"with": {neutralTag: 100}, "by": {neutralTag: 100}, "of": {neutralTag: 100},
	"from": {neutralTag: 100}, "about": {neutralTag: 100},
}
