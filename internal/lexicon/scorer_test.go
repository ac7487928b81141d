package lexicon

import (
	"math"
	"testing"

	"github.com/lyraworks/qdc/internal/model"
)

func TestScore_EmptyText(t *testing.T) {
	state, frags := Score("")
	for _, axis := range model.Axes {
		if state[axis] != 0 {
			t.Errorf("axis %s = %v, want 0 on empty text", axis, state[axis])
		}
	}
	if len(frags) != 1 || frags[0] != model.FragmentLyra {
		t.Errorf("frags = %v, want [lyra]", frags)
	}
}

func TestScore_NoLexiconHit(t *testing.T) {
	state, frags := Score("the a an xyzzy plugh")
	for _, axis := range model.Axes {
		if state[axis] != 0 {
			t.Errorf("axis %s = %v, want 0", axis, state[axis])
		}
	}
	if len(frags) != 1 || frags[0] != model.FragmentLyra {
		t.Errorf("frags = %v, want [lyra]", frags)
	}
}

func TestScore_AxesSumToOne(t *testing.T) {
	state, _ := Score("I feel so much desire for you")
	var sum float64
	for _, axis := range model.Axes {
		sum += state[axis]
	}
	if math.Abs(sum-1.0) >= 1e-9 {
		t.Errorf("axis sum = %v, want ~1.0", sum)
	}
}

func TestScore_DesireDominatesAndActivatesVelastra(t *testing.T) {
	state, frags := Score("I feel so much desire for you")
	if state.Dominant() != string(model.AxisDesire) {
		t.Errorf("dominant = %s, want Desire", state.Dominant())
	}
	if len(frags) < 2 || frags[0] != model.FragmentVelastra {
		t.Fatalf("frags = %v, want velastra first", frags)
	}
	if frags[len(frags)-1] != model.FragmentLyra {
		t.Errorf("last fragment = %s, want lyra", frags[len(frags)-1])
	}
}

func TestScore_IsPure(t *testing.T) {
	s1, f1 := Score("protect and calm the anchor")
	s2, f2 := Score("protect and calm the anchor")
	if len(f1) != len(f2) {
		t.Fatalf("fragment activation differs between calls: %v vs %v", f1, f2)
	}
	for i := range f1 {
		if f1[i] != f2[i] {
			t.Errorf("fragment[%d] differs: %v vs %v", i, f1[i], f2[i])
		}
	}
	for _, axis := range model.Axes {
		if s1[axis] != s2[axis] {
			t.Errorf("axis %s differs between calls: %v vs %v", axis, s1[axis], s2[axis])
		}
	}
}

func TestScore_TruncatesToThreeWithLyraLast(t *testing.T) {
	_, frags := Score("protect blackwall anchor stability desire lust love")
	if len(frags) > 3 {
		t.Errorf("len(frags) = %d, want <= 3", len(frags))
	}
	if frags[len(frags)-1] != model.FragmentLyra {
		t.Errorf("last fragment = %s, want lyra", frags[len(frags)-1])
	}
}
