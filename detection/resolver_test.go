package detection

import (
	"reflect"
	"testing"
)

func TestResolve_Empty(t *testing.T) {
	if got := Resolve(nil); len(got) != 0 {
		t.Errorf("Expected empty result for nil input, got %d entities", len(got))
	}
	if got := Resolve([]Entity{}); len(got) != 0 {
		t.Errorf("Expected empty result for empty input, got %d entities", len(got))
	}
}

func TestResolve_SingleEntity(t *testing.T) {
	in := []Entity{{Start: 3, End: 8, Text: "Smith", Label: "person", Score: 0.8}}
	got := Resolve(in)
	if !reflect.DeepEqual(got, in) {
		t.Errorf("Expected single entity to pass through unchanged, got %v", got)
	}
}

func TestResolve_IdenticalSpanKeepsHigherScore(t *testing.T) {
	got := Resolve([]Entity{
		{Start: 0, End: 5, Label: "person", Score: 0.9},
		{Start: 0, End: 5, Label: "organization", Score: 0.95},
	})
	if len(got) != 1 {
		t.Fatalf("Expected 1 entity, got %d", len(got))
	}
	if got[0].Score != 0.95 || got[0].Label != "organization" {
		t.Errorf("Expected the higher-scoring entity to survive, got %+v", got[0])
	}
}

func TestResolve_ContainmentKeepsLonger(t *testing.T) {
	got := Resolve([]Entity{
		{Start: 0, End: 10, Label: "organization", Score: 0.5},
		{Start: 2, End: 5, Label: "person", Score: 0.99},
	})
	if len(got) != 1 {
		t.Fatalf("Expected 1 entity, got %d", len(got))
	}
	if got[0].Start != 0 || got[0].End != 10 {
		t.Errorf("Expected the longer entity to survive regardless of score, got %+v", got[0])
	}
}

func TestResolve_NonOverlappingPassThrough(t *testing.T) {
	got := Resolve([]Entity{
		{Start: 10, End: 15, Label: "location", Score: 0.7},
		{Start: 0, End: 5, Label: "person", Score: 0.9},
	})
	if len(got) != 2 {
		t.Fatalf("Expected 2 entities, got %d", len(got))
	}
	if got[0].Start != 0 || got[1].Start != 10 {
		t.Errorf("Expected output ordered by start, got %v", got)
	}
}

func TestResolve_TouchingSpansDoNotOverlap(t *testing.T) {
	got := Resolve([]Entity{
		{Start: 0, End: 5, Label: "person", Score: 0.9},
		{Start: 5, End: 9, Label: "location", Score: 0.4},
	})
	if len(got) != 2 {
		t.Fatalf("Expected both touching spans to survive, got %d", len(got))
	}
}

func TestResolve_LongerChallengerReplaces(t *testing.T) {
	got := Resolve([]Entity{
		{Start: 2, End: 5, Label: "person", Score: 0.99},
		{Start: 3, End: 12, Label: "organization", Score: 0.4},
	})
	if len(got) != 1 {
		t.Fatalf("Expected 1 entity, got %d", len(got))
	}
	if got[0].End != 12 {
		t.Errorf("Expected the longer challenger to replace, got %+v", got[0])
	}
}

func TestResolve_EqualLengthOverlapHigherScoreReplaces(t *testing.T) {
	got := Resolve([]Entity{
		{Start: 0, End: 6, Label: "person", Score: 0.6},
		{Start: 3, End: 9, Label: "organization", Score: 0.8},
	})
	if len(got) != 1 {
		t.Fatalf("Expected 1 entity, got %d", len(got))
	}
	if got[0].Start != 3 || got[0].Score != 0.8 {
		t.Errorf("Expected the higher-scoring equal-length challenger to replace, got %+v", got[0])
	}
}

func TestResolve_EqualLengthOverlapLowerScoreDiscarded(t *testing.T) {
	got := Resolve([]Entity{
		{Start: 0, End: 6, Label: "person", Score: 0.8},
		{Start: 3, End: 9, Label: "organization", Score: 0.6},
	})
	if len(got) != 1 {
		t.Fatalf("Expected 1 entity, got %d", len(got))
	}
	if got[0].Start != 0 || got[0].Score != 0.8 {
		t.Errorf("Expected the incumbent to survive, got %+v", got[0])
	}
}

func TestResolve_MixedCandidateSet(t *testing.T) {
	got := Resolve([]Entity{
		{Start: 30, End: 43, Text: "San Francisco", Label: "location", Score: 0.92},
		{Start: 0, End: 10, Text: "Sam Altman", Label: "person", Score: 0.95},
		{Start: 0, End: 3, Text: "Sam", Label: "person", Score: 0.97},
		{Start: 20, End: 26, Text: "OpenAI", Label: "organization", Score: 0.98},
		{Start: 20, End: 26, Text: "OpenAI", Label: "company", Score: 0.71},
	})
	want := []string{"Sam Altman", "OpenAI", "San Francisco"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d entities, got %d: %v", len(want), len(got), got)
	}
	for i, text := range want {
		if got[i].Text != text {
			t.Errorf("Expected entity %d to be %q, got %q", i, text, got[i].Text)
		}
	}
	if got[1].Label != "organization" {
		t.Errorf("Expected higher-scoring label for identical spans, got %q", got[1].Label)
	}
	assertResolved(t, got)
}

func TestResolve_IdempotentOnOwnOutput(t *testing.T) {
	first := Resolve([]Entity{
		{Start: 5, End: 12, Label: "person", Score: 0.8},
		{Start: 0, End: 7, Label: "person", Score: 0.6},
		{Start: 14, End: 20, Label: "date", Score: 0.9},
		{Start: 15, End: 18, Label: "date", Score: 0.95},
	})
	second := Resolve(first)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected resolution to be idempotent:\nfirst:  %v\nsecond: %v", first, second)
	}
	assertResolved(t, first)
}

func TestResolve_DoesNotMutateInput(t *testing.T) {
	in := []Entity{
		{Start: 10, End: 15, Label: "location", Score: 0.7},
		{Start: 0, End: 5, Label: "person", Score: 0.9},
	}
	Resolve(in)
	if in[0].Start != 10 || in[1].Start != 0 {
		t.Errorf("Expected input slice to be left untouched, got %v", in)
	}
}

// assertResolved checks the resolved-set invariants: strictly ascending
// starts and no overlapping pair.
func assertResolved(t *testing.T, entities []Entity) {
	t.Helper()
	for i := 1; i < len(entities); i++ {
		if entities[i-1].Start >= entities[i].Start {
			t.Errorf("Expected strictly ascending starts, got %d then %d", entities[i-1].Start, entities[i].Start)
		}
	}
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			if entities[i].Overlaps(entities[j]) {
				t.Errorf("Expected no overlap, got %+v and %+v", entities[i], entities[j])
			}
		}
	}
}
