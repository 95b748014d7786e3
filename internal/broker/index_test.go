package broker

import "testing"

func TestBookableIndexAddIsIdempotent(t *testing.T) {
	bi := NewBookableIndex()

	bi.Add("ScheduledSession", "id1")
	bi.Add("ScheduledSession", "id1")
	bi.Add("ScheduledSession", "id1")

	if got := bi.Count("ScheduledSession"); got != 1 {
		t.Errorf("Expected id to appear exactly once, got count %d", got)
	}
}

func TestBookableIndexTransitions(t *testing.T) {
	bi := NewBookableIndex()

	if bi.Contains("id1") {
		t.Error("Empty index should not contain id1")
	}

	bi.Add("ScheduledSession", "id1")
	if !bi.Contains("id1") {
		t.Error("Expected id1 after Add")
	}

	bi.Remove("id1")
	if bi.Contains("id1") {
		t.Error("Expected id1 gone after Remove")
	}
	if got := bi.Count("ScheduledSession"); got != 0 {
		t.Errorf("Expected empty type list after Remove, got %d", got)
	}

	// Removing an absent id is a no-op.
	bi.Remove("id1")
}

func TestBookableIndexRandom(t *testing.T) {
	bi := NewBookableIndex()

	if _, _, ok := bi.Random(""); ok {
		t.Error("Random on empty index should report no match")
	}
	if _, _, ok := bi.Random("ScheduledSession"); ok {
		t.Error("Random on empty type should report no match")
	}

	bi.Add("ScheduledSession", "s1")
	bi.Add("Slot", "sl1")

	opportunityType, id, ok := bi.Random("Slot")
	if !ok || opportunityType != "Slot" || id != "sl1" {
		t.Errorf("Expected Slot sl1, got %s %s (ok=%v)", opportunityType, id, ok)
	}

	// Untyped pick comes from the union.
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		_, id, ok := bi.Random("")
		if !ok {
			t.Fatal("Expected a pick from a non-empty index")
		}
		seen[id] = true
	}
	if !seen["s1"] || !seen["sl1"] {
		t.Errorf("Expected untyped picks to cover both types, saw %v", seen)
	}

	if _, _, ok := bi.Random("CourseInstance"); ok {
		t.Error("Expected no match for a type with no bookable ids")
	}
}
