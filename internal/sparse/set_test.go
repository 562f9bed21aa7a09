package sparse

import "testing"

func TestAddHasRemove(t *testing.T) {
	s := NewSet(4)

	if !s.Add(3) {
		t.Fatal("Expected first Add to return true")
	}
	if s.Add(3) {
		t.Error("Expected duplicate Add to return false")
	}
	if !s.Has(3) {
		t.Error("Expected set to contain 3")
	}
	if s.Has(2) {
		t.Error("Expected set to not contain 2")
	}

	// Grows past the initial capacity.
	s.Add(100)
	if !s.Has(100) || s.Len() != 2 {
		t.Errorf("Expected 2 ids including 100, got %v", s.IDs())
	}

	if !s.Remove(3) {
		t.Error("Expected Remove of present id to return true")
	}
	if s.Remove(3) {
		t.Error("Expected Remove of absent id to return false")
	}
	if s.Has(3) || !s.Has(100) {
		t.Errorf("Unexpected contents after remove: %v", s.IDs())
	}
}

func TestRemoveSwapsLast(t *testing.T) {
	s := NewSet(8)
	for _, id := range []int{5, 1, 7, 2} {
		s.Add(id)
	}
	s.Remove(1)

	ids := s.IDs()
	want := []int{5, 2, 7}
	if len(ids) != len(want) {
		t.Fatalf("Expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, ids)
			break
		}
	}
	for _, id := range want {
		if !s.Has(id) {
			t.Errorf("Expected set to still contain %d", id)
		}
	}
}

func TestClear(t *testing.T) {
	s := NewSet(4)
	s.Add(0)
	s.Add(1)
	s.Clear()

	if s.Len() != 0 {
		t.Errorf("Expected empty set, got %d", s.Len())
	}
	if s.Has(0) || s.Has(1) {
		t.Error("Stale ids visible after Clear")
	}
	s.Add(1)
	if !s.Has(1) || s.Has(0) {
		t.Errorf("Unexpected contents after re-add: %v", s.IDs())
	}
}

func TestZeroValue(t *testing.T) {
	var s Set
	if s.Has(0) {
		t.Error("Zero set should be empty")
	}
	s.Add(0)
	if !s.Has(0) {
		t.Error("Zero set should accept adds")
	}
}
