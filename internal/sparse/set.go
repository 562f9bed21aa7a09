// Package sparse implements a dense/sparse set of non-negative integer ids.
package sparse

// Set stores ids in a dense slice with a sparse id->slot index.
// Add, Has, Remove and Clear are O(1). The zero value is ready to use.
type Set struct {
	dense  []int
	sparse []int
}

// NewSet creates a set with room for ids below capacity.
func NewSet(capacity int) *Set {
	return &Set{
		dense:  make([]int, 0, capacity),
		sparse: make([]int, capacity),
	}
}

// Has reports whether id is in the set.
func (s *Set) Has(id int) bool {
	if id < 0 || id >= len(s.sparse) {
		return false
	}
	slot := s.sparse[id]
	return slot < len(s.dense) && s.dense[slot] == id
}

// Add inserts id and returns false if it was already present.
func (s *Set) Add(id int) bool {
	if id < 0 {
		return false
	}
	if s.Has(id) {
		return false
	}
	if id >= len(s.sparse) {
		n := len(s.sparse) * 2
		if n <= id {
			n = id + 1
		}
		grown := make([]int, n)
		copy(grown, s.sparse)
		s.sparse = grown
	}
	s.sparse[id] = len(s.dense)
	s.dense = append(s.dense, id)
	return true
}

// Remove deletes id by swapping the last dense entry into its slot.
func (s *Set) Remove(id int) bool {
	if !s.Has(id) {
		return false
	}
	slot := s.sparse[id]
	last := len(s.dense) - 1
	moved := s.dense[last]
	s.dense[slot] = moved
	s.sparse[moved] = slot
	s.dense = s.dense[:last]
	return true
}

// Clear empties the set without touching the sparse index.
func (s *Set) Clear() {
	s.dense = s.dense[:0]
}

// Len returns the number of ids in the set.
func (s *Set) Len() int { return len(s.dense) }

// IDs returns the ids in dense order. The slice is owned by the set and is
// only valid until the next mutation.
func (s *Set) IDs() []int { return s.dense }

// AppendTo appends the ids to dst and returns the extended slice.
func (s *Set) AppendTo(dst []int) []int {
	return append(dst, s.dense...)
}
