package foreman

import "github.com/bits-and-blooms/bitset"

// SparseStorage holds one component per entity outside the archetype tables.
// It suits components that few entities carry or that change often enough
// that archetype moves would dominate.
type SparseStorage[T any] struct {
	presence *bitset.BitSet
	values   map[EntityID]*T
}

var _ JoinSource[*int] = &SparseStorage[int]{}

func NewSparseStorage[T any]() *SparseStorage[T] {
	return &SparseStorage[T]{
		presence: bitset.New(0),
		values:   make(map[EntityID]*T),
	}
}

// Insert sets the component for id and returns the previous value, if any.
func (s *SparseStorage[T]) Insert(id EntityID, value T) (T, bool) {
	prev, ok := s.values[id]
	s.values[id] = &value
	s.presence.Set(uint(id))
	if ok {
		return *prev, true
	}
	var zero T
	return zero, false
}

// Remove deletes the component for id and returns it.
func (s *SparseStorage[T]) Remove(id EntityID) (T, bool) {
	prev, ok := s.values[id]
	if !ok {
		var zero T
		return zero, false
	}
	delete(s.values, id)
	s.presence.Clear(uint(id))
	return *prev, true
}

// Get returns a pointer to the stored component, or nil.
func (s *SparseStorage[T]) Get(id EntityID) *T {
	return s.values[id]
}

func (s *SparseStorage[T]) Contains(id EntityID) bool {
	return s.presence.Test(uint(id))
}

func (s *SparseStorage[T]) Len() int {
	return len(s.values)
}

// Presence returns the live presence set. Join copies it when opened.
func (s *SparseStorage[T]) Presence() *bitset.BitSet {
	return s.presence
}

// UncheckedGet requires id to be set in Presence. Any other id yields nil.
func (s *SparseStorage[T]) UncheckedGet(id EntityID) *T {
	return s.values[id]
}
