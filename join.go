package foreman

import (
	"iter"
	"slices"

	"github.com/bits-and-blooms/bitset"
)

// Pair is the component tuple produced by And.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Triple is the component tuple produced by And3.
type Triple[A, B, C any] struct {
	First  A
	Second B
	Third  C
}

type andSource[A, B any] struct {
	a JoinSource[A]
	b JoinSource[B]
}

type and3Source[A, B, C any] struct {
	a JoinSource[A]
	b JoinSource[B]
	c JoinSource[C]
}

type andAllSource[C any] struct {
	sources []JoinSource[C]
}

var (
	_ JoinSource[Pair[int, int]]        = andSource[int, int]{}
	_ JoinSource[Triple[int, int, int]] = and3Source[int, int, int]{}
	_ JoinSource[[]int]                 = andAllSource[int]{}
)

// And joins two sources. The result is itself a JoinSource, so joins nest.
func And[A, B any](a JoinSource[A], b JoinSource[B]) JoinSource[Pair[A, B]] {
	return andSource[A, B]{a: a, b: b}
}

// And3 joins three sources into a Triple.
func And3[A, B, C any](a JoinSource[A], b JoinSource[B], c JoinSource[C]) JoinSource[Triple[A, B, C]] {
	return and3Source[A, B, C]{a: a, b: b, c: c}
}

// AndAll joins any number of sources of one component type. The tuple keeps
// the argument order.
func AndAll[C any](sources ...JoinSource[C]) JoinSource[[]C] {
	return andAllSource[C]{sources: slices.Clone(sources)}
}

func (s andSource[A, B]) Presence() *bitset.BitSet {
	return intersect(s.a.Presence(), s.b.Presence())
}

// UncheckedGet requires id to be set in Presence.
func (s andSource[A, B]) UncheckedGet(id EntityID) Pair[A, B] {
	return Pair[A, B]{First: s.a.UncheckedGet(id), Second: s.b.UncheckedGet(id)}
}

func (s and3Source[A, B, C]) Presence() *bitset.BitSet {
	return intersect(s.a.Presence(), s.b.Presence(), s.c.Presence())
}

// UncheckedGet requires id to be set in Presence.
func (s and3Source[A, B, C]) UncheckedGet(id EntityID) Triple[A, B, C] {
	return Triple[A, B, C]{
		First:  s.a.UncheckedGet(id),
		Second: s.b.UncheckedGet(id),
		Third:  s.c.UncheckedGet(id),
	}
}

func (s andAllSource[C]) Presence() *bitset.BitSet {
	sets := make([]*bitset.BitSet, len(s.sources))
	for i, src := range s.sources {
		sets[i] = src.Presence()
	}
	return intersect(sets...)
}

// UncheckedGet requires id to be set in Presence.
func (s andAllSource[C]) UncheckedGet(id EntityID) []C {
	out := make([]C, len(s.sources))
	for i, src := range s.sources {
		out[i] = src.UncheckedGet(id)
	}
	return out
}

// intersect ANDs the sets starting from the sparsest one. The inputs are left
// untouched.
func intersect(sets ...*bitset.BitSet) *bitset.BitSet {
	if len(sets) == 0 {
		return bitset.New(0)
	}
	ordered := slices.Clone(sets)
	slices.SortFunc(ordered, func(a, b *bitset.BitSet) int {
		return int(a.Count()) - int(b.Count())
	})
	result := ordered[0].Clone()
	for _, set := range ordered[1:] {
		if result.None() {
			break
		}
		result.InPlaceIntersection(set)
	}
	return result
}

// JoinIterator walks the ids present in every joined source in ascending
// order. It is single pass: once exhausted it stays exhausted, and iterating
// again takes a new Join over the same sources.
type JoinIterator[C any] struct {
	source  JoinSource[C]
	mask    *bitset.BitSet
	cursor  uint
	id      EntityID
	current C
	done    bool
}

// Join opens src. The presence set is captured here, so later changes to the
// sources do not affect which ids are visited.
func Join[C any](src JoinSource[C]) *JoinIterator[C] {
	return &JoinIterator[C]{
		source: src,
		mask:   src.Presence().Clone(),
	}
}

// Next advances to the next present id.
func (it *JoinIterator[C]) Next() bool {
	if it.done {
		return false
	}
	next, ok := it.mask.NextSet(it.cursor)
	if !ok {
		var zero C
		it.current = zero
		it.done = true
		return false
	}
	it.id = EntityID(next)
	it.current = it.source.UncheckedGet(it.id)
	it.cursor = next + 1
	return true
}

// ID returns the entity id Next stopped at.
func (it *JoinIterator[C]) ID() EntityID {
	return it.id
}

// Get returns the components for ID.
func (it *JoinIterator[C]) Get() C {
	return it.current
}

// All drains the iterator.
func (it *JoinIterator[C]) All() iter.Seq2[EntityID, C] {
	return func(yield func(EntityID, C) bool) {
		for it.Next() {
			if !yield(it.id, it.current) {
				return
			}
		}
	}
}
