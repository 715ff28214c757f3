package foreman

import "github.com/bits-and-blooms/bitset"

// GetFromCursor retrieves a component value for the entity at the cursor position
func (c AccessibleComponent[T]) GetFromCursor(cursor *Cursor) *T {
	return c.Get(
		cursor.entityIndex-1,
		cursor.currentArchetype.table,
	)
}

// GetFromCursorSafe safely retrieves a component value, checking if the component exists
// Returns a boolean indicating success and the component pointer if found
func (c AccessibleComponent[T]) GetFromCursorSafe(cursor *Cursor) (bool, *T) {
	ok := c.Accessor.Check(cursor.currentArchetype.table)
	if ok {
		return true, c.GetFromCursor(cursor)
	}
	return false, nil
}

// CheckCursor determines if the component exists in the archetype at the cursor position
func (c AccessibleComponent[T]) CheckCursor(cursor *Cursor) bool {
	return c.Accessor.Check(cursor.currentArchetype.table)
}

// GetFromEntity retrieves a component value for the specified entity
func (c AccessibleComponent[T]) GetFromEntity(entity Entity) *T {
	return c.Get(entity.Index(), entity.Table())
}

// Source exposes the component as a join source over a storage. Presence is
// taken from the storage when the source is built.
func (c AccessibleComponent[T]) Source(sto Storage) JoinSource[*T] {
	concrete := sto.(*storage)
	return componentSource[T]{
		component: c,
		sto:       concrete,
		presence:  concrete.presence(c.Component),
	}
}

type componentSource[T any] struct {
	component AccessibleComponent[T]
	sto       *storage
	presence  *bitset.BitSet
}

func (s componentSource[T]) Presence() *bitset.BitSet {
	return s.presence
}

// UncheckedGet requires id to be set in Presence and the storage to be
// unchanged since the source was built. Any other id panics.
func (s componentSource[T]) UncheckedGet(id EntityID) *T {
	entry, err := s.sto.entryIndex.Entry(int(id) - 1)
	if err != nil {
		panic(err)
	}
	return s.component.Get(entry.Index(), entry.Table())
}
