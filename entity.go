package foreman

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/TheBitDrifter/mask"
	"github.com/TheBitDrifter/table"
	iter_util "github.com/TheBitDrifter/util/iter"
)

var _ Entity = &entity{}

// entity is a handle onto a storage entry. Entries are snapshots that go stale
// when rows swap or move, so every access resolves the id again.
type entity struct {
	sto *storage
	id  table.EntryID
}

type relationships struct {
	parent    Entity
	onDestroy EntityDestroyCallback
}

func (e *entity) ID() table.EntryID {
	return e.id
}

func (e *entity) Recycled() int {
	if entry, ok := e.sto.resolve(e.id); ok {
		return entry.Recycled()
	}
	return 0
}

// Index returns the row of the entity in its table, or -1 once destroyed.
func (e *entity) Index() int {
	if entry, ok := e.sto.resolve(e.id); ok {
		return entry.Index()
	}
	return -1
}

// Table returns the table holding the entity, or nil once destroyed.
func (e *entity) Table() table.Table {
	if entry, ok := e.sto.resolve(e.id); ok {
		return entry.Table()
	}
	return nil
}

// Valid reports whether the entity is still alive.
func (e *entity) Valid() bool {
	_, ok := e.sto.resolve(e.id)
	return ok
}

// Storage returns the storage currently holding the entity.
func (e *entity) Storage() Storage {
	return e.sto
}

func (e *entity) String() string {
	return fmt.Sprintf("entity(%d)", e.id)
}

// Components lists the component types of the entity's archetype.
func (e *entity) Components() []Component {
	tbl := e.Table()
	if tbl == nil {
		return nil
	}
	elementTypes := iter_util.Collect(tbl.ElementTypes())
	components := make([]Component, len(elementTypes))
	for i, et := range elementTypes {
		components[i] = et
	}
	return components
}

// ComponentsAsString lists the component type names, for debugging.
func (e *entity) ComponentsAsString() string {
	components := e.Components()
	names := make([]string, len(components))
	for i, c := range components {
		names[i] = c.Type().String()
	}
	return "[" + strings.Join(names, ", ") + "]"
}

func (e *entity) relations() *relationships {
	rel, ok := e.sto.relations[e.id]
	if !ok {
		rel = &relationships{}
		e.sto.relations[e.id] = rel
	}
	return rel
}

// SetParent links e to parent and installs callback as the parent's destroy
// callback. An entity has at most one parent.
func (e *entity) SetParent(parent Entity, callback EntityDestroyCallback) error {
	rel := e.relations()
	if rel.parent != nil {
		return EntityRelationError{e, rel.parent}
	}
	rel.parent = parent
	return parent.SetDestroyCallback(callback)
}

func (e *entity) SetDestroyCallback(callback EntityDestroyCallback) error {
	if _, ok := e.sto.resolve(e.id); !ok {
		return EntityNotFoundError{ID: int(e.id)}
	}
	e.relations().onDestroy = callback
	return nil
}

func (e *entity) AddComponent(c Component) error {
	if e.sto.Locked() {
		return LockedStorageError{}
	}
	entry, ok := e.sto.resolve(e.id)
	if !ok {
		return EntityNotFoundError{ID: int(e.id)}
	}
	originTable := entry.Table()
	if originTable.Contains(c) {
		return ComponentExistsError{Component: c}
	}

	e.sto.schema.Register(c)
	destMask := originTable.(mask.Maskable).Mask()
	destMask.Mark(e.sto.schema.RowIndexFor(c))

	components := append(e.Components(), c)
	return e.move(entry, destMask, components)
}

// AddComponentWithValue adds c and stores value in the new row. value must
// have the component's type.
func (e *entity) AddComponentWithValue(c Component, value any) error {
	if err := e.AddComponent(c); err != nil {
		return err
	}
	entry, ok := e.sto.resolve(e.id)
	if !ok {
		return EntityNotFoundError{ID: int(e.id)}
	}
	rv := reflect.ValueOf(value)
	if rv.Type() != c.Type() {
		return fmt.Errorf("component value type %s does not match %s", rv.Type(), c.Type())
	}
	return entry.Table().Set(c, rv, entry.Index())
}

func (e *entity) RemoveComponent(c Component) error {
	if e.sto.Locked() {
		return LockedStorageError{}
	}
	entry, ok := e.sto.resolve(e.id)
	if !ok {
		return EntityNotFoundError{ID: int(e.id)}
	}
	originTable := entry.Table()
	if !originTable.Contains(c) {
		return ComponentNotFoundError{Component: c}
	}

	destMask := originTable.(mask.Maskable).Mask()
	destMask.Unmark(e.sto.schema.RowIndexFor(c))

	components := make([]Component, 0)
	for _, comp := range e.Components() {
		if comp.ID() != c.ID() {
			components = append(components, comp)
		}
	}
	return e.move(entry, destMask, components)
}

// move transfers the entity into the archetype for destMask. The transfer
// reissues the entry, so the handle adopts the id of the new row.
func (e *entity) move(entry table.Entry, destMask mask.Mask, components []Component) error {
	dest, err := e.sto.archetypeFor(destMask, components)
	if err != nil {
		return fmt.Errorf("failed to get/create archetype: %w", err)
	}
	destRow := dest.table.Length()
	if err := entry.Table().TransferEntries(dest.table, entry.Index()); err != nil {
		return fmt.Errorf("failed to transfer entity: %w", err)
	}
	moved, err := dest.table.Entry(destRow)
	if err != nil {
		return fmt.Errorf("failed to resolve transferred entity: %w", err)
	}
	if moved.ID() != e.id {
		if rel, ok := e.sto.relations[e.id]; ok {
			delete(e.sto.relations, e.id)
			e.sto.relations[moved.ID()] = rel
		}
		e.id = moved.ID()
	}
	return nil
}

func (e *entity) EnqueueAddComponent(c Component) error {
	if !e.sto.Locked() {
		return e.AddComponent(c)
	}
	e.sto.opQueue.EnqueueComponentOp(opAddComponent, e.sto, e, c)
	return nil
}

func (e *entity) EnqueueRemoveComponent(c Component) error {
	if !e.sto.Locked() {
		return e.RemoveComponent(c)
	}
	e.sto.opQueue.EnqueueComponentOp(opRemoveComponent, e.sto, e, c)
	return nil
}
