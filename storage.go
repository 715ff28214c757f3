package foreman

import (
	"fmt"
	"log/slog"

	"github.com/TheBitDrifter/mask"
	"github.com/TheBitDrifter/table"
	"github.com/bits-and-blooms/bitset"
)

var _ Storage = &storage{}

// cursorLockBit is the lock held by Lock/Unlock and by iterating cursors.
const cursorLockBit uint32 = 0

type storage struct {
	locks      mask.Mask
	schema     table.Schema
	entryIndex table.EntryIndex
	archetypes *archetypes
	opQueue    opQueue
	relations  map[table.EntryID]*relationships
	log        *slog.Logger
}

func newStorage(schema table.Schema) Storage {
	storage := &storage{
		archetypes: newArchetypes(),
		schema:     schema,
		entryIndex: table.Factory.NewEntryIndex(),
		opQueue:    newOpQueue(),
		relations:  make(map[table.EntryID]*relationships),
		log:        Config.loggerFor("storage"),
	}
	return storage
}

// Entity resolves a live entity by id. The handle follows the entity across
// archetype moves.
func (sto *storage) Entity(id int) (Entity, error) {
	if _, ok := sto.resolve(table.EntryID(id)); !ok {
		return nil, EntityNotFoundError{ID: id}
	}
	return &entity{sto: sto, id: table.EntryID(id)}, nil
}

// resolve returns the current entry for id if the entity is alive.
func (sto *storage) resolve(id table.EntryID) (table.Entry, bool) {
	if id == 0 {
		return nil, false
	}
	entry, err := sto.entryIndex.Entry(int(id) - 1)
	if err != nil || entry.Table() == nil {
		return nil, false
	}
	tbl := entry.Table()
	if entry.Index() >= tbl.Length() {
		return nil, false
	}
	current, err := tbl.Entry(entry.Index())
	if err != nil || current.ID() != id {
		return nil, false
	}
	return entry, true
}

func (sto *storage) NewEntities(n int, components ...Component) ([]Entity, error) {
	if sto.Locked() {
		return nil, LockedStorageError{}
	}
	var entityMask mask.Mask
	for _, component := range components {
		sto.schema.Register(component)
		entityMask.Mark(sto.schema.RowIndexFor(component))
	}
	entityArchetype, err := sto.archetypeFor(entityMask, components)
	if err != nil {
		return nil, err
	}
	entries, err := entityArchetype.table.NewEntries(n)
	if err != nil {
		return nil, err
	}
	entities := make([]Entity, n)
	for i, entry := range entries {
		entities[i] = &entity{sto: sto, id: entry.ID()}
	}
	return entities, nil
}

// NewOrExistingArchetype returns the archetype for a component set. Order of
// components does not matter.
func (sto *storage) NewOrExistingArchetype(components ...Component) (Archetype, error) {
	var archetypeMask mask.Mask
	for _, component := range components {
		sto.schema.Register(component)
		archetypeMask.Mark(sto.schema.RowIndexFor(component))
	}
	return sto.archetypeFor(archetypeMask, components)
}

// archetypeFor returns the archetype for a component mask, creating its table
// on first use.
func (sto *storage) archetypeFor(m mask.Mask, components []Component) (archetype, error) {
	if found, ok := sto.archetypes.byMask(m); ok {
		return found, nil
	}
	created, err := newArchetype(sto.schema, sto.entryIndex, sto.archetypes.nextID, components...)
	if err != nil {
		return archetype{}, fmt.Errorf("failed to create archetype: %w", err)
	}
	sto.archetypes.add(m, created)
	sto.log.Debug("archetype created", "archetype", created.ID(), "components", len(components))
	return created, nil
}

// presence collects the ids of every live entity whose archetype holds c.
func (sto *storage) presence(c Component) *bitset.BitSet {
	set := bitset.New(0)
	for _, arch := range sto.archetypes.asSlice {
		if !arch.table.Contains(c) {
			continue
		}
		for i := 0; i < arch.table.Length(); i++ {
			entry, err := arch.table.Entry(i)
			if err != nil {
				continue
			}
			set.Set(uint(entry.ID()))
		}
	}
	return set
}

func (sto *storage) RowIndexFor(c Component) uint32 {
	return sto.schema.RowIndexFor(c)
}

// Locked reports whether any lock bit is held.
func (sto *storage) Locked() bool {
	return !sto.locks.IsEmpty()
}

func (sto *storage) Lock() {
	sto.AddLock(cursorLockBit)
}

func (sto *storage) Unlock() {
	sto.RemoveLock(cursorLockBit)
}

// AddLock holds one lock bit. Independent holders use distinct bits so one
// releasing does not unlock the other.
func (sto *storage) AddLock(bit uint32) {
	sto.locks.Mark(bit)
}

// RemoveLock releases a lock bit. Releasing the last one applies every
// operation queued while locked.
func (sto *storage) RemoveLock(bit uint32) {
	sto.locks.Unmark(bit)
	if sto.Locked() {
		return
	}
	if err := sto.processOperationQueue(); err != nil {
		panic(err)
	}
}

func (sto *storage) EnqueueNewEntities(amount int, components ...Component) error {
	if !sto.Locked() {
		_, err := sto.NewEntities(amount, components...)
		if err != nil {
			return fmt.Errorf("failed to create entities directly: %w", err)
		}
		return nil
	}

	sto.opQueue.enqueueOp(operation{
		typ:    opCreate,
		amount: amount,
		comps:  components,
	})
	return nil
}

// DestroyEntities removes entities from their tables. Destroy callbacks run
// after removal, so a callback may destroy related entities.
func (sto *storage) DestroyEntities(entities ...Entity) error {
	if sto.Locked() {
		return LockedStorageError{}
	}
	tableGroups := make(map[table.Table][]int)
	var destroyed []Entity
	for _, en := range entities {
		if en == nil {
			continue
		}
		entry, ok := sto.resolve(en.ID())
		if !ok {
			continue
		}
		tableGroups[entry.Table()] = append(tableGroups[entry.Table()], entry.Index())
		destroyed = append(destroyed, en)
	}
	for tbl, indices := range tableGroups {
		if _, err := tbl.DeleteEntries(indices...); err != nil {
			return fmt.Errorf("failed to delete entries: %w", err)
		}
	}

	var callbacks []func()
	for _, en := range destroyed {
		rel, ok := sto.relations[en.ID()]
		if !ok {
			continue
		}
		delete(sto.relations, en.ID())
		if rel.onDestroy != nil {
			callback, target := rel.onDestroy, en
			callbacks = append(callbacks, func() { callback(target) })
		}
	}
	for _, callback := range callbacks {
		callback()
	}
	return nil
}

func (sto *storage) EnqueueDestroyEntities(entities ...Entity) error {
	if !sto.Locked() {
		return sto.DestroyEntities(entities...)
	}
	sto.opQueue.EnqueueDestroy(sto, entities)
	return nil
}

// TransferEntities moves entities into another storage, copying their
// component values. The handles follow the entities into target; their ids are
// reissued by the target storage.
func (sto *storage) TransferEntities(target Storage, entities ...Entity) error {
	dest, ok := target.(*storage)
	if !ok {
		return fmt.Errorf("unsupported transfer target %T", target)
	}
	if sto.Locked() || dest.Locked() {
		return LockedStorageError{}
	}
	for _, en := range entities {
		handle, ok := en.(*entity)
		if !ok || handle.sto != sto {
			continue
		}
		if err := sto.transfer(dest, handle); err != nil {
			return err
		}
	}
	return nil
}

func (sto *storage) transfer(dest *storage, handle *entity) error {
	entry, ok := sto.resolve(handle.id)
	if !ok {
		return EntityNotFoundError{ID: int(handle.id)}
	}
	components := handle.Components()
	created, err := dest.NewEntities(1, components...)
	if err != nil {
		return fmt.Errorf("failed to create transferred entity: %w", err)
	}
	moved := created[0].(*entity)
	movedEntry, _ := dest.resolve(moved.id)

	for _, component := range components {
		value, err := entry.Table().Get(component, entry.Index())
		if err != nil {
			return fmt.Errorf("failed to read component for transfer: %w", err)
		}
		if err := movedEntry.Table().Set(component, value, movedEntry.Index()); err != nil {
			return fmt.Errorf("failed to write component for transfer: %w", err)
		}
	}
	if _, err := entry.Table().DeleteEntries(entry.Index()); err != nil {
		return fmt.Errorf("failed to delete transferred entity: %w", err)
	}
	if rel, ok := sto.relations[handle.id]; ok {
		delete(sto.relations, handle.id)
		dest.relations[moved.id] = rel
	}
	handle.sto = dest
	handle.id = moved.id
	return nil
}
