package foreman

import (
	"iter"

	"github.com/TheBitDrifter/table"
	"github.com/bits-and-blooms/bitset"
)

type Storage interface {
	Entity(id int) (Entity, error)
	NewEntities(int, ...Component) ([]Entity, error)
	NewOrExistingArchetype(...Component) (Archetype, error)
	EnqueueNewEntities(int, ...Component) error
	DestroyEntities(...Entity) error
	EnqueueDestroyEntities(...Entity) error
	TransferEntities(target Storage, entities ...Entity) error
	RowIndexFor(Component) uint32
	Locked() bool
	Lock()
	Unlock()
	AddLock(bit uint32)
	RemoveLock(bit uint32)
}

type EntityDestroyCallback func(Entity)

type Entity interface {
	table.Entry
	Valid() bool
	Storage() Storage
	SetParent(parent Entity, callback EntityDestroyCallback) error
	SetDestroyCallback(EntityDestroyCallback) error
	AddComponent(Component) error
	AddComponentWithValue(Component, any) error
	RemoveComponent(Component) error
	EnqueueAddComponent(Component) error
	EnqueueRemoveComponent(Component) error
	Components() []Component
	ComponentsAsString() string
}

// Component represents a data attribute/state that can be attached to entities
// Components can be used to create queries for entities
type Component interface {
	table.ElementType
}

type Archetype interface {
	ID() uint32
	Table() table.Table
}

type Query interface {
	QueryNode
	And(items ...interface{}) QueryNode
	Or(items ...interface{}) QueryNode
	Not(items ...interface{}) QueryNode
}

type QueryNode interface {
	Evaluate(archetype Archetype, storage Storage) bool
}

type iCursor interface {
	Entities() iter.Seq2[int, table.Table]
	Next() bool
}

type Cache[T any] interface {
	GetIndex(string) (int, bool)
	GetItem(int) *T
	GetItem32(uint32) *T
	Register(string, T) (int, error)
}

// JoinSource is anything that can take part in a Join: a presence bitset over
// entity ids plus an accessor for the ids in it.
//
// UncheckedGet may only be called with an id that is set in Presence. Calling it
// with any other id is undefined for the source; implementations are free to
// panic or return garbage. Join is the only path that calls it, and it only
// ever passes ids taken from the intersected presence set.
type JoinSource[C any] interface {
	Presence() *bitset.BitSet
	UncheckedGet(id EntityID) C
}

// Runnable is a system instance ready to be run against a World. Run executes
// while the dispatcher holds a registry ReadGuard, so it must not call the
// registry's Add, Systems or Graph.
type Runnable interface {
	Run(w *World)
}

// SystemFactory produces a fresh Runnable for a registered system.
type SystemFactory func() Runnable

// Warning: internal Dependencies abound!
type Cursor struct {
	// The query to filter entities
	query QueryNode

	// The storage to iterate over
	storage Storage

	// Current iteration state
	currentArchetype archetype
	storageIndex     int
	entityIndex      int
	remaining        int

	// Initialization state
	initialized     bool
	matchedStorages []archetype
}

// AccessibleComponent extends a base Component with table-based accessibility
// It provides methods to retrieve components using different access patterns
type AccessibleComponent[T any] struct {
	Component
	table.Accessor[T] // concrete.
}

// AccessibleResource is the typed handle used to insert and fetch a single
// resource of type R from a World.
type AccessibleResource[R any] struct {
	id   ResourceID
	name string
}

type SimpleCache[T any] struct {
	items       []T
	itemIndices map[string]int
	maxCapacity int
}
