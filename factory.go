package foreman

import "github.com/TheBitDrifter/table"

type factory struct{}

var Factory factory

func (f factory) NewStorage(schema table.Schema) Storage {
	return newStorage(schema)
}

func (f factory) NewQuery() Query {
	return newQuery()
}

func (f factory) NewCursor(query QueryNode, storage Storage) *Cursor {
	return newCursor(query, storage)
}

// NewWorld returns an empty resource store.
func (f factory) NewWorld() *World {
	return newWorld()
}

// NewRegistry returns a registry holding infos.
func (f factory) NewRegistry(infos ...*SystemInfo) *SystemRegistry {
	return NewSystemRegistry(infos...)
}

func (f factory) NewDispatcher(registry *SystemRegistry) *Dispatcher {
	return NewDispatcher(registry)
}

func FactoryNewComponent[T any]() AccessibleComponent[T] {
	iden := table.FactoryNewElementType[T]()
	return AccessibleComponent[T]{
		Component: iden,
		Accessor:  table.FactoryNewAccessor[T](iden),
	}
}

func FactoryNewCache[T any](cap int) Cache[T] {
	return &SimpleCache[T]{
		itemIndices: make(map[string]int),
		maxCapacity: cap,
	}
}
