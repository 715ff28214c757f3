package foreman

import (
	"reflect"
	"sync"
)

// ResourceID identifies a resource kind. Ids are interned and dense, so they
// double as bit positions in access masks.
type ResourceID uint32

// SystemID identifies a system kind. Registering a second SystemInfo with the
// same id replaces the first.
type SystemID uint32

// EntityID identifies an entity across component storages. It matches the
// entry ids handed out by the archetype storage.
type EntityID uint32

// Interner hands out dense, stable ids for string keys.
type Interner struct {
	mu    sync.RWMutex
	cache *SimpleCache[string]
}

// ResourceIDs and SystemIDs are the process-wide interners. Ids stay stable for
// the lifetime of the process; integrators that need stability across builds
// should intern explicit names rather than Go type names.
var (
	ResourceIDs = NewInterner(Config.maxInternedIDs)
	SystemIDs   = NewInterner(Config.maxInternedIDs)
)

func NewInterner(capacity int) *Interner {
	return &Interner{
		cache: FactoryNewCache[string](capacity).(*SimpleCache[string]),
	}
}

// Intern returns the id for key, allocating the next id on first use.
// It panics when the interner is full.
func (in *Interner) Intern(key string) uint32 {
	in.mu.RLock()
	idx, ok := in.cache.GetIndex(key)
	in.mu.RUnlock()
	if ok {
		return uint32(idx)
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if idx, ok := in.cache.GetIndex(key); ok {
		return uint32(idx)
	}
	idx, err := in.cache.Register(key, key)
	if err != nil {
		panic(err)
	}
	return uint32(idx)
}

// Lookup returns the id for key without allocating one.
func (in *Interner) Lookup(key string) (uint32, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	idx, ok := in.cache.GetIndex(key)
	return uint32(idx), ok
}

// Name returns the key an id was interned from.
func (in *Interner) Name(id uint32) (string, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if int(id) >= in.cache.Len() {
		return "", false
	}
	return *in.cache.GetItem32(id), true
}

func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.cache.Len()
}

// ResourceIDNamed interns an explicit resource name.
func ResourceIDNamed(name string) ResourceID {
	return ResourceID(ResourceIDs.Intern(name))
}

// ResourceIDFor interns the Go type name of R.
func ResourceIDFor[R any]() ResourceID {
	return ResourceIDNamed(typeName[R]())
}

func (id ResourceID) String() string {
	if name, ok := ResourceIDs.Name(uint32(id)); ok {
		return name
	}
	return "<unknown resource>"
}

func (id SystemID) String() string {
	if name, ok := SystemIDs.Name(uint32(id)); ok {
		return name
	}
	return "<unknown system>"
}

func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}
