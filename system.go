package foreman

import (
	"reflect"
	"slices"

	"github.com/bits-and-blooms/bitset"
)

// Access is a system's declared resource access, split by causal role.
//
// ReadsBeforeWrite lists resources the system reads in the state prior to any
// writer, so the system runs before their writers. Writes lists resources the
// system mutates exclusively. ReadsAfterWrite lists resources the system reads
// once their writers have produced the new value, so it runs after them.
type Access struct {
	ReadsBeforeWrite []ResourceID
	Writes           []ResourceID
	ReadsAfterWrite  []ResourceID
}

// SystemInfo describes one registered system. It is immutable once built and
// is shared read-only with every graph consumer.
type SystemInfo struct {
	id     SystemID
	name   string
	access Access
	create SystemFactory
}

type resourceHandle interface {
	ID() ResourceID
}

// Resources collects the ids of resource handles for use in an Access.
func Resources(handles ...resourceHandle) []ResourceID {
	ids := make([]ResourceID, len(handles))
	for i, h := range handles {
		ids[i] = h.ID()
	}
	return ids
}

// NewSystemInfo builds a descriptor whose identity is the interned name.
func NewSystemInfo(name string, access Access, create SystemFactory) *SystemInfo {
	if create == nil {
		create = func() Runnable { return idleSystem{} }
	}
	return &SystemInfo{
		id:     SystemID(SystemIDs.Intern(name)),
		name:   name,
		access: access.normalized(),
		create: create,
	}
}

// SystemInfoFor builds a descriptor named after the Go type S. Each New call
// yields a zero S, or a pointer to a zero value when S is a pointer type.
func SystemInfoFor[S Runnable](access Access) *SystemInfo {
	return NewSystemInfo(typeName[S](), access, func() Runnable {
		return zeroRunnable[S]()
	})
}

func zeroRunnable[S Runnable]() S {
	var s S
	if t := reflect.TypeFor[S](); t.Kind() == reflect.Pointer {
		return reflect.New(t.Elem()).Interface().(S)
	}
	return s
}

func (s *SystemInfo) ID() SystemID {
	return s.id
}

func (s *SystemInfo) Name() string {
	return s.name
}

func (s *SystemInfo) Access() Access {
	return s.access.clone()
}

func (s *SystemInfo) ReadsBeforeWrite() []ResourceID {
	return slices.Clone(s.access.ReadsBeforeWrite)
}

func (s *SystemInfo) Writes() []ResourceID {
	return slices.Clone(s.access.Writes)
}

func (s *SystemInfo) ReadsAfterWrite() []ResourceID {
	return slices.Clone(s.access.ReadsAfterWrite)
}

// New produces a fresh runnable instance of the system.
func (s *SystemInfo) New() Runnable {
	return s.create()
}

func (s *SystemInfo) String() string {
	return s.name
}

// ReadMask returns every resource the system reads in either role.
func (a Access) ReadMask() *bitset.BitSet {
	mask := bitset.New(0)
	for _, id := range a.ReadsBeforeWrite {
		mask.Set(uint(id))
	}
	for _, id := range a.ReadsAfterWrite {
		mask.Set(uint(id))
	}
	return mask
}

// WriteMask returns every resource the system writes.
func (a Access) WriteMask() *bitset.BitSet {
	mask := bitset.New(0)
	for _, id := range a.Writes {
		mask.Set(uint(id))
	}
	return mask
}

// Mask returns every resource the system touches.
func (a Access) Mask() *bitset.BitSet {
	return a.ReadMask().Union(a.WriteMask())
}

// Conflicts reports the first resource on which a and b cannot run
// concurrently: one writes what the other reads or writes.
func (a Access) Conflicts(b Access) (ResourceID, bool) {
	aw, bw := a.WriteMask(), b.WriteMask()
	for _, clash := range []*bitset.BitSet{
		aw.Intersection(bw),
		aw.Intersection(b.ReadMask()),
		bw.Intersection(a.ReadMask()),
	} {
		if id, ok := clash.NextSet(0); ok {
			return ResourceID(id), true
		}
	}
	return 0, false
}

func (a Access) normalized() Access {
	return Access{
		ReadsBeforeWrite: dedupe(a.ReadsBeforeWrite),
		Writes:           dedupe(a.Writes),
		ReadsAfterWrite:  dedupe(a.ReadsAfterWrite),
	}
}

func (a Access) clone() Access {
	return Access{
		ReadsBeforeWrite: slices.Clone(a.ReadsBeforeWrite),
		Writes:           slices.Clone(a.Writes),
		ReadsAfterWrite:  slices.Clone(a.ReadsAfterWrite),
	}
}

func dedupe(ids []ResourceID) []ResourceID {
	seen := make(map[ResourceID]struct{}, len(ids))
	out := make([]ResourceID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type idleSystem struct{}

func (idleSystem) Run(*World) {}
