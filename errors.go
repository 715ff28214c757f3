package foreman

import (
	"fmt"
	"strings"

	"github.com/TheBitDrifter/bark"
)

type LockedStorageError struct{}

func (e LockedStorageError) Error() string {
	return "storage is currently locked"
}

type EntityRelationError struct {
	child, parent Entity
}

func (e EntityRelationError) Error() string {
	return fmt.Sprintf("child (%v) already has parent %v", e.child, e.parent)
}

type ComponentExistsError struct {
	Component Component
}

func (e ComponentExistsError) Error() string {
	return fmt.Sprintf("component already exists on entity: %T", e.Component)
}

type ComponentNotFoundError struct {
	Component Component
}

func (e ComponentNotFoundError) Error() string {
	return fmt.Sprintf("component does not exist on entity: %T", e.Component)
}

type EntityNotFoundError struct {
	ID int
}

func (e EntityNotFoundError) Error() string {
	return fmt.Sprintf("entity %d does not exist", e.ID)
}

// FetchError reports a resource that was requested but never inserted.
type FetchError struct {
	TypeName string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch resource. type_name: %s", e.TypeName)
}

// BorrowKind is the kind of access a borrow grants.
type BorrowKind int

const (
	BorrowShared BorrowKind = iota
	BorrowExclusive
)

func (k BorrowKind) String() string {
	if k == BorrowExclusive {
		return "exclusive"
	}
	return "shared"
}

// BorrowConflictError reports a fetch that would alias an outstanding borrow.
type BorrowConflictError struct {
	TypeName  string
	Requested BorrowKind
	Shared    int
	Exclusive bool
}

func (e *BorrowConflictError) Error() string {
	held := fmt.Sprintf("%d shared", e.Shared)
	if e.Exclusive {
		held = "1 exclusive"
	}
	return fmt.Sprintf("borrow conflict on resource %s: %s borrow requested while %s borrow(s) outstanding",
		e.TypeName, e.Requested, held)
}

// CycleError reports systems whose declared accesses cannot be linearized.
// Path starts and ends with the same system.
type CycleError struct {
	Path []*SystemInfo
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return "system dependency cycle detected"
	}
	parts := make([]string, len(e.Path))
	for i, info := range e.Path {
		parts[i] = fmt.Sprintf("%s(#%d)", info.Name(), info.ID())
	}
	return "system dependency cycle detected: " + strings.Join(parts, " -> ")
}

// ConflictError reports two systems placed in the same wavefront that touch the
// same resource with at least one of them writing it.
type ConflictError struct {
	Wavefront int
	First     *SystemInfo
	Second    *SystemInfo
	Resource  ResourceID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("systems %s and %s share wavefront %d but conflict on resource %s",
		e.First.Name(), e.Second.Name(), e.Wavefront, e.Resource)
}

// SystemPanicError wraps a panic raised by a system's Run.
type SystemPanicError struct {
	System string
	Value  any
}

func (e *SystemPanicError) Error() string {
	return fmt.Sprintf("system %s panicked: %v", e.System, e.Value)
}

func (e *SystemPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// ResourceTypeMismatchError reports two handles that share a ResourceID but
// disagree on the stored type.
type ResourceTypeMismatchError struct {
	Resource ResourceID
	Expected string
	Actual   string
}

func (e *ResourceTypeMismatchError) Error() string {
	return fmt.Sprintf("resource type mismatch for %s: expected=%s actual=%s", e.Resource, e.Expected, e.Actual)
}

// traceOf renders the caller's stack for err as log-friendly frames.
func traceOf(err error) []string {
	trace, ok := bark.GetTrace(bark.AddTrace(err))
	if !ok {
		return nil
	}
	frames := make([]string, len(trace.Frames))
	for i, f := range trace.Frames {
		frames[i] = f.String()
	}
	return frames
}
