package foreman

import "fmt"

// FactoryNewResource returns the handle for R keyed by its Go type name.
func FactoryNewResource[R any]() AccessibleResource[R] {
	return AccessibleResource[R]{
		id:   ResourceIDFor[R](),
		name: typeName[R](),
	}
}

// FactoryNewNamedResource returns the handle for R keyed by an explicit name.
func FactoryNewNamedResource[R any](name string) AccessibleResource[R] {
	return AccessibleResource[R]{
		id:   ResourceIDNamed(name),
		name: name,
	}
}

func (r AccessibleResource[R]) ID() ResourceID {
	return r.id
}

func (r AccessibleResource[R]) Name() string {
	return r.name
}

// Insert returns an exclusive handle to the resource, creating it with create
// if it does not exist yet. An existing resource is returned as is and create
// is not called. It panics with the error TryInsert would return.
func (r AccessibleResource[R]) Insert(w *World, create func() R) *RefMut[R] {
	ref, err := r.TryInsert(w, create)
	if err != nil {
		panic(err)
	}
	return ref
}

// TryInsert is Insert without the panic. Creating a resource fails with a
// *BorrowConflictError while the ResourcesChanged channel is borrowed; the
// world is left unchanged and a created io.Closer is closed.
func (r AccessibleResource[R]) TryInsert(w *World, create func() R) (*RefMut[R], error) {
	err := w.insertIfAbsent(r.id, r.name, func() any {
		value := create()
		return &value
	})
	if err != nil {
		return nil, err
	}
	return r.TryFetchMut(w)
}

// Fetch returns a shared handle. It panics if the resource is absent or
// exclusively borrowed.
func (r AccessibleResource[R]) Fetch(w *World) *Ref[R] {
	ref, err := r.TryFetch(w)
	if err != nil {
		panic(err)
	}
	return ref
}

// FetchMut returns an exclusive handle. It panics if the resource is absent or
// borrowed at all.
func (r AccessibleResource[R]) FetchMut(w *World) *RefMut[R] {
	ref, err := r.TryFetchMut(w)
	if err != nil {
		panic(err)
	}
	return ref
}

// TryFetch returns a shared handle, a *FetchError if the resource was never
// inserted, or a *BorrowConflictError if it is exclusively borrowed.
func (r AccessibleResource[R]) TryFetch(w *World) (*Ref[R], error) {
	value, err := r.acquire(w, BorrowShared)
	if err != nil {
		return nil, err
	}
	return &Ref[R]{world: w, id: r.id, value: value}, nil
}

// TryFetchMut is the exclusive counterpart of TryFetch.
func (r AccessibleResource[R]) TryFetchMut(w *World) (*RefMut[R], error) {
	value, err := r.acquire(w, BorrowExclusive)
	if err != nil {
		return nil, err
	}
	return &RefMut[R]{world: w, id: r.id, value: value}, nil
}

// Contains reports whether the resource exists without borrowing it.
func (r AccessibleResource[R]) Contains(w *World) bool {
	return w.Contains(r.id)
}

func (r AccessibleResource[R]) acquire(w *World, kind BorrowKind) (*R, error) {
	boxed, err := w.acquire(r.id, r.name, kind)
	if err != nil {
		return nil, err
	}
	value, ok := boxed.(*R)
	if !ok {
		w.release(r.id, kind)
		return nil, &ResourceTypeMismatchError{
			Resource: r.id,
			Expected: fmt.Sprintf("%T", (*R)(nil)),
			Actual:   fmt.Sprintf("%T", boxed),
		}
	}
	return value, nil
}
