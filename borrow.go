package foreman

import "sync/atomic"

// Ref is a shared borrow of a resource. The pointer returned by Get must be
// treated as read-only and must not be used after Release.
type Ref[R any] struct {
	world    *World
	id       ResourceID
	value    *R
	released atomic.Bool
}

// RefMut is an exclusive borrow of a resource.
type RefMut[R any] struct {
	world    *World
	id       ResourceID
	value    *R
	released atomic.Bool
}

func (r *Ref[R]) Get() *R {
	return r.value
}

// Release returns the borrow. Releasing twice is a no-op.
func (r *Ref[R]) Release() {
	if r.released.CompareAndSwap(false, true) {
		r.world.release(r.id, BorrowShared)
	}
}

func (r *RefMut[R]) Get() *R {
	return r.value
}

// Release returns the borrow. Releasing twice is a no-op.
func (r *RefMut[R]) Release() {
	if r.released.CompareAndSwap(false, true) {
		r.world.release(r.id, BorrowExclusive)
	}
}

func (w *World) acquire(id ResourceID, typeName string, kind BorrowKind) (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cell, ok := w.resources[id]
	if !ok {
		w.metrics.fetchFailed()
		return nil, &FetchError{TypeName: typeName}
	}

	conflict := cell.borrows < 0 || (kind == BorrowExclusive && cell.borrows != 0)
	if conflict {
		err := &BorrowConflictError{
			TypeName:  cell.typeName,
			Requested: kind,
			Shared:    max(cell.borrows, 0),
			Exclusive: cell.borrows < 0,
		}
		w.metrics.borrowConflict()
		w.log.Warn("borrow conflict", "resource", cell.typeName, "requested", kind.String())
		return nil, err
	}

	if kind == BorrowExclusive {
		cell.borrows = -1
	} else {
		cell.borrows++
	}
	return cell.value, nil
}

func (w *World) release(id ResourceID, kind BorrowKind) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cell, ok := w.resources[id]
	if !ok {
		return
	}
	switch {
	case kind == BorrowExclusive && cell.borrows == -1:
		cell.borrows = 0
	case kind == BorrowShared && cell.borrows > 0:
		cell.borrows--
	default:
		panic("foreman: unbalanced release of resource " + cell.typeName)
	}
}
