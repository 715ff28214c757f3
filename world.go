package foreman

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// World owns every resource instance. Each resource is stored once per
// ResourceID and is handed out through borrow-checked handles: any number of
// shared borrows or exactly one exclusive borrow, never both.
type World struct {
	mu        sync.Mutex
	resources map[ResourceID]*resourceCell
	order     []ResourceID
	log       *slog.Logger
	metrics   *Metrics

	inserts singleflight.Group
}

type resourceCell struct {
	value    any
	typeName string
	// >0 shared borrows, -1 exclusive, 0 free
	borrows int
}

// ResourcesChangeEvent is pushed into the world's change channel whenever a
// resource id is inserted for the first time.
type ResourcesChangeEvent struct {
	Resource ResourceID
}

var resourcesChanged = FactoryNewNamedResource[EventChannel[ResourcesChangeEvent]]("foreman.ResourcesChanged")

func newWorld() *World {
	return &World{
		resources: make(map[ResourceID]*resourceCell),
		log:       Config.loggerFor("world"),
		metrics:   Config.metrics,
	}
}

// ResourcesChanged is the handle to the lazily created change channel.
func ResourcesChanged() AccessibleResource[EventChannel[ResourcesChangeEvent]] {
	return resourcesChanged
}

// Contains reports whether a resource exists without borrowing it.
func (w *World) Contains(id ResourceID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.resources[id]
	return ok
}

// Len returns the number of stored resources.
func (w *World) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.resources)
}

// Names returns the type names of all stored resources, sorted.
func (w *World) Names() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, 0, len(w.resources))
	for _, cell := range w.resources {
		names = append(names, cell.typeName)
	}
	slices.Sort(names)
	return names
}

// Close tears the world down. Resources implementing io.Closer are closed in
// reverse insertion order. Closing while any borrow is outstanding fails.
func (w *World) Close() error {
	w.mu.Lock()
	for _, id := range w.order {
		cell := w.resources[id]
		if cell.borrows != 0 {
			w.mu.Unlock()
			return &BorrowConflictError{
				TypeName:  cell.typeName,
				Requested: BorrowExclusive,
				Shared:    max(cell.borrows, 0),
				Exclusive: cell.borrows < 0,
			}
		}
	}
	cells := make([]*resourceCell, 0, len(w.order))
	for i := len(w.order) - 1; i >= 0; i-- {
		cells = append(cells, w.resources[w.order[i]])
	}
	w.resources = make(map[ResourceID]*resourceCell)
	w.order = nil
	w.mu.Unlock()

	var errs []error
	for _, cell := range cells {
		closer, ok := cell.value.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close resource %s: %w", cell.typeName, err))
		}
	}
	return errors.Join(errs...)
}

// insertIfAbsent stores the value produced by create unless id already exists.
// Concurrent first inserts of one id share a single create call. create runs
// without the world lock held.
func (w *World) insertIfAbsent(id ResourceID, typeName string, create func() any) error {
	_, err, _ := w.inserts.Do(strconv.FormatUint(uint64(id), 10), func() (any, error) {
		if w.Contains(id) {
			return nil, nil
		}
		value := create()
		if err := w.commit(id, typeName, value); err != nil {
			w.discard(typeName, value)
			return nil, err
		}
		return nil, nil
	})
	return err
}

// commit stores a new resource and pushes its change event in one critical
// section. Nothing is stored when the change channel cannot be written.
func (w *World) commit(id ResourceID, typeName string, value any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.resources[id]; exists {
		return nil
	}

	channelID := resourcesChanged.ID()
	var channel *EventChannel[ResourcesChangeEvent]
	if id == channelID {
		channel, _ = value.(*EventChannel[ResourcesChangeEvent])
	} else if cell, ok := w.resources[channelID]; ok {
		if cell.borrows != 0 {
			w.metrics.borrowConflict()
			w.log.Warn("change channel borrowed, insert rejected", "resource", typeName)
			return &BorrowConflictError{
				TypeName:  cell.typeName,
				Requested: BorrowExclusive,
				Shared:    max(cell.borrows, 0),
				Exclusive: cell.borrows < 0,
			}
		}
		existing, ok := cell.value.(*EventChannel[ResourcesChangeEvent])
		if !ok {
			return &ResourceTypeMismatchError{
				Resource: channelID,
				Expected: fmt.Sprintf("%T", existing),
				Actual:   fmt.Sprintf("%T", cell.value),
			}
		}
		channel = existing
	} else {
		created := NewEventChannel[ResourcesChangeEvent](Config.eventChannelCapacity)
		channel = &created
		w.store(channelID, resourcesChanged.Name(), channel)
		channel.Push(ResourcesChangeEvent{Resource: channelID})
	}

	w.store(id, typeName, value)
	if channel != nil {
		channel.Push(ResourcesChangeEvent{Resource: id})
	}
	return nil
}

func (w *World) store(id ResourceID, typeName string, value any) {
	w.resources[id] = &resourceCell{value: value, typeName: typeName}
	w.order = append(w.order, id)
	w.log.Debug("resource inserted", "resource", typeName, "id", uint32(id))
}

// discard closes a value that was created but never stored.
func (w *World) discard(typeName string, value any) {
	closer, ok := value.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		w.log.Warn("close discarded resource", "resource", typeName, "error", err)
	}
}
