package foreman

import (
	"fmt"

	"github.com/TheBitDrifter/table"
)

type operation struct {
	typ      operationType
	amount   int
	comps    []Component
	entities []Entity
	sto      Storage
}

type operationType int

const (
	opSkip operationType = iota - 1
	opCreate
	opDestroy
	opAddComponent
	opRemoveComponent
)

type opKey struct {
	id table.EntryID
}

// opQueue defers structural changes requested while a storage is locked.
// Creates apply first, then component changes in request order, then
// destroys.
type opQueue struct {
	createOps      []operation
	componentOps   []operation
	destroyOps     []operation
	pendingDestroy map[opKey]struct{}
	pendingMods    map[opKey][]int
}

func newOpQueue() opQueue {
	return opQueue{
		pendingDestroy: make(map[opKey]struct{}),
		pendingMods:    make(map[opKey][]int),
	}
}

func (q *opQueue) enqueueOp(op operation) {
	switch op.typ {
	case opCreate:
		q.createOps = append(q.createOps, op)
	case opDestroy:
		q.destroyOps = append(q.destroyOps, op)
	case opAddComponent, opRemoveComponent:
		q.componentOps = append(q.componentOps, op)
	}
}

func (q *opQueue) empty() bool {
	return len(q.createOps) == 0 &&
		len(q.componentOps) == 0 &&
		len(q.destroyOps) == 0
}

func (q *opQueue) reset() {
	q.createOps = q.createOps[:0]
	q.componentOps = q.componentOps[:0]
	q.destroyOps = q.destroyOps[:0]
	clear(q.pendingDestroy)
	clear(q.pendingMods)
}

func (sto *storage) processOperationQueue() error {
	if sto.opQueue.empty() {
		return nil
	}
	defer sto.opQueue.reset()

	for _, op := range sto.opQueue.createOps {
		if _, err := sto.NewEntities(op.amount, op.comps...); err != nil {
			return fmt.Errorf("failed to process queued entity creation: %w", err)
		}
	}

	for _, op := range sto.opQueue.componentOps {
		if op.typ == opSkip {
			continue
		}
		en := op.entities[0]
		if _, alive := sto.resolve(en.ID()); !alive {
			continue
		}
		switch op.typ {
		case opAddComponent:
			if err := en.AddComponent(op.comps[0]); err != nil {
				return fmt.Errorf("failed to add queued component: %w", err)
			}
		case opRemoveComponent:
			if err := en.RemoveComponent(op.comps[0]); err != nil {
				return fmt.Errorf("failed to remove queued component: %w", err)
			}
		}
	}

	for _, op := range sto.opQueue.destroyOps {
		if len(op.entities) == 0 {
			continue
		}
		if err := op.sto.DestroyEntities(op.entities...); err != nil {
			return fmt.Errorf("failed to delete queued entries: %w", err)
		}
	}
	return nil
}

// EnqueueDestroy queues entities for removal. Pending component changes for
// them are dropped.
func (q *opQueue) EnqueueDestroy(sto Storage, entries []Entity) {
	var newEntities []Entity
	for _, en := range entries {
		if en == nil {
			continue
		}
		key := opKey{id: en.ID()}
		if _, exists := q.pendingDestroy[key]; exists {
			continue
		}
		newEntities = append(newEntities, en)
		q.pendingDestroy[key] = struct{}{}

		for _, idx := range q.pendingMods[key] {
			q.componentOps[idx].typ = opSkip
		}
		delete(q.pendingMods, key)
	}

	if len(newEntities) > 0 {
		q.enqueueOp(operation{
			typ:      opDestroy,
			entities: newEntities,
			sto:      sto,
		})
	}
}

// EnqueueComponentOp queues a component change. Changes for an entity that is
// already pending destruction are ignored.
func (q *opQueue) EnqueueComponentOp(typ operationType, sto Storage, en Entity, comp Component) {
	key := opKey{id: en.ID()}
	if _, isDestroyed := q.pendingDestroy[key]; isDestroyed {
		return
	}
	q.pendingMods[key] = append(q.pendingMods[key], len(q.componentOps))
	q.enqueueOp(operation{
		typ:      typ,
		entities: []Entity{en},
		sto:      sto,
		comps:    []Component{comp},
	})
}
