package foreman

import (
	"iter"

	"github.com/TheBitDrifter/table"
)

var _ iCursor = &Cursor{}

func newCursor(query QueryNode, storage Storage) *Cursor {
	return &Cursor{
		query:   query,
		storage: storage,
	}
}

// Next advances to the next matching entity. The storage stays locked while a
// cursor is iterating; structural changes made meanwhile must be enqueued and
// are applied once iteration finishes.
func (c *Cursor) Next() bool {
	if c.initialized && c.entityIndex < c.remaining {
		c.entityIndex++
		return true
	}
	return c.advance()
}

func (c *Cursor) advance() bool {
	if !c.initialized {
		c.initialize()
	} else {
		c.storageIndex++
		c.entityIndex = 0
	}
	for c.storageIndex < len(c.matchedStorages) {
		c.currentArchetype = c.matchedStorages[c.storageIndex]
		c.remaining = c.currentArchetype.table.Length()

		if c.entityIndex < c.remaining {
			c.entityIndex++
			return true
		}
		c.storageIndex++
		c.entityIndex = 0
	}
	c.Reset()
	return false
}

// Entities yields the row index and table of every matching entity.
func (c *Cursor) Entities() iter.Seq2[int, table.Table] {
	return func(yield func(int, table.Table) bool) {
		c.initialize()

		for c.storageIndex < len(c.matchedStorages) {
			c.currentArchetype = c.matchedStorages[c.storageIndex]
			c.remaining = c.currentArchetype.table.Length()

			for c.entityIndex < c.remaining {
				if !yield(c.entityIndex, c.currentArchetype.table) {
					c.Reset()
					return
				}
				c.entityIndex++
			}
			c.entityIndex = 0
			c.storageIndex++
		}
		c.Reset()
	}
}

func (c *Cursor) initialize() {
	if c.initialized {
		return
	}
	c.matchedStorages = make([]archetype, 0)

	for _, arch := range c.storage.(*storage).archetypes.asSlice {
		if c.query.Evaluate(arch, c.storage) {
			c.matchedStorages = append(c.matchedStorages, arch)
		}
	}
	c.storageIndex = 0
	c.entityIndex = 0
	if len(c.matchedStorages) > 0 {
		c.currentArchetype = c.matchedStorages[0]
		c.remaining = c.currentArchetype.table.Length()
	}
	c.initialized = true
	c.storage.Lock()
}

// Reset ends iteration and unlocks the storage, applying queued operations.
func (c *Cursor) Reset() {
	wasInitialized := c.initialized
	c.storageIndex = 0
	c.entityIndex = 0
	c.remaining = 0
	c.matchedStorages = nil
	c.initialized = false
	if wasInitialized {
		c.storage.Unlock()
	}
}

// CurrentEntity returns the row index and table the cursor points at.
func (c *Cursor) CurrentEntity() (int, table.Table) {
	return c.entityIndex - 1, c.currentArchetype.table
}

// Entity resolves the entity the cursor points at.
func (c *Cursor) Entity() (Entity, error) {
	entry, err := c.currentArchetype.table.Entry(c.entityIndex - 1)
	if err != nil {
		return nil, err
	}
	return c.storage.Entity(int(entry.ID()))
}

func (c *Cursor) RemainingInArchetype() int {
	return c.remaining - c.entityIndex
}

// TotalMatched counts matching entities without starting iteration.
func (c *Cursor) TotalMatched() int {
	total := 0
	for _, arch := range c.storage.(*storage).archetypes.asSlice {
		if c.query.Evaluate(arch, c.storage) {
			total += arch.table.Length()
		}
	}
	return total
}
