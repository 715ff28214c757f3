package foreman

import (
	"github.com/TheBitDrifter/mask"
	"github.com/TheBitDrifter/table"
)

var _ Archetype = archetype{}

type archetypeID uint32

// archetype is one table holding every entity with exactly one component set.
type archetype struct {
	id    archetypeID
	table table.Table
}

type archetypes struct {
	nextID           archetypeID
	asSlice          []archetype
	idsGroupedByMask map[mask.Mask]archetypeID
}

func newArchetypes() *archetypes {
	return &archetypes{
		nextID:           1,
		idsGroupedByMask: make(map[mask.Mask]archetypeID),
	}
}

func (a *archetypes) byMask(m mask.Mask) (archetype, bool) {
	id, found := a.idsGroupedByMask[m]
	if !found {
		return archetype{}, false
	}
	return a.asSlice[id-1], true
}

func (a *archetypes) add(m mask.Mask, arch archetype) {
	a.asSlice = append(a.asSlice, arch)
	a.idsGroupedByMask[m] = arch.id
	a.nextID++
}

// newArchetype builds the table for a component set. All tables of one storage
// share its entry index so entries can transfer between them.
func newArchetype(schema table.Schema, entryIndex table.EntryIndex, id archetypeID, components ...Component) (archetype, error) {
	elementTypes := make([]table.ElementType, len(components))
	for i, comp := range components {
		elementTypes[i] = comp
	}
	builder := table.NewTableBuilder().
		WithSchema(schema).
		WithEntryIndex(entryIndex).
		WithElementTypes(elementTypes...)
	if Config.tableEvents != nil {
		builder = builder.WithEvents(Config.tableEvents)
	}
	tbl, err := builder.Build()
	if err != nil {
		return archetype{}, err
	}
	return archetype{
		table: tbl,
		id:    id,
	}, nil
}

func (a archetype) ID() uint32 {
	return uint32(a.id)
}

func (a archetype) Table() table.Table {
	return a.table
}

func (a archetype) Len() int {
	return a.table.Length()
}
