package foreman

import (
	"testing"

	"github.com/TheBitDrifter/table"
	"github.com/bits-and-blooms/bitset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sparseOf[T any](values map[EntityID]T) *SparseStorage[T] {
	s := NewSparseStorage[T]()
	for id, v := range values {
		s.Insert(id, v)
	}
	return s
}

func TestJoinIntersectsAscending(t *testing.T) {
	names := sparseOf(map[EntityID]string{1: "one", 3: "three", 5: "five"})
	scores := sparseOf(map[EntityID]int{3: 30, 5: 50, 7: 70})

	var got []EntityID
	var pairs []Pair[string, int]
	for id, pair := range Join(And[*string, *int](names, scores)).All() {
		got = append(got, id)
		pairs = append(pairs, Pair[string, int]{First: *pair.First, Second: *pair.Second})
	}

	assert.Equal(t, []EntityID{3, 5}, got)
	assert.Equal(t, []Pair[string, int]{
		{First: "three", Second: 30},
		{First: "five", Second: 50},
	}, pairs)
}

func TestJoinIsCommutative(t *testing.T) {
	a := sparseOf(map[EntityID]int{2: 2, 4: 4, 6: 6, 8: 8})
	b := sparseOf(map[EntityID]int{4: 40, 8: 80, 9: 90})

	collect := func(src JoinSource[Pair[*int, *int]]) []EntityID {
		var out []EntityID
		for id := range Join(src).All() {
			out = append(out, id)
		}
		return out
	}
	assert.Equal(t, collect(And[*int, *int](a, b)), collect(And[*int, *int](b, a)))
}

func TestJoinIsSinglePass(t *testing.T) {
	s := sparseOf(map[EntityID]int{1: 1, 2: 2})
	it := Join[*int](s)

	require.True(t, it.Next())
	assert.Equal(t, EntityID(1), it.ID())
	assert.Equal(t, 1, *it.Get())
	require.True(t, it.Next())
	assert.Equal(t, EntityID(2), it.ID())
	assert.False(t, it.Next())
	assert.False(t, it.Next(), "an exhausted join stays exhausted")

	count := 0
	for range it.All() {
		count++
	}
	assert.Zero(t, count)

	// a fresh join over the same source iterates again
	for range Join[*int](s).All() {
		count++
	}
	assert.Equal(t, 2, count)
}

func TestJoinSnapshotsPresence(t *testing.T) {
	s := sparseOf(map[EntityID]int{1: 1})
	it := Join[*int](s)

	s.Insert(2, 2)

	var got []EntityID
	for id := range it.All() {
		got = append(got, id)
	}
	assert.Equal(t, []EntityID{1}, got)
}

func TestJoinNesting(t *testing.T) {
	a := sparseOf(map[EntityID]string{1: "a1", 2: "a2", 3: "a3", 4: "a4"})
	b := sparseOf(map[EntityID]int{2: 20, 3: 30, 4: 40})
	c := sparseOf(map[EntityID]bool{3: true, 4: false, 5: true})

	nested := Join(And[Pair[*string, *int], *bool](And[*string, *int](a, b), c))
	flat := Join(And3[*string, *int, *bool](a, b, c))

	require.True(t, nested.Next())
	require.True(t, flat.Next())
	assert.Equal(t, EntityID(3), nested.ID())
	assert.Equal(t, nested.ID(), flat.ID())
	assert.Equal(t, "a3", *nested.Get().First.First)
	assert.Equal(t, 30, *flat.Get().Second)
	assert.True(t, *flat.Get().Third)

	require.True(t, nested.Next())
	require.True(t, flat.Next())
	assert.Equal(t, EntityID(4), flat.ID())
	assert.False(t, nested.Next())
	assert.False(t, flat.Next())
}

func TestJoinAndAll(t *testing.T) {
	sources := []JoinSource[*int]{
		sparseOf(map[EntityID]int{1: 10, 2: 20, 3: 30}),
		sparseOf(map[EntityID]int{2: 21, 3: 31}),
		sparseOf(map[EntityID]int{3: 32, 4: 42}),
	}

	it := Join(AndAll(sources...))
	require.True(t, it.Next())
	assert.Equal(t, EntityID(3), it.ID())
	values := it.Get()
	require.Len(t, values, 3)
	assert.Equal(t, 30, *values[0])
	assert.Equal(t, 31, *values[1])
	assert.Equal(t, 32, *values[2])
	assert.False(t, it.Next())

	empty := Join(AndAll[*int]())
	assert.False(t, empty.Next())
}

func TestIntersectLeavesInputs(t *testing.T) {
	big := bitset.New(0).Set(1).Set(2).Set(3).Set(4)
	small := bitset.New(0).Set(2).Set(9)

	result := intersect(big, small)
	assert.Equal(t, uint(1), result.Count())
	assert.True(t, result.Test(2))
	assert.Equal(t, uint(4), big.Count())
	assert.Equal(t, uint(2), small.Count())
}

func TestJoinOverStorageComponents(t *testing.T) {
	schema := table.Factory.NewSchema()
	storage := Factory.NewStorage(schema)

	plain, err := storage.NewEntities(3, posComp)
	require.NoError(t, err)
	moving, err := storage.NewEntities(2, posComp, velComp)
	require.NoError(t, err)
	_, err = storage.NewEntities(2, velComp)
	require.NoError(t, err)

	for i, en := range moving {
		*velComp.GetFromEntity(en) = Velocity{X: float64(i + 1), Y: 2}
	}
	*posComp.GetFromEntity(plain[0]) = Position{X: 100}

	var moved []EntityID
	for id, pair := range Join(And(posComp.Source(storage), velComp.Source(storage))).All() {
		pair.First.X += pair.Second.X
		pair.First.Y += pair.Second.Y
		moved = append(moved, id)
	}

	require.Len(t, moved, 2)
	assert.Equal(t, EntityID(moving[0].ID()), moved[0])
	assert.Equal(t, EntityID(moving[1].ID()), moved[1])
	assert.Equal(t, Position{X: 1, Y: 2}, *posComp.GetFromEntity(moving[0]))
	assert.Equal(t, Position{X: 2, Y: 2}, *posComp.GetFromEntity(moving[1]))
	assert.Equal(t, Position{X: 100}, *posComp.GetFromEntity(plain[0]))

	// storage and sparse sources share the entity id space
	tags := NewSparseStorage[string]()
	tags.Insert(EntityID(moving[1].ID()), "boss")
	tags.Insert(EntityID(plain[0].ID()), "prop")

	it := Join(And(posComp.Source(storage), JoinSource[*string](tags)))
	var tagged []string
	for _, pair := range it.All() {
		tagged = append(tagged, *pair.Second)
	}
	assert.Equal(t, []string{"prop", "boss"}, tagged)
}

func TestSparseStorage(t *testing.T) {
	s := NewSparseStorage[Health]()

	_, replaced := s.Insert(4, Health{Current: 5, Max: 10})
	assert.False(t, replaced)
	prev, replaced := s.Insert(4, Health{Current: 7, Max: 10})
	assert.True(t, replaced)
	assert.Equal(t, 5, prev.Current)

	assert.True(t, s.Contains(4))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 7, s.Get(4).Current)
	assert.Nil(t, s.Get(5))

	s.Get(4).Current = 9
	assert.Equal(t, 9, s.UncheckedGet(4).Current)

	removed, ok := s.Remove(4)
	require.True(t, ok)
	assert.Equal(t, 9, removed.Current)
	assert.False(t, s.Contains(4))
	assert.True(t, s.Presence().None())

	_, ok = s.Remove(4)
	assert.False(t, ok)
}
