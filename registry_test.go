package foreman

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	resA = ResourceIDNamed("test.res.a")
	resB = ResourceIDNamed("test.res.b")
	resC = ResourceIDNamed("test.res.c")
	resD = ResourceIDNamed("test.res.d")
)

func ids(ids ...ResourceID) []ResourceID {
	return ids
}

func positions(order []*SystemInfo) map[string]int {
	pos := make(map[string]int, len(order))
	for i, info := range order {
		pos[info.Name()] = i
	}
	return pos
}

func visitAll(t *testing.T, r *SystemRegistry) []*SystemInfo {
	t.Helper()
	visitor, guard, err := r.Systems()
	require.NoError(t, err)
	defer guard.Release()
	var order []*SystemInfo
	for _, info := range visitor.All() {
		order = append(order, info)
	}
	return order
}

func TestRegistryReaderWriterScenario(t *testing.T) {
	before := NewSystemInfo("scenario.B", Access{ReadsBeforeWrite: ids(resA)}, nil)
	after := NewSystemInfo("scenario.C", Access{ReadsAfterWrite: ids(resA)}, nil)
	writer := NewSystemInfo("scenario.A", Access{Writes: ids(resA)}, nil)

	permutations := [][]*SystemInfo{
		{before, after, writer},
		{before, writer, after},
		{after, before, writer},
		{after, writer, before},
		{writer, before, after},
		{writer, after, before},
	}

	for _, perm := range permutations {
		names := make([]string, len(perm))
		for i, info := range perm {
			names[i] = info.Name()
		}
		t.Run(strings.Join(names, ","), func(t *testing.T) {
			r := NewSystemRegistry(perm...)
			pos := positions(visitAll(t, r))

			assert.Less(t, pos["scenario.B"], pos["scenario.A"])
			assert.Less(t, pos["scenario.A"], pos["scenario.C"])

			graph, err := r.Graph()
			require.NoError(t, err)
			assert.Equal(t, 3, graph.Depth())
			assert.True(t, graph.HasPath(before.ID(), after.ID()))
			assert.False(t, graph.HasPath(after.ID(), before.ID()))
		})
	}
}

func TestRegistryRoleOrderingProperty(t *testing.T) {
	infos := []*SystemInfo{
		NewSystemInfo("prop.input", Access{Writes: ids(resA)}, nil),
		NewSystemInfo("prop.snapshot", Access{ReadsBeforeWrite: ids(resA, resB)}, nil),
		NewSystemInfo("prop.physics", Access{ReadsAfterWrite: ids(resA), Writes: ids(resB)}, nil),
		NewSystemInfo("prop.audio", Access{ReadsAfterWrite: ids(resB), Writes: ids(resC)}, nil),
		NewSystemInfo("prop.render", Access{ReadsAfterWrite: ids(resB, resC)}, nil),
		NewSystemInfo("prop.ai", Access{ReadsBeforeWrite: ids(resC), Writes: ids(resA)}, nil),
		NewSystemInfo("prop.stats", Access{ReadsAfterWrite: ids(resD)}, nil),
	}

	r := NewSystemRegistry(infos...)
	order := visitAll(t, r)
	require.Len(t, order, len(infos))
	pos := positions(order)

	for _, res := range []ResourceID{resA, resB, resC, resD} {
		info, ok := r.ResourceInfo(res)
		require.True(t, ok, "resource %s", res)
		for _, w := range info.Writes {
			wName := w.String()
			for _, b := range info.ReadsBeforeWrite {
				if b == w {
					continue
				}
				assert.Less(t, pos[b.String()], pos[wName], "%s reads %s before %s writes it", b, res, wName)
			}
			for _, a := range info.ReadsAfterWrite {
				if a == w {
					continue
				}
				assert.Less(t, pos[wName], pos[a.String()], "%s reads %s after %s writes it", a, res, wName)
			}
		}
	}

	graph, err := r.Graph()
	require.NoError(t, err)
	require.NoError(t, ValidateWavefronts(graph))
}

func TestRegistryReRegistrationReplaces(t *testing.T) {
	r := NewSystemRegistry(
		NewSystemInfo("rereg.first", Access{Writes: ids(resA)}, nil),
		NewSystemInfo("rereg.second", Access{ReadsAfterWrite: ids(resA)}, nil),
	)
	require.Len(t, visitAll(t, r), 2)

	replacement := NewSystemInfo("rereg.first", Access{ReadsAfterWrite: ids(resB)}, nil)
	r.Add(replacement)

	assert.Equal(t, 2, r.Len())
	order := visitAll(t, r)
	require.Len(t, order, 2)
	assert.Same(t, replacement, order[0], "replacement keeps the original registration slot")

	info, ok := r.ResourceInfo(resA)
	require.True(t, ok)
	assert.Empty(t, info.Writes)

	graph, err := r.Graph()
	require.NoError(t, err)
	assert.Empty(t, graph.Edges())
	assert.Equal(t, 1, graph.Depth())
}

func TestRegistryWriterOrderIsDeterministic(t *testing.T) {
	first := NewSystemInfo("writers.first", Access{Writes: ids(resA)}, nil)
	second := NewSystemInfo("writers.second", Access{Writes: ids(resA)}, nil)
	third := NewSystemInfo("writers.third", Access{Writes: ids(resA)}, nil)

	r := NewSystemRegistry(second, third, first)
	want := []string{"writers.second", "writers.third", "writers.first"}

	for i := range 5 {
		order := visitAll(t, r)
		names := make([]string, len(order))
		for j, info := range order {
			names[j] = info.Name()
		}
		assert.Equal(t, want, names, "rebuild %d", i)

		// force a rebuild from the same registration sequence
		r.Add(second)
	}

	graph, err := r.Graph()
	require.NoError(t, err)
	for _, e := range graph.Edges() {
		assert.Equal(t, EdgeWriterOrder, e.Kind)
		assert.Equal(t, resA, e.Resource)
	}
}

func TestRegistryWriterOrderFollowsReaderEdges(t *testing.T) {
	// consumer must run after producer through resB, so the writer tie-break
	// on resA may not put consumer first even though it registered first.
	consumer := NewSystemInfo("implied.consumer", Access{Writes: ids(resA), ReadsAfterWrite: ids(resB)}, nil)
	producer := NewSystemInfo("implied.producer", Access{Writes: ids(resA, resB)}, nil)

	r := NewSystemRegistry(consumer, producer)
	order := visitAll(t, r)
	require.Len(t, order, 2)
	assert.Equal(t, "implied.producer", order[0].Name())
	assert.Equal(t, "implied.consumer", order[1].Name())

	graph, err := r.Graph()
	require.NoError(t, err)
	for _, e := range graph.Edges() {
		assert.NotEqual(t, EdgeWriterOrder, e.Kind, "no writer-order edge against an implied order")
	}
}

func TestRegistryCycleDetection(t *testing.T) {
	left := NewSystemInfo("cycle.left", Access{ReadsBeforeWrite: ids(resA), Writes: ids(resB)}, nil)
	right := NewSystemInfo("cycle.right", Access{ReadsBeforeWrite: ids(resB), Writes: ids(resA)}, nil)
	bystander := NewSystemInfo("cycle.bystander", Access{ReadsAfterWrite: ids(resC)}, nil)

	r := NewSystemRegistry(bystander, left, right)

	_, _, err := r.Systems()
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	require.GreaterOrEqual(t, len(cycle.Path), 3)
	assert.Same(t, cycle.Path[0], cycle.Path[len(cycle.Path)-1])

	names := make([]string, len(cycle.Path))
	for i, info := range cycle.Path {
		names[i] = info.Name()
	}
	assert.Contains(t, names, "cycle.left")
	assert.Contains(t, names, "cycle.right")
	assert.NotContains(t, names, "cycle.bystander")
	assert.Contains(t, err.Error(), "cycle.left")

	_, err = r.Graph()
	require.ErrorAs(t, err, &cycle)
	assert.Panics(t, func() { r.MustSystems() })

	// the registry stays usable once the declaration is fixed
	r.Add(NewSystemInfo("cycle.right", Access{Writes: ids(resA)}, nil))
	order := visitAll(t, r)
	assert.Len(t, order, 3)
}

func TestRegistryWavefronts(t *testing.T) {
	r := NewSystemRegistry(
		NewSystemInfo("wave.write-a", Access{Writes: ids(resA)}, nil),
		NewSystemInfo("wave.write-b", Access{Writes: ids(resB)}, nil),
		NewSystemInfo("wave.read-a", Access{ReadsAfterWrite: ids(resA)}, nil),
		NewSystemInfo("wave.read-b", Access{ReadsAfterWrite: ids(resB)}, nil),
		NewSystemInfo("wave.read-both", Access{ReadsAfterWrite: ids(resA, resB)}, nil),
	)

	graph, err := r.Graph()
	require.NoError(t, err)
	require.NoError(t, ValidateWavefronts(graph))

	waves := graph.Wavefronts()
	require.Len(t, waves, 2)
	names := func(wave []*SystemInfo) []string {
		out := make([]string, len(wave))
		for i, info := range wave {
			out[i] = info.Name()
		}
		return out
	}
	assert.Equal(t, []string{"wave.write-a", "wave.write-b"}, names(waves[0]))
	assert.Equal(t, []string{"wave.read-a", "wave.read-b", "wave.read-both"}, names(waves[1]))

	level, ok := graph.Wavefront(SystemID(SystemIDs.Intern("wave.read-both")))
	require.True(t, ok)
	assert.Equal(t, 1, level)

	visitor, guard, err := r.Systems()
	require.NoError(t, err)
	defer guard.Release()

	info, wave, ok := visitor.Next()
	require.True(t, ok)
	assert.Equal(t, "wave.write-a", info.Name())
	assert.Equal(t, 0, wave)

	var rest []int
	for index, wave := range visitor.Wavefronts() {
		rest = append(rest, index)
		if index == 0 {
			assert.Equal(t, []string{"wave.write-b"}, names(wave))
		}
	}
	assert.Equal(t, []int{0, 1}, rest)

	_, _, ok = visitor.Next()
	assert.False(t, ok)
}

func TestValidateWavefrontsReportsConflict(t *testing.T) {
	a := NewSystemInfo("validate.a", Access{Writes: ids(resA)}, nil)
	b := NewSystemInfo("validate.b", Access{ReadsAfterWrite: ids(resA)}, nil)

	// a hand-built graph that ignores the edge between a and b
	builder := newGraphBuilder([]*SystemInfo{a, b})
	graph, err := builder.build()
	require.NoError(t, err)

	var conflict *ConflictError
	require.ErrorAs(t, ValidateWavefronts(graph), &conflict)
	assert.Equal(t, resA, conflict.Resource)
	assert.Equal(t, 0, conflict.Wavefront)
}

func TestSystemGraphExport(t *testing.T) {
	r := NewSystemRegistry(
		NewSystemInfo("export.snapshot", Access{ReadsBeforeWrite: ids(resA)}, nil),
		NewSystemInfo("export.writer-1", Access{Writes: ids(resA)}, nil),
		NewSystemInfo("export.writer-2", Access{Writes: ids(resA)}, nil),
	)
	graph, err := r.Graph()
	require.NoError(t, err)

	dot := graph.DOT()
	assert.True(t, strings.HasPrefix(dot, "digraph foreman {"))
	assert.Contains(t, dot, `label="export.snapshot"`)
	assert.Contains(t, dot, "n0 -> n1")
	assert.Contains(t, dot, `n1 -> n2 [label="test.res.a", style=dashed]`)
	assert.Contains(t, dot, "rank=same")

	mermaid := graph.Mermaid()
	assert.True(t, strings.HasPrefix(mermaid, "graph LR"))
	assert.Contains(t, mermaid, `n0["export.snapshot"]`)
	assert.Contains(t, mermaid, `n1 -.->|"test.res.a"| n2`)
	assert.Contains(t, mermaid, `n0 -->|"test.res.a"| n1`)
}

func TestRegistryReadGuardBlocksRegistration(t *testing.T) {
	r := NewSystemRegistry(NewSystemInfo("guard.first", Access{}, nil))

	_, guard, err := r.Systems()
	require.NoError(t, err)

	added := make(chan struct{})
	go func() {
		r.Add(NewSystemInfo("guard.second", Access{}, nil))
		close(added)
	}()

	select {
	case <-added:
		t.Fatal("registration completed while a read guard was held")
	case <-time.After(50 * time.Millisecond):
	}

	guard.Release()
	guard.Release()

	select {
	case <-added:
	case <-time.After(time.Second):
		t.Fatal("registration did not complete after the guard was released")
	}
	assert.Len(t, visitAll(t, r), 2)
}

func TestRegistryConcurrentReaders(t *testing.T) {
	infos := make([]*SystemInfo, 0, 32)
	for i := range 32 {
		res := ResourceIDNamed(fmt.Sprintf("test.concurrent.%d", i%4))
		infos = append(infos, NewSystemInfo(fmt.Sprintf("concurrent.%d", i), Access{Writes: ids(res)}, nil))
	}
	r := NewSystemRegistry(infos...)

	const readers = 16
	graphs := make([]*SystemGraph, readers)
	var wg sync.WaitGroup
	for i := range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			visitor, guard, err := r.Systems()
			if !assert.NoError(t, err) {
				return
			}
			defer guard.Release()
			graphs[i] = visitor.Graph()
		}()
	}
	wg.Wait()

	for i := 1; i < readers; i++ {
		assert.Same(t, graphs[0], graphs[i], "every reader observes the same snapshot")
	}
	assert.Equal(t, 8, graphs[0].Depth())
}

func TestSystemInfoFor(t *testing.T) {
	info := SystemInfoFor[*recordingSystem](Access{Writes: ids(resA, resA)})

	assert.Equal(t, "*foreman.recordingSystem", info.Name())
	assert.Equal(t, []ResourceID{resA}, info.Writes(), "duplicate ids are dropped")

	first, ok := info.New().(*recordingSystem)
	require.True(t, ok)
	second := info.New().(*recordingSystem)
	assert.NotSame(t, first, second)

	plain := SystemInfoFor[idleSystem](Access{})
	assert.IsType(t, idleSystem{}, plain.New())
}

func TestAccessConflicts(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Access
		conflict bool
	}{
		{"disjoint", Access{Writes: ids(resA)}, Access{Writes: ids(resB)}, false},
		{"shared reads", Access{ReadsAfterWrite: ids(resA)}, Access{ReadsBeforeWrite: ids(resA)}, false},
		{"write write", Access{Writes: ids(resA)}, Access{Writes: ids(resA)}, true},
		{"write read", Access{Writes: ids(resB)}, Access{ReadsAfterWrite: ids(resB)}, true},
		{"read write", Access{ReadsBeforeWrite: ids(resC)}, Access{Writes: ids(resC)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := tt.a.Conflicts(tt.b)
			assert.Equal(t, tt.conflict, got)
			_, mirrored := tt.b.Conflicts(tt.a)
			assert.Equal(t, got, mirrored)
		})
	}

	mask := Access{ReadsBeforeWrite: ids(resA), Writes: ids(resB), ReadsAfterWrite: ids(resC)}.Mask()
	assert.Equal(t, uint(3), mask.Count())
	assert.True(t, slices.Equal(
		[]bool{mask.Test(uint(resA)), mask.Test(uint(resB)), mask.Test(uint(resC))},
		[]bool{true, true, true},
	))
}
