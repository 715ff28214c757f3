package foreman

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// EdgeKind records which declaration rule produced an edge.
type EdgeKind int

const (
	// EdgeReadBeforeWrite orders a reads-before-write system ahead of a writer.
	EdgeReadBeforeWrite EdgeKind = iota
	// EdgeReadAfterWrite orders a writer ahead of a reads-after-write system.
	EdgeReadAfterWrite
	// EdgeWriterOrder orders two writers of the same resource by registration.
	EdgeWriterOrder
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeReadBeforeWrite:
		return "reads-before-write"
	case EdgeReadAfterWrite:
		return "reads-after-write"
	case EdgeWriterOrder:
		return "writer-order"
	}
	return "unknown"
}

// GraphEdge means "From runs before To".
type GraphEdge struct {
	From     *SystemInfo
	To       *SystemInfo
	Resource ResourceID
	Kind     EdgeKind
}

// SystemGraph is an immutable snapshot of the dependency graph produced by a
// registry rebuild. Nodes are kept in registration order.
type SystemGraph struct {
	nodes      []*SystemInfo
	index      map[SystemID]int
	successors []*bitset.BitSet
	edges      []GraphEdge
	wavefronts [][]int
	level      []int
}

// graphBuilder accumulates edges over node positions. Positions follow
// registration sequence, so ascending position is ascending sequence.
type graphBuilder struct {
	nodes      []*SystemInfo
	index      map[SystemID]int
	successors []*bitset.BitSet
	edges      []GraphEdge
}

func newGraphBuilder(nodes []*SystemInfo) *graphBuilder {
	b := &graphBuilder{
		nodes:      nodes,
		index:      make(map[SystemID]int, len(nodes)),
		successors: make([]*bitset.BitSet, len(nodes)),
	}
	for i, info := range nodes {
		b.index[info.ID()] = i
		b.successors[i] = bitset.New(uint(len(nodes)))
	}
	return b
}

func (b *graphBuilder) addEdge(from, to int, resource ResourceID, kind EdgeKind) {
	if from == to || b.successors[from].Test(uint(to)) {
		return
	}
	b.successors[from].Set(uint(to))
	b.edges = append(b.edges, GraphEdge{
		From:     b.nodes[from],
		To:       b.nodes[to],
		Resource: resource,
		Kind:     kind,
	})
}

func (b *graphBuilder) reachable(from, to int) bool {
	return reachable(b.successors, from, to)
}

func reachable(successors []*bitset.BitSet, from, to int) bool {
	if from == to {
		return true
	}
	visited := bitset.New(uint(len(successors)))
	visited.Set(uint(from))
	stack := []int{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for next, ok := successors[n].NextSet(0); ok; next, ok = successors[n].NextSet(next + 1) {
			if int(next) == to {
				return true
			}
			if !visited.Test(next) {
				visited.Set(next)
				stack = append(stack, int(next))
			}
		}
	}
	return false
}

// build computes wavefronts with Kahn levels. Within a level nodes keep
// registration order.
func (b *graphBuilder) build() (*SystemGraph, error) {
	n := len(b.nodes)
	inDegree := make([]int, n)
	for _, succ := range b.successors {
		for next, ok := succ.NextSet(0); ok; next, ok = succ.NextSet(next + 1) {
			inDegree[next]++
		}
	}

	level := make([]int, n)
	current := make([]int, 0)
	for i := range n {
		if inDegree[i] == 0 {
			current = append(current, i)
		}
	}

	var wavefronts [][]int
	placed := 0
	for len(current) > 0 {
		wavefronts = append(wavefronts, current)
		placed += len(current)

		next := make([]int, 0)
		for _, node := range current {
			level[node] = len(wavefronts) - 1
			succ := b.successors[node]
			for dep, ok := succ.NextSet(0); ok; dep, ok = succ.NextSet(dep + 1) {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, int(dep))
				}
			}
		}
		slices.Sort(next)
		current = next
	}

	if placed != n {
		return nil, &CycleError{Path: b.findCycle(inDegree)}
	}

	return &SystemGraph{
		nodes:      b.nodes,
		index:      b.index,
		successors: b.successors,
		edges:      b.edges,
		wavefronts: wavefronts,
		level:      level,
	}, nil
}

// findCycle walks the nodes Kahn could not place and returns one cycle, first
// node repeated at the end.
func (b *graphBuilder) findCycle(inDegree []int) []*SystemInfo {
	n := len(b.nodes)
	visited := bitset.New(uint(n))
	onPath := bitset.New(uint(n))
	path := make([]int, 0)

	var visit func(node int) []int
	visit = func(node int) []int {
		visited.Set(uint(node))
		onPath.Set(uint(node))
		path = append(path, node)

		succ := b.successors[node]
		for next, ok := succ.NextSet(0); ok; next, ok = succ.NextSet(next + 1) {
			if onPath.Test(next) {
				start := slices.Index(path, int(next))
				return append(slices.Clone(path[start:]), int(next))
			}
			if !visited.Test(next) {
				if cycle := visit(int(next)); cycle != nil {
					return cycle
				}
			}
		}

		onPath.Clear(uint(node))
		path = path[:len(path)-1]
		return nil
	}

	for i := range n {
		if inDegree[i] == 0 || visited.Test(uint(i)) {
			continue
		}
		if cycle := visit(i); cycle != nil {
			infos := make([]*SystemInfo, len(cycle))
			for j, node := range cycle {
				infos[j] = b.nodes[node]
			}
			return infos
		}
	}
	return nil
}

// Nodes returns every system in registration order.
func (g *SystemGraph) Nodes() []*SystemInfo {
	return slices.Clone(g.nodes)
}

// Edges returns every edge in insertion order.
func (g *SystemGraph) Edges() []GraphEdge {
	return slices.Clone(g.edges)
}

func (g *SystemGraph) Len() int {
	return len(g.nodes)
}

// Depth is the number of wavefronts.
func (g *SystemGraph) Depth() int {
	return len(g.wavefronts)
}

// Wavefronts groups systems that have no path between them. Every system in
// wavefront i has all its predecessors in wavefronts before i.
func (g *SystemGraph) Wavefronts() [][]*SystemInfo {
	out := make([][]*SystemInfo, len(g.wavefronts))
	for i := range g.wavefronts {
		out[i] = g.wavefront(i)
	}
	return out
}

// Wavefront returns the wavefront index of a system.
func (g *SystemGraph) Wavefront(id SystemID) (int, bool) {
	i, ok := g.index[id]
	if !ok {
		return 0, false
	}
	return g.level[i], true
}

// HasPath reports whether from must run before to.
func (g *SystemGraph) HasPath(from, to SystemID) bool {
	i, okFrom := g.index[from]
	j, okTo := g.index[to]
	if !okFrom || !okTo || i == j {
		return false
	}
	return reachable(g.successors, i, j)
}

// Order flattens the wavefronts into a single valid execution order.
func (g *SystemGraph) Order() []*SystemInfo {
	order := make([]*SystemInfo, 0, len(g.nodes))
	for i := range g.wavefronts {
		order = append(order, g.wavefront(i)...)
	}
	return order
}

func (g *SystemGraph) wavefront(i int) []*SystemInfo {
	wave := make([]*SystemInfo, len(g.wavefronts[i]))
	for j, node := range g.wavefronts[i] {
		wave[j] = g.nodes[node]
	}
	return wave
}

// DOT exports Graphviz DOT text. Systems sharing a wavefront share a rank.
func (g *SystemGraph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph foreman {\n")
	b.WriteString("  rankdir=LR;\n")
	for i, info := range g.nodes {
		b.WriteString(fmt.Sprintf("  n%d [label=\"%s\"];\n", i, escapeDOT(info.Name())))
	}
	for w, wave := range g.wavefronts {
		aliases := make([]string, len(wave))
		for j, node := range wave {
			aliases[j] = fmt.Sprintf("n%d", node)
		}
		b.WriteString(fmt.Sprintf("  { rank=same; %s; } // wavefront %d\n", strings.Join(aliases, "; "), w))
	}
	for _, e := range g.edges {
		b.WriteString(fmt.Sprintf("  n%d -> n%d [label=\"%s\"%s];\n",
			g.index[e.From.ID()], g.index[e.To.ID()], escapeDOT(e.Resource.String()), edgeStyle(e.Kind)))
	}
	b.WriteString("}\n")
	return b.String()
}

// Mermaid exports Mermaid graph text.
func (g *SystemGraph) Mermaid() string {
	var b strings.Builder
	b.WriteString("graph LR\n")
	for i, info := range g.nodes {
		b.WriteString(fmt.Sprintf("    n%d[\"%s\"]\n", i, escapeMermaid(info.Name())))
	}
	for _, e := range g.edges {
		arrow := "-->"
		if e.Kind == EdgeWriterOrder {
			arrow = "-.->"
		}
		b.WriteString(fmt.Sprintf("    n%d %s|\"%s\"| n%d\n",
			g.index[e.From.ID()], arrow, escapeMermaid(e.Resource.String()), g.index[e.To.ID()]))
	}
	return b.String()
}

func edgeStyle(kind EdgeKind) string {
	if kind == EdgeWriterOrder {
		return ", style=dashed"
	}
	return ""
}

func escapeDOT(s string) string {
	return strings.ReplaceAll(s, "\"", "\\\"")
}

func escapeMermaid(s string) string {
	return strings.ReplaceAll(s, "\"", "#quot;")
}

// ValidateWavefronts checks that no two systems sharing a wavefront conflict
// on a resource.
func ValidateWavefronts(g *SystemGraph) error {
	for w, wave := range g.wavefronts {
		for i := 0; i < len(wave); i++ {
			first := g.nodes[wave[i]]
			for j := i + 1; j < len(wave); j++ {
				second := g.nodes[wave[j]]
				if resource, ok := first.access.Conflicts(second.access); ok {
					return &ConflictError{
						Wavefront: w,
						First:     first,
						Second:    second,
						Resource:  resource,
					}
				}
			}
		}
	}
	return nil
}

// Visitor walks a graph snapshot in topological order. Each pull yields a
// system whose predecessors have all been yielded already, tagged with its
// wavefront index.
type Visitor struct {
	graph *SystemGraph
	wave  int
	pos   int
}

func newVisitor(g *SystemGraph) *Visitor {
	return &Visitor{graph: g}
}

func (v *Visitor) Graph() *SystemGraph {
	return v.graph
}

// Next returns the next system and its wavefront index. Callers running
// wavefronts in parallel must drain a wavefront before pulling past it.
func (v *Visitor) Next() (*SystemInfo, int, bool) {
	for v.wave < len(v.graph.wavefronts) {
		wave := v.graph.wavefronts[v.wave]
		if v.pos < len(wave) {
			info := v.graph.nodes[wave[v.pos]]
			v.pos++
			return info, v.wave, true
		}
		v.wave++
		v.pos = 0
	}
	return nil, 0, false
}

// All yields the remaining systems with their wavefront index.
func (v *Visitor) All() iter.Seq2[int, *SystemInfo] {
	return func(yield func(int, *SystemInfo) bool) {
		for {
			info, wave, ok := v.Next()
			if !ok || !yield(wave, info) {
				return
			}
		}
	}
}

// Wavefronts yields the remaining whole wavefronts. A partly pulled wavefront
// is yielded without the systems already returned by Next.
func (v *Visitor) Wavefronts() iter.Seq2[int, []*SystemInfo] {
	return func(yield func(int, []*SystemInfo) bool) {
		for v.wave < len(v.graph.wavefronts) {
			wave := v.graph.wavefront(v.wave)[v.pos:]
			index := v.wave
			v.wave++
			v.pos = 0
			if len(wave) > 0 && !yield(index, wave) {
				return
			}
		}
	}
}
