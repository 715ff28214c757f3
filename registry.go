package foreman

import (
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/TheBitDrifter/bark"
	"golang.org/x/sync/singleflight"
)

// ResourceInfo groups the registered systems by the role they hold for one
// resource. Each list is in registration order.
type ResourceInfo struct {
	ReadsBeforeWrite []SystemID
	Writes           []SystemID
	ReadsAfterWrite  []SystemID
}

// SystemRegistry owns the registered system set and the dependency graph
// derived from it. The graph is rebuilt lazily, from scratch, on the first
// read after any registration.
type SystemRegistry struct {
	mu            sync.RWMutex
	systems       map[SystemID]*registration
	resourcesInfo map[ResourceID]*ResourceInfo
	graph         *SystemGraph
	dirty         bool
	nextSeq       uint64

	sf      singleflight.Group
	log     *slog.Logger
	metrics *Metrics
}

type registration struct {
	info *SystemInfo
	seq  uint64
}

// ReadGuard keeps a graph snapshot valid. Registrations block until every
// outstanding guard is released, so never call Add while holding one. Do not
// call Systems or Graph while holding one either: a waiting Add blocks new
// readers, and the nested read deadlocks.
type ReadGuard struct {
	mu   *sync.RWMutex
	once sync.Once
}

// Release gives up the guard. Releasing twice is a no-op.
func (g *ReadGuard) Release() {
	g.once.Do(g.mu.RUnlock)
}

const rebuildKey = "rebuild"

func newSystemRegistry() *SystemRegistry {
	return &SystemRegistry{
		systems:       make(map[SystemID]*registration),
		resourcesInfo: make(map[ResourceID]*ResourceInfo),
		dirty:         true,
		log:           Config.loggerFor("registry"),
		metrics:       Config.metrics,
	}
}

// NewSystemRegistry builds a registry from an explicit descriptor list.
func NewSystemRegistry(infos ...*SystemInfo) *SystemRegistry {
	r := newSystemRegistry()
	r.Add(infos...)
	return r
}

// Add registers systems. Registering an id that is already present replaces
// the descriptor but keeps its original registration sequence.
func (r *SystemRegistry) Add(infos ...*SystemInfo) {
	r.AddSystemInfos(slices.Values(infos))
}

// AddSystemInfos registers every descriptor in infos; a replaced id keeps its sequence.
func (r *SystemRegistry) AddSystemInfos(infos iter.Seq[*SystemInfo]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirty = true
	for info := range infos {
		if info == nil {
			continue
		}
		if existing, ok := r.systems[info.ID()]; ok {
			r.log.Debug("system replaced", "system", info.Name(), "seq", existing.seq)
			existing.info = info
			continue
		}
		r.systems[info.ID()] = &registration{info: info, seq: r.nextSeq}
		r.nextSeq++
	}
}

// Len returns the number of registered systems.
func (r *SystemRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.systems)
}

// Systems returns a visitor over the current graph together with the guard
// that keeps it valid. The graph is rebuilt first if any registration happened
// since the last build. A *CycleError is returned if it cannot be linearized.
func (r *SystemRegistry) Systems() (*Visitor, *ReadGuard, error) {
	for {
		r.mu.RLock()
		if !r.dirty {
			return newVisitor(r.graph), &ReadGuard{mu: &r.mu}, nil
		}
		r.mu.RUnlock()

		if _, err, _ := r.sf.Do(rebuildKey, r.rebuild); err != nil {
			return nil, nil, err
		}
	}
}

// MustSystems is Systems for callers that treat a cycle as fatal.
func (r *SystemRegistry) MustSystems() (*Visitor, *ReadGuard) {
	visitor, guard, err := r.Systems()
	if err != nil {
		panic(err)
	}
	return visitor, guard
}

// Graph returns the current graph snapshot. It rebuilds if needed.
func (r *SystemRegistry) Graph() (*SystemGraph, error) {
	visitor, guard, err := r.Systems()
	if err != nil {
		return nil, err
	}
	defer guard.Release()
	return visitor.Graph(), nil
}

// ResourceInfo returns a copy of the role groupings for a resource as of the
// last rebuild.
func (r *SystemRegistry) ResourceInfo(id ResourceID) (ResourceInfo, bool) {
	if _, err := r.Graph(); err != nil {
		return ResourceInfo{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.resourcesInfo[id]
	if !ok {
		return ResourceInfo{}, false
	}
	return ResourceInfo{
		ReadsBeforeWrite: slices.Clone(info.ReadsBeforeWrite),
		Writes:           slices.Clone(info.Writes),
		ReadsAfterWrite:  slices.Clone(info.ReadsAfterWrite),
	}, true
}

func (r *SystemRegistry) rebuild() (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.dirty {
		return r.graph, nil
	}

	start := time.Now()
	nodes := r.orderedSystems()
	r.resourcesInfo = collectResourceInfo(nodes)
	graph, err := buildSystemGraph(nodes, r.resourcesInfo)
	elapsed := time.Since(start)

	if err != nil {
		r.metrics.cycleDetected(elapsed)
		r.log.Error("system graph rebuild failed",
			bark.KeyOperation, "rebuild",
			bark.KeyError, err,
			"trace", traceOf(err),
		)
		return nil, err
	}

	r.graph = graph
	r.dirty = false
	r.metrics.rebuilt(graph.Depth(), elapsed)
	r.log.Debug("system graph rebuilt",
		bark.KeyOperation, "rebuild",
		"systems", graph.Len(),
		"edges", len(graph.edges),
		"wavefronts", graph.Depth(),
		bark.KeyDuration, elapsed.Milliseconds(),
	)
	return graph, nil
}

func (r *SystemRegistry) orderedSystems() []*SystemInfo {
	regs := make([]*registration, 0, len(r.systems))
	for _, reg := range r.systems {
		regs = append(regs, reg)
	}
	slices.SortFunc(regs, func(a, b *registration) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	nodes := make([]*SystemInfo, len(regs))
	for i, reg := range regs {
		nodes[i] = reg.info
	}
	return nodes
}

func collectResourceInfo(nodes []*SystemInfo) map[ResourceID]*ResourceInfo {
	infos := make(map[ResourceID]*ResourceInfo)
	get := func(id ResourceID) *ResourceInfo {
		info, ok := infos[id]
		if !ok {
			info = &ResourceInfo{}
			infos[id] = info
		}
		return info
	}
	for _, system := range nodes {
		for _, id := range system.access.ReadsBeforeWrite {
			info := get(id)
			info.ReadsBeforeWrite = append(info.ReadsBeforeWrite, system.ID())
		}
		for _, id := range system.access.Writes {
			info := get(id)
			info.Writes = append(info.Writes, system.ID())
		}
		for _, id := range system.access.ReadsAfterWrite {
			info := get(id)
			info.ReadsAfterWrite = append(info.ReadsAfterWrite, system.ID())
		}
	}
	return infos
}

// buildSystemGraph derives ordering edges from declared access. Readers before
// write precede every writer of the resource, readers after write follow every
// writer. Writers of one resource are then chained in registration order
// unless the opposite order is already implied.
func buildSystemGraph(nodes []*SystemInfo, resources map[ResourceID]*ResourceInfo) (*SystemGraph, error) {
	b := newGraphBuilder(nodes)

	for s, system := range nodes {
		for _, id := range system.access.Writes {
			info := resources[id]
			for _, reader := range info.ReadsBeforeWrite {
				b.addEdge(b.index[reader], s, id, EdgeReadBeforeWrite)
			}
			for _, reader := range info.ReadsAfterWrite {
				b.addEdge(s, b.index[reader], id, EdgeReadAfterWrite)
			}
		}
	}

	ids := make([]ResourceID, 0, len(resources))
	for id := range resources {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		writers := resources[id].Writes
		for i := 0; i < len(writers); i++ {
			first := b.index[writers[i]]
			for j := i + 1; j < len(writers); j++ {
				second := b.index[writers[j]]
				if b.reachable(second, first) {
					continue
				}
				b.addEdge(first, second, id, EdgeWriterOrder)
			}
		}
	}

	return b.build()
}
