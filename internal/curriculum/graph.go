package curriculum

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCycle is returned when the prerequisite graph is not acyclic.
var ErrCycle = errors.New("prerequisite graph has a cycle")

// Graph is the prerequisite graph. Edges point from a prerequisite to the
// topic that requires it. Prerequisites without a topic record are kept as
// bare nodes.
type Graph struct {
	names map[string]string
	succ  map[string][]string
	pred  map[string][]string
	ids   []string
}

// NodeDetail describes one node of the graph.
type NodeDetail struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	InDegree      int      `json:"indegree"`
	OutDegree     int      `json:"outdegree"`
	Prerequisites []string `json:"prerequisites"`
	Level         *int     `json:"level,omitempty"`
}

// BuildGraph builds the prerequisite graph for topics.
func BuildGraph(topics []Topic) *Graph {
	g := &Graph{
		names: make(map[string]string),
		succ:  make(map[string][]string),
		pred:  make(map[string][]string),
	}
	for _, t := range topics {
		if t.ID == "" {
			continue
		}
		g.addNode(t.ID)
		g.names[t.ID] = t.Name
	}
	for _, t := range topics {
		if t.ID == "" {
			continue
		}
		for _, p := range t.Prerequisites {
			if p == "" || p == t.ID {
				continue
			}
			g.addNode(p)
			g.addEdge(p, t.ID)
		}
	}
	sort.Strings(g.ids)
	for id := range g.succ {
		sort.Strings(g.succ[id])
		sort.Strings(g.pred[id])
	}
	return g
}

func (g *Graph) addNode(id string) {
	if _, ok := g.succ[id]; ok {
		return
	}
	g.succ[id] = nil
	g.pred[id] = nil
	g.ids = append(g.ids, id)
}

func (g *Graph) addEdge(from, to string) {
	for _, s := range g.succ[from] {
		if s == to {
			return
		}
	}
	g.succ[from] = append(g.succ[from], to)
	g.pred[to] = append(g.pred[to], from)
}

// Nodes returns all node ids sorted.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.ids...)
}

// Predecessors returns the direct prerequisites of id.
func (g *Graph) Predecessors(id string) []string {
	return append([]string(nil), g.pred[id]...)
}

// TopoOrder returns a deterministic topological order (Kahn's algorithm,
// ties broken by id). It returns ErrCycle if the graph is cyclic.
func (g *Graph) TopoOrder() ([]string, error) {
	indeg := make(map[string]int, len(g.ids))
	for _, id := range g.ids {
		indeg[id] = len(g.pred[id])
	}

	var ready []string
	for _, id := range g.ids {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]string, 0, len(g.ids))
	for len(ready) > 0 {
		sort.Strings(ready)
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, s := range g.succ[n] {
			indeg[s]--
			if indeg[s] == 0 {
				ready = append(ready, s)
			}
		}
	}

	if len(order) != len(g.ids) {
		return nil, ErrCycle
	}
	return order, nil
}

// Cycles returns one representative cycle per strongly connected component
// that contains a cycle. Each cycle starts at its smallest id.
func (g *Graph) Cycles() [][]string {
	index := 0
	indices := make(map[string]int)
	low := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var cycles [][]string

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		low[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.succ[v] {
			if _, seen := indices[w]; !seen {
				strongConnect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], indices[w])
			}
		}

		if low[v] != indices[v] {
			return
		}
		var comp []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			comp = append(comp, w)
			if w == v {
				break
			}
		}
		if len(comp) > 1 {
			cycles = append(cycles, g.cycleWithin(comp))
		}
	}

	for _, id := range g.ids {
		if _, seen := indices[id]; !seen {
			strongConnect(id)
		}
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

// cycleWithin walks a strongly connected component from its smallest member
// back to itself.
func (g *Graph) cycleWithin(comp []string) []string {
	member := make(map[string]bool, len(comp))
	for _, c := range comp {
		member[c] = true
	}
	sort.Strings(comp)
	start := comp[0]

	// BFS from start to any predecessor of start inside the component.
	parent := map[string]string{start: ""}
	queue := []string{start}
	var last string
	for len(queue) > 0 && last == "" {
		n := queue[0]
		queue = queue[1:]
		for _, s := range g.succ[n] {
			if !member[s] {
				continue
			}
			if s == start {
				last = n
				break
			}
			if _, ok := parent[s]; !ok {
				parent[s] = n
				queue = append(queue, s)
			}
		}
	}

	var rev []string
	for n := last; n != ""; n = parent[n] {
		rev = append(rev, n)
	}
	cycle := make([]string, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		cycle = append(cycle, rev[i])
	}
	return cycle
}

// Validate returns an error naming the first cycle, if any.
func (g *Graph) Validate() error {
	cycles := g.Cycles()
	if len(cycles) == 0 {
		return nil
	}
	c := cycles[0]
	return fmt.Errorf("%w: %s -> %s", ErrCycle, strings.Join(c, " -> "), c[0])
}

// Levels assigns each node a level: roots are 0, every other node is one more
// than its deepest prerequisite.
func (g *Graph) Levels() (map[string]int, error) {
	order, err := g.TopoOrder()
	if err != nil {
		return nil, err
	}
	levels := make(map[string]int, len(order))
	for _, n := range order {
		lvl := 0
		for _, p := range g.pred[n] {
			lvl = max(lvl, levels[p]+1)
		}
		levels[n] = lvl
	}
	return levels, nil
}

// Details returns every node with its degrees and prerequisites. Levels are
// attached when the graph is acyclic.
func (g *Graph) Details() []NodeDetail {
	levels, _ := g.Levels()
	out := make([]NodeDetail, 0, len(g.ids))
	for _, id := range g.ids {
		d := NodeDetail{
			ID:            id,
			Name:          g.names[id],
			InDegree:      len(g.pred[id]),
			OutDegree:     len(g.succ[id]),
			Prerequisites: g.Predecessors(id),
		}
		if d.Prerequisites == nil {
			d.Prerequisites = []string{}
		}
		if lvl, ok := levels[id]; ok {
			d.Level = &lvl
		}
		out = append(out, d)
	}
	return out
}

// RecommendNext suggests up to limit topics to study next:
//   - unmastered nodes whose prerequisites are all mastered, in topo order;
//   - otherwise, with nothing mastered, the source nodes;
//   - otherwise the shortest remaining path from a mastered node to the
//     nearest reachable unmastered node;
//   - otherwise the earliest unmastered nodes.
//
// A non-positive limit means no limit.
func (g *Graph) RecommendNext(mastered []string, limit int) ([]string, error) {
	order, err := g.TopoOrder()
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool, len(mastered))
	for _, m := range mastered {
		done[m] = true
	}

	var unlocked []string
	for _, n := range order {
		if done[n] {
			continue
		}
		ready := true
		for _, p := range g.pred[n] {
			if !done[p] {
				ready = false
				break
			}
		}
		if ready {
			unlocked = append(unlocked, n)
		}
	}
	if len(unlocked) > 0 {
		return truncate(unlocked, limit), nil
	}

	if len(done) == 0 {
		var sources []string
		for _, n := range order {
			if len(g.pred[n]) == 0 {
				sources = append(sources, n)
			}
		}
		return truncate(sources, limit), nil
	}

	masteredIDs := make([]string, 0, len(done))
	for m := range done {
		if _, ok := g.succ[m]; ok {
			masteredIDs = append(masteredIDs, m)
		}
	}
	sort.Strings(masteredIDs)

	var unmastered []string
	for _, n := range order {
		if !done[n] {
			unmastered = append(unmastered, n)
		}
	}

	var best []string
	for _, target := range unmastered {
		for _, m := range masteredIDs {
			path := g.shortestPath(m, target)
			if path == nil {
				continue
			}
			var remaining []string
			for _, p := range path {
				if !done[p] {
					remaining = append(remaining, p)
				}
			}
			if len(remaining) == 0 {
				continue
			}
			if best == nil || len(remaining) < len(best) {
				best = remaining
			}
		}
	}
	if best != nil {
		return truncate(best, limit), nil
	}

	return truncate(unmastered, limit), nil
}

// shortestPath returns the node sequence from -> to, or nil if unreachable.
func (g *Graph) shortestPath(from, to string) []string {
	if from == to {
		return []string{from}
	}
	parent := map[string]string{from: from}
	queue := []string{from}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, s := range g.succ[n] {
			if _, seen := parent[s]; seen {
				continue
			}
			parent[s] = n
			if s == to {
				var rev []string
				for c := to; c != from; c = parent[c] {
					rev = append(rev, c)
				}
				rev = append(rev, from)
				path := make([]string, len(rev))
				for i := range rev {
					path[i] = rev[len(rev)-1-i]
				}
				return path
			}
			queue = append(queue, s)
		}
	}
	return nil
}

func truncate(ids []string, limit int) []string {
	if limit > 0 && len(ids) > limit {
		return ids[:limit]
	}
	return ids
}
