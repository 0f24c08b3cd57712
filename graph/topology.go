package graph

import (
	"sort"

	"github.com/weft-ai/weft/types"
)

// TopologicalSort orders all node ids so that every edge's source precedes
// its target (Kahn's algorithm). Ties are broken by node id so the order is
// deterministic. A cyclic graph fails with CYCLE_DETECTED instead of
// returning a partial order. O(N+E).
func TopologicalSort(g *Graph) ([]string, error) {
	inDegree := make(map[string]int, g.NodeCount())
	for _, id := range g.NodeIDs() {
		inDegree[id] = 0
	}
	for _, e := range g.Edges() {
		inDegree[e.To]++
	}

	var ready []string
	for _, id := range g.NodeIDs() {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]string, 0, g.NodeCount())
	for len(ready) > 0 {
		sort.Strings(ready)
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, succ := range g.Successors(id) {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				ready = append(ready, succ)
			}
		}
	}

	if len(order) < g.NodeCount() {
		return nil, types.NewErrorf(types.ErrCycleDetected,
			"graph %s contains a cycle: sorted %d of %d nodes", g.ID, len(order), g.NodeCount())
	}
	return order, nil
}

// NodeLevels assigns each node a BFS layer: zero in-degree nodes get level
// 0, and a node's level is one more than the maximum level among the
// predecessors whose removal first brought its in-degree to zero. Fails
// with CYCLE_DETECTED on cyclic graphs.
func NodeLevels(g *Graph) (map[string]int, error) {
	inDegree := make(map[string]int, g.NodeCount())
	for _, id := range g.NodeIDs() {
		inDegree[id] = 0
	}
	for _, e := range g.Edges() {
		inDegree[e.To]++
	}

	levels := make(map[string]int, g.NodeCount())
	var frontier []string
	for _, id := range g.NodeIDs() {
		if inDegree[id] == 0 {
			levels[id] = 0
			frontier = append(frontier, id)
		}
	}

	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		for _, succ := range g.Successors(id) {
			if lv := levels[id] + 1; lv > levels[succ] {
				levels[succ] = lv
			}
			inDegree[succ]--
			if inDegree[succ] == 0 {
				frontier = append(frontier, succ)
			}
		}
	}

	if len(levels) < g.NodeCount() {
		return nil, types.NewErrorf(types.ErrCycleDetected,
			"graph %s contains a cycle: leveled %d of %d nodes", g.ID, len(levels), g.NodeCount())
	}
	return levels, nil
}

// Levels groups node ids into batches by level, level 0 first. Nodes within
// one batch have no mutual dependencies and may execute concurrently.
func Levels(g *Graph) ([][]string, error) {
	byNode, err := NodeLevels(g)
	if err != nil {
		return nil, err
	}
	max := 0
	for _, lv := range byNode {
		if lv > max {
			max = lv
		}
	}
	out := make([][]string, max+1)
	for _, id := range g.NodeIDs() {
		lv := byNode[id]
		out[lv] = append(out[lv], id)
	}
	return out, nil
}

// CycleDetector finds cycles and strongly connected components in a graph.
type CycleDetector struct {
	graph *Graph
}

// NewCycleDetector creates a detector over the given graph.
func NewCycleDetector(g *Graph) *CycleDetector {
	return &CycleDetector{graph: g}
}

// HasCycle reports whether the graph contains at least one cycle, using DFS
// with a recursion-stack set. A back-edge into the current stack counts as
// a cycle. O(N+E).
func (d *CycleDetector) HasCycle() bool {
	visited := map[string]bool{}
	onStack := map[string]bool{}

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		for _, succ := range d.graph.Successors(id) {
			if !visited[succ] {
				if dfs(succ) {
					return true
				}
			} else if onStack[succ] {
				return true
			}
		}
		onStack[id] = false
		return false
	}

	for _, id := range d.graph.NodeIDs() {
		if !visited[id] && dfs(id) {
			return true
		}
	}
	return false
}

// FindAllCycles returns every cycle found by DFS as a literal node
// sequence. On a back-edge the current DFS path is sliced from the repeated
// node, so following each sequence edge by edge returns to its start.
func (d *CycleDetector) FindAllCycles() [][]string {
	visited := map[string]bool{}
	onStack := map[string]bool{}
	var path []string
	var cycles [][]string

	var dfs func(id string)
	dfs = func(id string) {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for _, succ := range d.graph.Successors(id) {
			if !visited[succ] {
				dfs(succ)
			} else if onStack[succ] {
				// Slice the path from the repeated node to get the cycle.
				for i, n := range path {
					if n == succ {
						cycle := append([]string(nil), path[i:]...)
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}

		path = path[:len(path)-1]
		onStack[id] = false
	}

	for _, id := range d.graph.NodeIDs() {
		if !visited[id] {
			dfs(id)
		}
	}
	return cycles
}

// StronglyConnectedComponents partitions every node into exactly one
// component using Kosaraju's algorithm: a first DFS records finish order,
// then a DFS over the transposed graph in reverse finish order assigns
// membership. A node with a self-loop forms its own SCC. O(N+E).
func (d *CycleDetector) StronglyConnectedComponents() [][]string {
	g := d.graph

	// First pass: DFS finish order.
	visited := map[string]bool{}
	var finish []string
	var dfs1 func(id string)
	dfs1 = func(id string) {
		visited[id] = true
		for _, succ := range g.Successors(id) {
			if !visited[succ] {
				dfs1(succ)
			}
		}
		finish = append(finish, id)
	}
	for _, id := range g.NodeIDs() {
		if !visited[id] {
			dfs1(id)
		}
	}

	// Transposed adjacency.
	reversed := map[string][]string{}
	for _, e := range g.Edges() {
		reversed[e.To] = append(reversed[e.To], e.From)
	}

	// Second pass: DFS over the transpose in reverse finish order.
	assigned := map[string]bool{}
	var components [][]string
	var dfs2 func(id string, comp *[]string)
	dfs2 = func(id string, comp *[]string) {
		assigned[id] = true
		*comp = append(*comp, id)
		for _, pred := range reversed[id] {
			if !assigned[pred] {
				dfs2(pred, comp)
			}
		}
	}
	for i := len(finish) - 1; i >= 0; i-- {
		id := finish[i]
		if !assigned[id] {
			var comp []string
			dfs2(id, &comp)
			sort.Strings(comp)
			components = append(components, comp)
		}
	}
	return components
}
