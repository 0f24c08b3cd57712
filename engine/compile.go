package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/weft-ai/weft/graph"
	"github.com/weft-ai/weft/types"
)

// CompiledGraph is a validated graph with its execution order
// precomputed. Compilation is the only place cycle detection runs;
// execution trusts the compiled order.
type CompiledGraph struct {
	Graph *graph.Graph
	// Order is a deterministic topological order over all nodes.
	Order []string
	// Levels batches nodes by dependency depth; nodes within one level
	// have no path between them and may run concurrently.
	Levels [][]string
	// StartNodes are the roots execution begins from.
	StartNodes []string
	// Warnings are non-fatal findings such as unreachable nodes.
	Warnings []string
}

// Compile validates a graph for execution. All problems are collected
// and reported together rather than stopping at the first: every cycle
// is enumerated, and structural warnings (unreachable nodes, missing
// end node) are attached to the result.
func Compile(g *graph.Graph) (*CompiledGraph, error) {
	if g == nil || g.NodeCount() == 0 {
		return nil, types.NewError(types.ErrValidation, "graph has no nodes")
	}

	var issues []error

	starts := g.StartNodes()
	if len(starts) == 0 {
		issues = append(issues, types.NewErrorf(types.ErrValidation, "graph %s has no start node (every node has a predecessor)", g.ID))
	}

	detector := graph.NewCycleDetector(g)
	if detector.HasCycle() {
		for _, cycle := range detector.FindAllCycles() {
			issues = append(issues, types.NewErrorf(types.ErrCycleDetected, "cycle: %s", strings.Join(cycle, " -> ")))
		}
	}

	if len(issues) > 0 {
		return nil, types.NewErrorf(types.ErrValidation, "graph %s failed compilation with %d issue(s)", g.ID, len(issues)).
			WithCause(errors.Join(issues...))
	}

	order, err := graph.TopologicalSort(g)
	if err != nil {
		return nil, err
	}
	levels, err := graph.Levels(g)
	if err != nil {
		return nil, err
	}

	compiled := &CompiledGraph{
		Graph:      g,
		Order:      order,
		Levels:     levels,
		StartNodes: starts,
	}
	compiled.Warnings = collectWarnings(g, starts)
	return compiled, nil
}

func collectWarnings(g *graph.Graph, starts []string) []string {
	var warnings []string

	reachable := make(map[string]bool, g.NodeCount())
	queue := append([]string(nil), starts...)
	for _, id := range starts {
		reachable[id] = true
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range g.Successors(id) {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	var unreachable []string
	hasEnd := false
	for _, id := range g.NodeIDs() {
		if !reachable[id] {
			unreachable = append(unreachable, id)
		}
		if node, ok := g.Node(id); ok && node.Type == graph.NodeTypeEnd {
			hasEnd = true
		}
	}
	sort.Strings(unreachable)
	for _, id := range unreachable {
		warnings = append(warnings, fmt.Sprintf("node %s is unreachable from any start node", id))
	}
	if !hasEnd {
		warnings = append(warnings, "graph has no explicit end node; execution completes at the last sink")
	}
	return warnings
}
