package routing

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/weft-ai/weft/condition"
	"github.com/weft-ai/weft/graph"
	"github.com/weft-ai/weft/state"
	"github.com/weft-ai/weft/types"
)

// Decision is the routing outcome for a just-executed node. Route has no
// side effects; all state changes the router wants are carried in
// StateUpdates and applied by the transition manager.
type Decision struct {
	NextNodeIDs      []string
	SatisfiedEdges   []string
	UnsatisfiedEdges []string
	StateUpdates     map[string]any
	Metadata         map[string]any
}

// Router decides the next-node set for a completed node, dispatching by
// node type.
type Router struct {
	evaluator *condition.Evaluator
	logger    *zap.Logger
}

// NewRouter creates a router over the given condition evaluator.
func NewRouter(evaluator *condition.Evaluator, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		evaluator: evaluator,
		logger:    logger.With(zap.String("component", "node_router")),
	}
}

// Route computes the routing decision for node given its result. Regular
// nodes evaluate their outgoing edges through the condition evaluator;
// condition nodes use their node-local routing metadata; sub-workflow
// nodes route like regular nodes and additionally merge their result into
// the shared variables under a dedicated key.
func (r *Router) Route(ctx context.Context, node *graph.Node, result *state.NodeResult, st *state.ExecutionState, g *graph.Graph) (*Decision, error) {
	ec := condition.NewEvalContext(st, result)

	var (
		dec *Decision
		err error
	)
	switch node.Type {
	case graph.NodeTypeCondition:
		dec, err = r.routeConditional(node, result, ec)
	case graph.NodeTypeSubWorkflow:
		dec, err = r.routeSubWorkflow(ctx, node, result, ec, g)
	default:
		dec, err = r.routeRegular(ctx, node, result, ec, g)
	}
	if err != nil {
		return nil, err
	}

	r.logger.Debug("routed node",
		zap.String("node_id", node.ID),
		zap.String("node_type", string(node.Type)),
		zap.Strings("next", dec.NextNodeIDs),
	)
	return dec, nil
}

// routeRegular batch-evaluates every outgoing edge. Error and timeout
// edges are only candidates when the node failed; the other edge types
// only when it succeeded. Zero outgoing edges means a terminal node.
func (r *Router) routeRegular(ctx context.Context, node *graph.Node, result *state.NodeResult, ec *condition.EvalContext, g *graph.Graph) (*Decision, error) {
	dec := newDecision()
	edges := g.Outgoing(node.ID)

	for _, e := range edges {
		if !edgeApplies(e, result) {
			dec.UnsatisfiedEdges = append(dec.UnsatisfiedEdges, e.ID)
			continue
		}
		res := r.evaluator.Evaluate(ctx, e, ec)
		if res.Err != nil {
			if types.IsConfiguration(res.Err) {
				return nil, res.Err
			}
			// A per-edge evaluation error makes the edge unsatisfied but
			// never aborts the sibling edges.
			r.logger.Debug("edge evaluation failed",
				zap.String("edge_id", e.ID),
				zap.Error(res.Err),
			)
			dec.UnsatisfiedEdges = append(dec.UnsatisfiedEdges, e.ID)
			continue
		}
		if res.Satisfied {
			dec.SatisfiedEdges = append(dec.SatisfiedEdges, e.ID)
			dec.addNext(e.To)
		} else {
			dec.UnsatisfiedEdges = append(dec.UnsatisfiedEdges, e.ID)
		}
	}

	// Default edges fire only when no conditional sibling was satisfied.
	if len(dec.NextNodeIDs) == 0 && result.Success {
		for _, e := range edges {
			if e.Type == graph.EdgeTypeDefault {
				dec.SatisfiedEdges = append(dec.SatisfiedEdges, e.ID)
				dec.addNext(e.To)
			}
		}
	}

	if !result.Success && len(dec.NextNodeIDs) == 0 {
		dec.Metadata["unclaimed_error"] = true
	}
	return dec, nil
}

// edgeApplies filters edges by the result disposition before evaluation.
func edgeApplies(e *graph.Edge, result *state.NodeResult) bool {
	switch e.Type {
	case graph.EdgeTypeError:
		return !result.Success
	case graph.EdgeTypeTimeout:
		return !result.Success && result.Metadata != nil && result.Metadata["timeout"] == true
	case graph.EdgeTypeDefault:
		// Handled after the conditional pass.
		return false
	default:
		return result.Success
	}
}

// routeConditional delegates to the routing metadata carried on the node
// itself rather than generic edge evaluation.
func (r *Router) routeConditional(node *graph.Node, result *state.NodeResult, ec *condition.EvalContext) (*Decision, error) {
	if node.Routing == nil {
		return nil, types.NewErrorf(types.ErrConfiguration, "condition node %s has no routing metadata", node.ID).WithNode(node.ID)
	}

	branch, err := r.conditionBranch(node, result, ec)
	if err != nil {
		return nil, err
	}

	dec := newDecision()
	targets := node.Routing.OnFalse
	if branch {
		targets = node.Routing.OnTrue
	}
	for _, id := range targets {
		dec.addNext(id)
	}
	dec.Metadata["branch"] = branch
	return dec, nil
}

// conditionBranch resolves the boolean branch for a condition node: a
// registered routing function when configured, otherwise the node's own
// boolean output, otherwise its success flag.
func (r *Router) conditionBranch(node *graph.Node, result *state.NodeResult, ec *condition.EvalContext) (bool, error) {
	if fn := node.Routing.Function; fn != "" {
		f, err := r.evaluator.Registry().Lookup(fn)
		if err != nil {
			return false, err
		}
		ok, err := f(ec)
		if err != nil {
			return false, types.NewErrorf(types.ErrExecution, "condition node %s: routing function %q failed", node.ID, fn).WithCause(err).WithNode(node.ID)
		}
		return ok, nil
	}
	if b, ok := result.Output.(bool); ok {
		return b, nil
	}
	return result.Success, nil
}

// routeSubWorkflow treats the nested workflow as a single pass-through
// step: routing follows the node's own outgoing edges, and the nested
// result is merged into the parent's variables under the configured key.
// The nested graph's edges are out of scope here.
func (r *Router) routeSubWorkflow(ctx context.Context, node *graph.Node, result *state.NodeResult, ec *condition.EvalContext, g *graph.Graph) (*Decision, error) {
	dec, err := r.routeRegular(ctx, node, result, ec, g)
	if err != nil {
		return nil, err
	}
	key := ""
	if node.SubWorkflow != nil {
		key = node.SubWorkflow.ResultKey
	}
	if key == "" {
		key = fmt.Sprintf("subworkflow.%s", node.ID)
	}
	dec.StateUpdates[key] = result.Output
	return dec, nil
}

func newDecision() *Decision {
	return &Decision{
		StateUpdates: map[string]any{},
		Metadata:     map[string]any{},
	}
}

// addNext appends a target node id, de-duplicating.
func (d *Decision) addNext(nodeID string) {
	for _, id := range d.NextNodeIDs {
		if id == nodeID {
			return
		}
	}
	d.NextNodeIDs = append(d.NextNodeIDs, nodeID)
}
