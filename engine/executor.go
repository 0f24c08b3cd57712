package engine

import (
	"context"
	"sync"

	"github.com/weft-ai/weft/graph"
	"github.com/weft-ai/weft/state"
	"github.com/weft-ai/weft/types"
)

// NodeExecutor runs the body of one node. The engine treats executor
// invocation as a black box: it hands over the node and the current
// state, and gets back a result or an error. Executors must honor ctx
// cancellation; blocking on external actors is allowed only here.
type NodeExecutor interface {
	Execute(ctx context.Context, node *graph.Node, st *state.ExecutionState) (*state.NodeResult, error)
}

// ExecutorFunc adapts a function to the NodeExecutor interface.
type ExecutorFunc func(ctx context.Context, node *graph.Node, st *state.ExecutionState) (*state.NodeResult, error)

// Execute implements NodeExecutor.
func (f ExecutorFunc) Execute(ctx context.Context, node *graph.Node, st *state.ExecutionState) (*state.NodeResult, error) {
	return f(ctx, node, st)
}

// ExecutorRegistry resolves the executor for a node. Per-node
// registrations take precedence over per-type ones. Start and end nodes
// fall back to a built-in no-op executor. Safe for concurrent use.
type ExecutorRegistry struct {
	mu     sync.RWMutex
	byType map[graph.NodeType]NodeExecutor
	byNode map[string]NodeExecutor
}

// NewExecutorRegistry builds an empty registry.
func NewExecutorRegistry() *ExecutorRegistry {
	return &ExecutorRegistry{
		byType: make(map[graph.NodeType]NodeExecutor),
		byNode: make(map[string]NodeExecutor),
	}
}

// RegisterType binds an executor to every node of the given type.
func (r *ExecutorRegistry) RegisterType(t graph.NodeType, ex NodeExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[t] = ex
}

// RegisterNode binds an executor to one node ID, overriding its type
// binding.
func (r *ExecutorRegistry) RegisterNode(nodeID string, ex NodeExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byNode[nodeID] = ex
}

// Resolve returns the executor for a node.
func (r *ExecutorRegistry) Resolve(node *graph.Node) (NodeExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ex, ok := r.byNode[node.ID]; ok {
		return ex, nil
	}
	if ex, ok := r.byType[node.Type]; ok {
		return ex, nil
	}
	if node.Type == graph.NodeTypeStart || node.Type == graph.NodeTypeEnd || node.Type == graph.NodeTypeCondition {
		return noopExecutor{}, nil
	}
	return nil, types.NewErrorf(types.ErrExecutorNotFound, "no executor registered for node %s (type %s)", node.ID, node.Type).WithNode(node.ID)
}

// noopExecutor completes immediately with an empty successful result.
// Start, end and condition nodes have no body of their own.
type noopExecutor struct{}

func (noopExecutor) Execute(_ context.Context, node *graph.Node, _ *state.ExecutionState) (*state.NodeResult, error) {
	return &state.NodeResult{NodeID: node.ID, Success: true}, nil
}
