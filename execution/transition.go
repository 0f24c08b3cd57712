package execution

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/weft-ai/weft/graph"
	"github.com/weft-ai/weft/routing"
	"github.com/weft-ai/weft/state"
	"github.com/weft-ai/weft/types"
)

// TransitionResult reports the outcome of one state transition. On failure
// PreviousState holds the untouched pre-transition state.
type TransitionResult struct {
	Success          bool
	Error            error
	PreviousState    *state.ExecutionState
	Decision         *routing.Decision
	NextNodeIDs      []string
	WorkflowComplete bool
}

// Options tune the optional transition steps. The zero value is not
// useful; use DefaultOptions.
type Options struct {
	// MergeResultFields flattens a map-typed node output into dotted-path
	// variables under the node id.
	MergeResultFields bool
	// AppendConversation records a prompt/response pair when the result
	// carries one.
	AppendConversation bool
	// AppendAuditTrail appends an ExecutionStep per transition.
	AppendAuditTrail bool
}

// DefaultOptions enables every optional step.
func DefaultOptions() Options {
	return Options{
		MergeResultFields:  true,
		AppendConversation: true,
		AppendAuditTrail:   true,
	}
}

// Manager is the single orchestration point invoked once per completed
// node execution. It is not internally synchronized: transition calls for
// one thread must be serialized by the caller (single-writer per thread);
// distinct threads with independent states may transition in parallel.
type Manager struct {
	router *routing.Router
	opts   Options
	logger *zap.Logger
}

// NewManager creates a transition manager over the given router.
func NewManager(router *routing.Router, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		router: router,
		opts:   opts,
		logger: logger.With(zap.String("component", "transition_manager")),
	}
}

// Transition applies the completion (or failure) of nodeID to the thread
// state: update the node record, route, update workflow progress, merge
// variable and context updates, and advance the cursor. All mutation
// happens on a clone that is swapped in only on success, so any internal
// failure leaves the shared state untouched.
func (m *Manager) Transition(ctx context.Context, nodeID string, res *state.NodeResult, st *state.ExecutionState, g *graph.Graph) *TransitionResult {
	prev := st.Clone()
	work := st.Clone()

	node, ok := g.Node(nodeID)
	if !ok {
		return m.fail(prev, types.NewErrorf(types.ErrNodeNotFound, "node %s not found in graph %s", nodeID, g.ID).WithNode(nodeID))
	}

	// Step 1: update the node's execution record. A node that was never
	// scheduled cannot transition.
	ns, ok := work.NodeState(nodeID)
	if !ok {
		return m.fail(prev, types.NewErrorf(types.ErrInvalidTransition, "node %s was never scheduled", nodeID).WithNode(nodeID))
	}
	now := time.Now()
	ns.CompletedAt = now
	ns.Duration = res.Duration
	if ns.Duration == 0 && !ns.StartedAt.IsZero() {
		ns.Duration = now.Sub(ns.StartedAt)
	}
	ns.RetryCount = res.RetryCount
	if res.Success {
		ns.Status = state.NodeCompleted
		ns.Result = res.Output
		work.Progress.Completed++
	} else {
		ns.Status = state.NodeFailed
		ns.Error = res.Error
		work.Progress.Failed++
	}

	// Step 2: route.
	dec, err := m.router.Route(ctx, node, res, work, g)
	if err != nil {
		return m.fail(prev, err)
	}

	// Step 3: no next nodes means the workflow is done.
	complete := len(dec.NextNodeIDs) == 0
	if complete {
		if dec.Metadata["unclaimed_error"] == true {
			work.Status = state.ExecutionFailed
		} else {
			work.Status = state.ExecutionCompleted
		}
	}

	// Step 4: apply the router's variable updates.
	for k, v := range dec.StateUpdates {
		work.Variables[k] = v
	}

	// Step 5: optional merges.
	if m.opts.MergeResultFields && res.Success {
		for k, v := range res.Flatten(nodeID) {
			work.Variables[k] = v
		}
	}
	if m.opts.AppendConversation && res.Prompt != "" && res.Response != "" {
		work.Conversation = append(work.Conversation, state.ConversationEntry{
			NodeID:    nodeID,
			Prompt:    res.Prompt,
			Response:  res.Response,
			Timestamp: now,
		})
	}
	if m.opts.AppendAuditTrail {
		work.AppendStep(nodeID, ns.Status, dec.NextNodeIDs, ns.Duration)
	}

	// Step 6: advance the cursor. A single-cursor model: fan-out to
	// multiple next nodes needs one cursor per branch, i.e. one thread
	// per branch.
	if len(dec.NextNodeIDs) > 0 {
		work.CurrentNode = dec.NextNodeIDs[0]
	}
	work.UpdatedAt = time.Now()

	*st = *work

	m.logger.Debug("transition applied",
		zap.String("node_id", nodeID),
		zap.String("status", string(ns.Status)),
		zap.Strings("next", dec.NextNodeIDs),
		zap.Bool("workflow_complete", complete),
	)

	return &TransitionResult{
		Success:          true,
		PreviousState:    prev,
		Decision:         dec,
		NextNodeIDs:      dec.NextNodeIDs,
		WorkflowComplete: complete,
	}
}

// TransitionItem pairs a node id with its result for batch application.
type TransitionItem struct {
	NodeID string
	Result *state.NodeResult
}

// TransitionAll applies an ordered list of transitions, stopping at the
// first failure. Already-applied transitions stay applied.
func (m *Manager) TransitionAll(ctx context.Context, items []TransitionItem, st *state.ExecutionState, g *graph.Graph) []*TransitionResult {
	results := make([]*TransitionResult, 0, len(items))
	for _, item := range items {
		r := m.Transition(ctx, item.NodeID, item.Result, st, g)
		results = append(results, r)
		if !r.Success {
			break
		}
	}
	return results
}

func (m *Manager) fail(prev *state.ExecutionState, err error) *TransitionResult {
	m.logger.Warn("transition rejected", zap.Error(err))
	return &TransitionResult{Success: false, Error: err, PreviousState: prev}
}
