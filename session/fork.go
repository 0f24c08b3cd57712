package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/weft-ai/weft/checkpoint"
	"github.com/weft-ai/weft/extension"
	"github.com/weft-ai/weft/internal/metrics"
	"github.com/weft-ai/weft/state"
	"github.com/weft-ai/weft/types"
)

// ForkStrategy decides which execution context survives a fork and how
// in-flight per-node state carries over to the child. Apply receives a
// private clone of the parent state and may mutate it freely.
type ForkStrategy interface {
	Name() string
	Apply(st *state.ExecutionState, forkNode string) *state.ExecutionState
}

// DiscardStrategy drops in-flight node records entirely. The child
// schedules those nodes from scratch with no trace of the parent's
// attempts.
type DiscardStrategy struct{}

func (DiscardStrategy) Name() string { return "discard" }

func (DiscardStrategy) Apply(st *state.ExecutionState, forkNode string) *state.ExecutionState {
	for id, ns := range st.NodeStates {
		if inFlight(ns.Status) {
			delete(st.NodeStates, id)
		}
	}
	st.CurrentNode = forkNode
	return st
}

// FreezeStrategy keeps in-flight node records but marks them cancelled,
// preserving partial results and retry counts as a frozen snapshot.
type FreezeStrategy struct{}

func (FreezeStrategy) Name() string { return "freeze" }

func (FreezeStrategy) Apply(st *state.ExecutionState, forkNode string) *state.ExecutionState {
	for _, ns := range st.NodeStates {
		if inFlight(ns.Status) {
			ns.Status = state.NodeCancelled
		}
	}
	st.CurrentNode = forkNode
	return st
}

// ReplayStrategy resets in-flight nodes to pending with retry counters
// cleared, so the child re-executes them as if first attempts.
type ReplayStrategy struct{}

func (ReplayStrategy) Name() string { return "replay" }

func (ReplayStrategy) Apply(st *state.ExecutionState, forkNode string) *state.ExecutionState {
	for _, ns := range st.NodeStates {
		if inFlight(ns.Status) {
			ns.Status = state.NodePending
			ns.RetryCount = 0
			ns.Result = nil
			ns.Error = ""
			ns.StartedAt = time.Time{}
			ns.CompletedAt = time.Time{}
			ns.Duration = 0
		}
	}
	st.CurrentNode = forkNode
	return st
}

func inFlight(s state.NodeStatus) bool {
	return s == state.NodeRunning || s == state.NodeRetrying
}

// ForkManager creates new threads from a live execution context. The
// optional checkpoint manager records the forked snapshot as the new
// thread's chain root.
type ForkManager struct {
	sessions    *Manager
	checkpoints *checkpoint.Manager
	extensions  *extension.Registry
	collector   *metrics.Collector
	logger      *zap.Logger
}

// ForkOption configures a ForkManager.
type ForkOption func(*ForkManager)

// WithForkMetrics records fork outcomes on the collector.
func WithForkMetrics(c *metrics.Collector) ForkOption {
	return func(f *ForkManager) { f.collector = c }
}

// WithForkExtensions dispatches thread_forked events on the registry.
func WithForkExtensions(reg *extension.Registry) ForkOption {
	return func(f *ForkManager) { f.extensions = reg }
}

// NewForkManager builds a fork manager. checkpoints may be nil.
func NewForkManager(sessions *Manager, checkpoints *checkpoint.Manager, logger *zap.Logger, opts ...ForkOption) *ForkManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &ForkManager{
		sessions:    sessions,
		checkpoints: checkpoints,
		logger:      logger.With(zap.String("component", "fork_manager")),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fork duplicates the parent thread's live state at forkNode into a new
// pending thread. No thread is created when the owning session is
// deleted or non-active, the parent thread is missing, or the session
// is at its thread limit.
func (f *ForkManager) Fork(ctx context.Context, sessionID, parentThreadID, forkNode string, strategy ForkStrategy) (*Thread, error) {
	if strategy == nil {
		strategy = DiscardStrategy{}
	}

	f.sessions.mu.Lock()
	sess, err := f.sessions.operable(sessionID)
	if err != nil {
		f.sessions.mu.Unlock()
		f.recordFork(strategy, "rejected")
		return nil, err
	}
	parent, ok := sess.threads[parentThreadID]
	if !ok {
		f.sessions.mu.Unlock()
		f.recordFork(strategy, "rejected")
		return nil, types.NewErrorf(types.ErrThreadNotFound, "parent thread %s not found in session %s", parentThreadID, sessionID)
	}
	if sess.MaxThreads > 0 && len(sess.threads) >= sess.MaxThreads {
		f.sessions.mu.Unlock()
		f.recordFork(strategy, "rejected")
		return nil, types.NewErrorf(types.ErrThreadLimit, "session %s is at its thread limit (%d)", sessionID, sess.MaxThreads)
	}
	if parent.State == nil {
		f.sessions.mu.Unlock()
		f.recordFork(strategy, "rejected")
		return nil, types.NewErrorf(types.ErrForkRejected, "parent thread %s has no execution state to fork", parentThreadID)
	}

	childID := uuid.NewString()
	childState := strategy.Apply(parent.State.Clone(), forkNode)
	childState.ThreadID = childID
	childState.ExecutionID = uuid.NewString()
	childState.Status = state.ExecutionPending
	childState.UpdatedAt = time.Now()

	child := &Thread{
		ID:         childID,
		SessionID:  sessionID,
		WorkflowID: parent.WorkflowID,
		Status:     state.ExecutionPending,
		State:      childState,
		CreatedAt:  time.Now(),
		Metadata: map[string]any{
			"parent_thread_id": parentThreadID,
			"fork_node":        forkNode,
			"fork_strategy":    strategy.Name(),
		},
	}
	sess.threads[child.ID] = child
	sess.UpdatedAt = time.Now()
	f.sessions.mu.Unlock()

	if f.checkpoints != nil {
		if _, err := f.checkpoints.Create(ctx, childState, checkpoint.SourceManual); err != nil {
			f.logger.Warn("failed to checkpoint forked thread",
				zap.String("thread_id", child.ID), zap.Error(err))
		}
	}

	f.recordFork(strategy, "success")
	if f.extensions != nil {
		f.extensions.Dispatch(ctx, &extension.Event{
			Type:       extension.EventThreadForked,
			WorkflowID: child.WorkflowID,
			ThreadID:   child.ID,
			NodeID:     forkNode,
			Payload: map[string]any{
				"session_id":       sessionID,
				"parent_thread_id": parentThreadID,
				"fork_strategy":    strategy.Name(),
			},
		})
	}

	f.logger.Info("thread forked",
		zap.String("session_id", sessionID),
		zap.String("parent_thread_id", parentThreadID),
		zap.String("thread_id", child.ID),
		zap.String("fork_node", forkNode),
		zap.String("strategy", strategy.Name()))
	return child, nil
}

func (f *ForkManager) recordFork(strategy ForkStrategy, status string) {
	if f.collector != nil {
		f.collector.RecordFork(strategy.Name(), status)
	}
}
