package checkpoint

import (
	"time"

	"github.com/google/uuid"

	"github.com/weft-ai/weft/state"
)

// Source records why a checkpoint was taken.
type Source string

const (
	// SourceManual is an explicit application request.
	SourceManual Source = "manual"
	// SourcePeriodic is taken on a configured transition interval.
	SourcePeriodic Source = "periodic"
	// SourceOnError is taken when a node failed.
	SourceOnError Source = "on_error"
	// SourceOnMilestone is taken when the workflow reached a milestone
	// node.
	SourceOnMilestone Source = "on_milestone"
)

// Checkpoint is a persisted snapshot of one thread's execution state.
// Checkpoints are scoped strictly to a single thread; session-level views
// are derived by aggregating the session's threads. A checkpoint is
// immutable once written.
type Checkpoint struct {
	ID          string                               `json:"id"`
	ThreadID    string                               `json:"thread_id"`
	ExecutionID string                               `json:"execution_id"`
	WorkflowID  string                               `json:"workflow_id"`
	CurrentNode string                               `json:"current_node,omitempty"`
	Status      state.ExecutionStatus                `json:"status"`
	NodeStates  map[string]*state.NodeExecutionState `json:"node_states"`
	Variables   map[string]any                       `json:"variables"`
	Conversation []state.ConversationEntry           `json:"conversation,omitempty"`
	Progress    state.Progress                       `json:"progress"`
	Source      Source                               `json:"source"`
	CreatedAt   time.Time                            `json:"created_at"`
	Metadata    map[string]any                       `json:"metadata,omitempty"`
}

// Config addresses a checkpoint within a store.
type Config struct {
	ThreadID     string `json:"thread_id"`
	CheckpointID string `json:"checkpoint_id"`
	Namespace    string `json:"namespace"`
}

// Tuple pairs a checkpoint with its persistence config and an optional
// parent reference. Tuples form an append-only chain per thread; forking
// or restoring creates a new branch, never rewrites history.
type Tuple struct {
	Checkpoint *Checkpoint `json:"checkpoint"`
	Config     Config      `json:"config"`
	ParentID   string      `json:"parent_id,omitempty"`
}

// FromState snapshots a thread's execution state into a new checkpoint.
func FromState(st *state.ExecutionState, source Source) *Checkpoint {
	snap := st.Clone()
	return &Checkpoint{
		ID:           uuid.NewString(),
		ThreadID:     snap.ThreadID,
		ExecutionID:  snap.ExecutionID,
		WorkflowID:   snap.WorkflowID,
		CurrentNode:  snap.CurrentNode,
		Status:       snap.Status,
		NodeStates:   snap.NodeStates,
		Variables:    snap.Variables,
		Conversation: snap.Conversation,
		Progress:     snap.Progress,
		Source:       source,
		CreatedAt:    time.Now(),
		Metadata:     map[string]any{},
	}
}

// ToState reconstructs an execution state from the checkpoint. The
// returned state is independent of the checkpoint's own maps.
func (c *Checkpoint) ToState() *state.ExecutionState {
	st := &state.ExecutionState{
		ExecutionID: c.ExecutionID,
		WorkflowID:  c.WorkflowID,
		ThreadID:    c.ThreadID,
		Status:      c.Status,
		CurrentNode: c.CurrentNode,
		NodeStates:  map[string]*state.NodeExecutionState{},
		Variables:   map[string]any{},
		Progress:    c.Progress,
		StartedAt:   c.CreatedAt,
		UpdatedAt:   time.Now(),
	}
	for id, ns := range c.NodeStates {
		st.NodeStates[id] = ns.Snapshot()
	}
	for k, v := range c.Variables {
		st.Variables[k] = v
	}
	st.Conversation = append([]state.ConversationEntry(nil), c.Conversation...)
	return st
}
