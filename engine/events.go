package engine

import (
	"time"

	"github.com/weft-ai/weft/state"
)

// EventType identifies one streamed execution event.
type EventType string

const (
	EventNodeStarted    EventType = "node_started"
	EventNodeCompleted  EventType = "node_completed"
	EventNodeFailed     EventType = "node_failed"
	EventGraphCompleted EventType = "graph_completed"
	EventGraphFailed    EventType = "graph_failed"
)

// Event is one entry in a streamed execution. Events for a single
// thread arrive in execution order; the graph-level event is always
// last.
type Event struct {
	Type       EventType      `json:"type"`
	WorkflowID string         `json:"workflow_id"`
	ThreadID   string         `json:"thread_id"`
	NodeID     string         `json:"node_id,omitempty"`
	Progress   state.Progress `json:"progress"`
	Err        error          `json:"-"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Result is the outcome of an asynchronous execution.
type Result struct {
	State *state.ExecutionState
	Err   error
}
