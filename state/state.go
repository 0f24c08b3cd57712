package state

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the lifecycle status of a whole workflow execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// NodeStatus is the lifecycle status of one node execution.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
	NodeCancelled NodeStatus = "cancelled"
	NodeRetrying  NodeStatus = "retrying"
)

// NodeExecutionState records the execution of a single node within one
// thread.
type NodeExecutionState struct {
	NodeID      string         `json:"node_id"`
	Status      NodeStatus     `json:"status"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	RetryCount  int            `json:"retry_count"`
	StartedAt   time.Time      `json:"started_at,omitzero"`
	CompletedAt time.Time      `json:"completed_at,omitzero"`
	Duration    time.Duration  `json:"duration,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Snapshot returns a point-in-time copy, used for forking.
func (n *NodeExecutionState) Snapshot() *NodeExecutionState {
	c := *n
	c.Metadata = cloneAnyMap(n.Metadata)
	return &c
}

// Progress holds the workflow-level node counters.
type Progress struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Total     int `json:"total"`
}

// ConversationEntry is one prompt/response pair appended to the prompt
// context when a node result carries one.
type ConversationEntry struct {
	NodeID    string    `json:"node_id"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// Step is one entry of the ordered execution audit trail.
type Step struct {
	StepID      string        `json:"step_id"`
	NodeID      string        `json:"node_id"`
	Status      NodeStatus    `json:"status"`
	NextNodeIDs []string      `json:"next_node_ids,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// ExecutionState is the durable state of one workflow thread. One thread
// owns exactly one ExecutionState and one logical cursor (CurrentNode);
// transition calls for a single thread must be serialized by the caller.
type ExecutionState struct {
	ExecutionID  string                         `json:"execution_id"`
	WorkflowID   string                         `json:"workflow_id"`
	ThreadID     string                         `json:"thread_id"`
	Status       ExecutionStatus                `json:"status"`
	CurrentNode  string                         `json:"current_node,omitempty"`
	NodeStates   map[string]*NodeExecutionState `json:"node_states"`
	Variables    map[string]any                 `json:"variables"`
	Progress     Progress                       `json:"progress"`
	Conversation []ConversationEntry            `json:"conversation,omitempty"`
	Steps        []Step                         `json:"steps,omitempty"`
	StartedAt    time.Time                      `json:"started_at"`
	UpdatedAt    time.Time                      `json:"updated_at"`
}

// New creates a pending execution state for a workflow run. totalNodes
// seeds the progress denominator.
func New(workflowID, threadID string, totalNodes int) *ExecutionState {
	now := time.Now()
	return &ExecutionState{
		ExecutionID: uuid.NewString(),
		WorkflowID:  workflowID,
		ThreadID:    threadID,
		Status:      ExecutionPending,
		NodeStates:  map[string]*NodeExecutionState{},
		Variables:   map[string]any{},
		Progress:    Progress{Total: totalNodes},
		StartedAt:   now,
		UpdatedAt:   now,
	}
}

// NodeState returns the execution record for a node.
func (s *ExecutionState) NodeState(nodeID string) (*NodeExecutionState, bool) {
	ns, ok := s.NodeStates[nodeID]
	return ns, ok
}

// Schedule marks a node as running, creating its record if needed. A node
// must be scheduled before it can transition.
func (s *ExecutionState) Schedule(nodeID string) *NodeExecutionState {
	ns, ok := s.NodeStates[nodeID]
	if !ok {
		ns = &NodeExecutionState{NodeID: nodeID, Status: NodePending}
		s.NodeStates[nodeID] = ns
	}
	ns.Status = NodeRunning
	ns.StartedAt = time.Now()
	if s.Status == ExecutionPending {
		s.Status = ExecutionRunning
	}
	s.CurrentNode = nodeID
	s.UpdatedAt = time.Now()
	return ns
}

// SetVariable sets a workflow variable.
func (s *ExecutionState) SetVariable(key string, value any) {
	s.Variables[key] = value
	s.UpdatedAt = time.Now()
}

// GetVariable retrieves a workflow variable.
func (s *ExecutionState) GetVariable(key string) (any, bool) {
	v, ok := s.Variables[key]
	return v, ok
}

// AppendStep appends an audit-trail entry with a generated step id.
func (s *ExecutionState) AppendStep(nodeID string, status NodeStatus, nextNodeIDs []string, duration time.Duration) {
	s.Steps = append(s.Steps, Step{
		StepID:      uuid.NewString(),
		NodeID:      nodeID,
		Status:      status,
		NextNodeIDs: append([]string(nil), nextNodeIDs...),
		Duration:    duration,
		Timestamp:   time.Now(),
	})
	s.UpdatedAt = time.Now()
}

// Clone returns a deep copy of the state. The transition manager mutates a
// clone and swaps it in only on success so a failed transition leaves the
// shared state untouched.
func (s *ExecutionState) Clone() *ExecutionState {
	c := *s
	c.NodeStates = make(map[string]*NodeExecutionState, len(s.NodeStates))
	for id, ns := range s.NodeStates {
		c.NodeStates[id] = ns.Snapshot()
	}
	c.Variables = cloneAnyMap(s.Variables)
	c.Conversation = append([]ConversationEntry(nil), s.Conversation...)
	c.Steps = append([]Step(nil), s.Steps...)
	return &c
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
