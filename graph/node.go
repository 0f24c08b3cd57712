package graph

import "time"

// NodeType defines the type of a workflow node.
type NodeType string

const (
	// NodeTypeStart marks the entry of a workflow.
	NodeTypeStart NodeType = "start"
	// NodeTypeEnd marks a terminal node.
	NodeTypeEnd NodeType = "end"
	// NodeTypeTool executes an external tool call.
	NodeTypeTool NodeType = "tool"
	// NodeTypeLLM executes an LLM completion call.
	NodeTypeLLM NodeType = "llm"
	// NodeTypeCondition performs conditional branching via node-local routing.
	NodeTypeCondition NodeType = "condition"
	// NodeTypeWait blocks on an external actor (human relay, timer).
	NodeTypeWait NodeType = "wait"
	// NodeTypeSubWorkflow executes a nested workflow as a single step.
	NodeTypeSubWorkflow NodeType = "sub_workflow"
)

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeStart, NodeTypeEnd, NodeTypeTool, NodeTypeLLM,
		NodeTypeCondition, NodeTypeWait, NodeTypeSubWorkflow:
		return true
	}
	return false
}

// CallStrategy controls how a tool node invokes its tool.
type CallStrategy string

const (
	// CallSequential invokes the tool once per transition.
	CallSequential CallStrategy = "sequential"
	// CallParallel fans a multi-argument call out concurrently.
	CallParallel CallStrategy = "parallel"
)

// ToolConfig carries tool-node specific settings.
type ToolConfig struct {
	ToolName     string        `json:"tool_name" yaml:"tool_name"`
	Timeout      time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxRetries   int           `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	CallStrategy CallStrategy  `json:"call_strategy,omitempty" yaml:"call_strategy,omitempty"`
}

// LLMConfig carries llm-node specific settings.
type LLMConfig struct {
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// WaitConfig carries wait-node specific settings. A zero Timeout means the
// wait is unbounded and must be released by an explicit cancellation.
type WaitConfig struct {
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// SubWorkflowConfig carries sub-workflow-node specific settings.
type SubWorkflowConfig struct {
	GraphID string `json:"graph_id" yaml:"graph_id"`
	// ResultKey is the variable key the nested result is merged under.
	// Defaults to "subworkflow.<node id>" when empty.
	ResultKey string `json:"result_key,omitempty" yaml:"result_key,omitempty"`
}

// RoutingConfig carries condition-node routing metadata. Either Function
// names a registered routing function, or OnTrue/OnFalse list the branch
// targets directly.
type RoutingConfig struct {
	Function string   `json:"function,omitempty" yaml:"function,omitempty"`
	OnTrue   []string `json:"on_true,omitempty" yaml:"on_true,omitempty"`
	OnFalse  []string `json:"on_false,omitempty" yaml:"on_false,omitempty"`
}

// Position is a node's placement on a visual canvas.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node represents a single step in the workflow graph. Nodes are value
// objects owned by a Graph; cross-references between nodes are always id
// lookups through the owning Graph, never pointers.
type Node struct {
	ID         string         `json:"id" yaml:"id"`
	GraphID    string         `json:"graph_id" yaml:"graph_id"`
	Type       NodeType       `json:"type" yaml:"type"`
	Name       string         `json:"name" yaml:"name"`
	Position   Position       `json:"position" yaml:"position"`
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`

	Tool        *ToolConfig        `json:"tool,omitempty" yaml:"tool,omitempty"`
	LLM         *LLMConfig         `json:"llm,omitempty" yaml:"llm,omitempty"`
	Wait        *WaitConfig        `json:"wait,omitempty" yaml:"wait,omitempty"`
	SubWorkflow *SubWorkflowConfig `json:"sub_workflow,omitempty" yaml:"sub_workflow,omitempty"`
	Routing     *RoutingConfig     `json:"routing,omitempty" yaml:"routing,omitempty"`
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	c.Properties = cloneMap(n.Properties)
	if n.Tool != nil {
		t := *n.Tool
		c.Tool = &t
	}
	if n.LLM != nil {
		l := *n.LLM
		c.LLM = &l
	}
	if n.Wait != nil {
		w := *n.Wait
		c.Wait = &w
	}
	if n.SubWorkflow != nil {
		s := *n.SubWorkflow
		c.SubWorkflow = &s
	}
	if n.Routing != nil {
		r := *n.Routing
		r.OnTrue = append([]string(nil), n.Routing.OnTrue...)
		r.OnFalse = append([]string(nil), n.Routing.OnFalse...)
		c.Routing = &r
	}
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
