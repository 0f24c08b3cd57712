package condition

import (
	"github.com/weft-ai/weft/state"
)

// EvalContext is the read-only context a condition or routing function is
// evaluated against: the just-completed node's result, workflow progress,
// the shared variable namespace, every node's execution state, and the
// parameters of the edge under evaluation.
type EvalContext struct {
	Result     *state.NodeResult
	Progress   state.Progress
	Variables  map[string]any
	NodeStates map[string]*state.NodeExecutionState
	EdgeParams map[string]any
}

// NewEvalContext builds an evaluation context from an execution state and
// the result of the node that just finished.
func NewEvalContext(s *state.ExecutionState, result *state.NodeResult) *EvalContext {
	ec := &EvalContext{
		Result:     result,
		Variables:  map[string]any{},
		NodeStates: map[string]*state.NodeExecutionState{},
	}
	if s != nil {
		ec.Progress = s.Progress
		for k, v := range s.Variables {
			ec.Variables[k] = v
		}
		for id, ns := range s.NodeStates {
			ec.NodeStates[id] = ns
		}
	}
	return ec
}

// WithEdgeParams returns a shallow copy carrying the edge parameters.
func (c *EvalContext) WithEdgeParams(params map[string]any) *EvalContext {
	cp := *c
	cp.EdgeParams = params
	return &cp
}

// Value resolves a name against, in order: edge parameters, workflow
// variables, and the current node result (dotted paths allowed).
func (c *EvalContext) Value(name string) (any, bool) {
	if c.EdgeParams != nil {
		if v, ok := c.EdgeParams[name]; ok {
			return v, true
		}
	}
	if c.Variables != nil {
		if v, ok := c.Variables[name]; ok {
			return v, true
		}
	}
	if c.Result != nil {
		if v, ok := c.Result.Field(name); ok {
			return v, true
		}
	}
	return nil, false
}
