package graph

// EdgeType defines the type of a transition between nodes.
type EdgeType string

const (
	// EdgeTypeSequence is an unconditional transition.
	EdgeTypeSequence EdgeType = "sequence"
	// EdgeTypeConditional is guarded by a condition expression or function.
	EdgeTypeConditional EdgeType = "conditional"
	// EdgeTypeDefault is taken when no conditional sibling is satisfied.
	EdgeTypeDefault EdgeType = "default"
	// EdgeTypeError is taken when the source node failed.
	EdgeTypeError EdgeType = "error"
	// EdgeTypeTimeout is taken when the source node timed out.
	EdgeTypeTimeout EdgeType = "timeout"
	// EdgeTypeCustom defers entirely to edge properties.
	EdgeTypeCustom EdgeType = "custom"
)

// Valid reports whether t is a known edge type.
func (t EdgeType) Valid() bool {
	switch t {
	case EdgeTypeSequence, EdgeTypeConditional, EdgeTypeDefault,
		EdgeTypeError, EdgeTypeTimeout, EdgeTypeCustom:
		return true
	}
	return false
}

// BoolOperator combines the children of a composite condition.
type BoolOperator string

const (
	OpAnd BoolOperator = "AND"
	OpOr  BoolOperator = "OR"
	OpNot BoolOperator = "NOT"
	OpXor BoolOperator = "XOR"
)

// ConditionType classifies a ComplexCondition.
type ConditionType string

const (
	// ConditionSimple is an expression string with parameter substitution.
	ConditionSimple ConditionType = "simple"
	// ConditionComposite nests sub-conditions under a boolean operator.
	ConditionComposite ConditionType = "composite"
	// ConditionFunction names a registered routing function.
	ConditionFunction ConditionType = "function"
	// ConditionScript is reserved and never executed. Evaluation always
	// yields not-satisfied with zero confidence.
	ConditionScript ConditionType = "script"
)

// EvaluationMode controls how a multi-condition edge is evaluated.
type EvaluationMode string

const (
	// EvalEager stops as soon as the combination logic is decided.
	EvalEager EvaluationMode = "eager"
	// EvalLazy currently behaves as eager.
	EvalLazy EvaluationMode = "lazy"
	// EvalParallel evaluates batch by batch, concurrently within a batch.
	EvalParallel EvaluationMode = "parallel"
)

// CombinationLogic decides traversability from individual condition results.
type CombinationLogic string

const (
	// CombineAny: first satisfied condition wins.
	CombineAny CombinationLogic = "any"
	// CombineAll: every condition must be satisfied.
	CombineAll CombinationLogic = "all"
	// CombineWeighted: traversable iff the weighted confidence sum of
	// satisfied conditions is positive.
	CombineWeighted CombinationLogic = "weighted"
	// CombineCustom: any condition satisfied; confidence averages over all.
	CombineCustom CombinationLogic = "custom"
)

// ComplexCondition is a single guard on a multi-condition edge. Composite
// conditions nest children; the ConditionID must be unique within the edge.
type ComplexCondition struct {
	ConditionID string             `json:"condition_id" yaml:"condition_id"`
	Type        ConditionType      `json:"type" yaml:"type"`
	Expression  string             `json:"expression,omitempty" yaml:"expression,omitempty"`
	Function    string             `json:"function,omitempty" yaml:"function,omitempty"`
	Operator    BoolOperator       `json:"operator,omitempty" yaml:"operator,omitempty"`
	Children    []ComplexCondition `json:"children,omitempty" yaml:"children,omitempty"`
	Priority    int                `json:"priority,omitempty" yaml:"priority,omitempty"`
	Weight      float64            `json:"weight,omitempty" yaml:"weight,omitempty"`
	Enabled     bool               `json:"enabled" yaml:"enabled"`
}

// Edge represents a directed transition between two nodes. From/To are node
// ids resolved against the owning Graph.
type Edge struct {
	ID         string         `json:"id" yaml:"id"`
	GraphID    string         `json:"graph_id" yaml:"graph_id"`
	Type       EdgeType       `json:"type" yaml:"type"`
	From       string         `json:"from" yaml:"from"`
	To         string         `json:"to" yaml:"to"`
	Condition  string         `json:"condition,omitempty" yaml:"condition,omitempty"`
	Weight     float64        `json:"weight,omitempty" yaml:"weight,omitempty"`
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`

	// Multi-condition extension.
	Conditions        []ComplexCondition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Mode              EvaluationMode     `json:"mode,omitempty" yaml:"mode,omitempty"`
	Combination       CombinationLogic   `json:"combination,omitempty" yaml:"combination,omitempty"`
	ParallelBatchSize int                `json:"parallel_batch_size,omitempty" yaml:"parallel_batch_size,omitempty"`
}

// HasComplexConditions reports whether the edge carries the multi-condition
// extension.
func (e *Edge) HasComplexConditions() bool {
	return len(e.Conditions) > 0
}

// Clone returns a deep copy of the edge.
func (e *Edge) Clone() *Edge {
	c := *e
	c.Properties = cloneMap(e.Properties)
	c.Conditions = cloneConditions(e.Conditions)
	return &c
}

func cloneConditions(conds []ComplexCondition) []ComplexCondition {
	if conds == nil {
		return nil
	}
	out := make([]ComplexCondition, len(conds))
	for i, cc := range conds {
		out[i] = cc
		out[i].Children = cloneConditions(cc.Children)
	}
	return out
}
