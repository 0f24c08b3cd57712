package graph

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/weft-ai/weft/types"
)

// Builder provides a fluent API for constructing validated graphs.
type Builder struct {
	graph  *Graph
	logger *zap.Logger
	errs   []error
}

// NewBuilder creates a builder for a graph with the given name. The graph
// id is generated.
func NewBuilder(name string) *Builder {
	return &Builder{
		graph:  New(uuid.NewString(), name),
		logger: zap.NewNop(),
	}
}

// WithLogger sets a custom logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	if logger != nil {
		b.logger = logger.With(zap.String("component", "graph_builder"))
	}
	return b
}

// WithMetadata sets a graph metadata value.
func (b *Builder) WithMetadata(key string, value any) *Builder {
	b.graph.Metadata[key] = value
	return b
}

// WithCreatedBy records the creator id.
func (b *Builder) WithCreatedBy(creator string) *Builder {
	b.graph.CreatedBy = creator
	return b
}

// AddNode adds a node and returns a NodeBuilder for type-specific
// configuration.
func (b *Builder) AddNode(id string, nodeType NodeType) *NodeBuilder {
	node := &Node{
		ID:         id,
		GraphID:    b.graph.ID,
		Type:       nodeType,
		Name:       id,
		Properties: map[string]any{},
	}
	if _, exists := b.graph.nodes[id]; exists {
		b.errs = append(b.errs, types.NewErrorf(types.ErrDuplicateNode, "node %s already exists", id).WithNode(id))
	} else {
		b.graph.nodes[id] = node
	}
	return &NodeBuilder{node: node, parent: b}
}

// AddEdge adds a sequence edge between two nodes with a generated id.
func (b *Builder) AddEdge(from, to string) *Builder {
	return b.AddTypedEdge(fmt.Sprintf("%s->%s", from, to), EdgeTypeSequence, from, to)
}

// AddTypedEdge adds an edge with an explicit id and type.
func (b *Builder) AddTypedEdge(id string, edgeType EdgeType, from, to string) *Builder {
	if _, exists := b.graph.edges[id]; exists {
		b.errs = append(b.errs, types.NewErrorf(types.ErrDuplicateEdge, "edge %s already exists", id).WithEdge(id))
		return b
	}
	e := &Edge{ID: id, GraphID: b.graph.ID, Type: edgeType, From: from, To: to}
	b.graph.edges[id] = e
	b.graph.outgoing[from] = append(b.graph.outgoing[from], id)
	b.graph.incoming[to] = append(b.graph.incoming[to], id)
	return b
}

// AddConditionalEdge adds a conditional edge guarded by an expression.
func (b *Builder) AddConditionalEdge(id, from, to, condition string) *Builder {
	b.AddTypedEdge(id, EdgeTypeConditional, from, to)
	if e, ok := b.graph.edges[id]; ok {
		e.Condition = condition
	}
	return b
}

// EdgeBuilder returns a fluent configurator for an already-added edge.
func (b *Builder) Edge(id string) *EdgeBuilder {
	e, ok := b.graph.edges[id]
	if !ok {
		b.errs = append(b.errs, types.NewErrorf(types.ErrEdgeNotFound, "edge %s not found", id).WithEdge(id))
		e = &Edge{ID: id}
	}
	return &EdgeBuilder{edge: e, parent: b}
}

// Build validates the assembled graph and returns it. Validation reports
// every problem it finds, not just the first.
func (b *Builder) Build() (*Graph, error) {
	issues := append([]error(nil), b.errs...)
	issues = append(issues, b.validate()...)
	if len(issues) > 0 {
		err := types.NewErrorf(types.ErrValidation, "graph %s failed validation with %d issue(s)", b.graph.Name, len(issues))
		err.Cause = joinErrors(issues)
		return nil, err
	}
	b.logger.Info("graph built",
		zap.String("graph_id", b.graph.ID),
		zap.String("name", b.graph.Name),
		zap.Int("nodes", len(b.graph.nodes)),
		zap.Int("edges", len(b.graph.edges)),
	)
	return b.graph, nil
}

func (b *Builder) validate() []error {
	var issues []error
	g := b.graph

	if len(g.nodes) == 0 {
		issues = append(issues, types.NewError(types.ErrValidation, "graph has no nodes"))
		return issues
	}

	for _, e := range g.Edges() {
		if _, ok := g.nodes[e.From]; !ok {
			issues = append(issues, types.NewErrorf(types.ErrDanglingEdge, "edge %s references missing source node %s", e.ID, e.From).WithEdge(e.ID))
		}
		if _, ok := g.nodes[e.To]; !ok {
			issues = append(issues, types.NewErrorf(types.ErrDanglingEdge, "edge %s references missing target node %s", e.ID, e.To).WithEdge(e.ID))
		}
		issues = append(issues, validateConditionIDs(e)...)
	}

	for _, n := range g.Nodes() {
		issues = append(issues, validateNode(n)...)
	}

	return issues
}

// validateConditionIDs checks that condition ids are unique within an edge.
func validateConditionIDs(e *Edge) []error {
	if !e.HasComplexConditions() {
		return nil
	}
	seen := map[string]bool{}
	var issues []error
	var walk func(conds []ComplexCondition)
	walk = func(conds []ComplexCondition) {
		for _, c := range conds {
			if seen[c.ConditionID] {
				issues = append(issues, types.NewErrorf(types.ErrDuplicateCondID, "edge %s: duplicate condition id %s", e.ID, c.ConditionID).WithEdge(e.ID))
			}
			seen[c.ConditionID] = true
			walk(c.Children)
		}
	}
	walk(e.Conditions)
	return issues
}

func validateNode(n *Node) []error {
	var issues []error
	if !n.Type.Valid() {
		issues = append(issues, types.NewErrorf(types.ErrValidation, "node %s has unknown type %q", n.ID, n.Type).WithNode(n.ID))
		return issues
	}
	switch n.Type {
	case NodeTypeTool:
		if n.Tool == nil || n.Tool.ToolName == "" {
			issues = append(issues, types.NewErrorf(types.ErrValidation, "tool node %s has no tool configured", n.ID).WithNode(n.ID))
		}
	case NodeTypeLLM:
		if n.LLM == nil || n.LLM.Model == "" {
			issues = append(issues, types.NewErrorf(types.ErrValidation, "llm node %s has no model configured", n.ID).WithNode(n.ID))
		}
	case NodeTypeCondition:
		if n.Routing == nil || (n.Routing.Function == "" && len(n.Routing.OnTrue) == 0 && len(n.Routing.OnFalse) == 0) {
			issues = append(issues, types.NewErrorf(types.ErrValidation, "condition node %s has no routing configured", n.ID).WithNode(n.ID))
		}
	case NodeTypeSubWorkflow:
		if n.SubWorkflow == nil || n.SubWorkflow.GraphID == "" {
			issues = append(issues, types.NewErrorf(types.ErrValidation, "sub_workflow node %s has no nested graph configured", n.ID).WithNode(n.ID))
		}
	}
	return issues
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}

// NodeBuilder configures an individual node.
type NodeBuilder struct {
	node   *Node
	parent *Builder
}

// WithName sets a display name.
func (nb *NodeBuilder) WithName(name string) *NodeBuilder {
	nb.node.Name = name
	return nb
}

// WithPosition sets the canvas position.
func (nb *NodeBuilder) WithPosition(x, y float64) *NodeBuilder {
	nb.node.Position = Position{X: x, Y: y}
	return nb
}

// WithProperty sets a free-form property.
func (nb *NodeBuilder) WithProperty(key string, value any) *NodeBuilder {
	nb.node.Properties[key] = value
	return nb
}

// WithTool sets tool-node configuration.
func (nb *NodeBuilder) WithTool(cfg ToolConfig) *NodeBuilder {
	nb.node.Tool = &cfg
	return nb
}

// WithLLM sets llm-node configuration.
func (nb *NodeBuilder) WithLLM(cfg LLMConfig) *NodeBuilder {
	nb.node.LLM = &cfg
	return nb
}

// WithWait sets wait-node configuration.
func (nb *NodeBuilder) WithWait(cfg WaitConfig) *NodeBuilder {
	nb.node.Wait = &cfg
	return nb
}

// WithSubWorkflow sets sub-workflow-node configuration.
func (nb *NodeBuilder) WithSubWorkflow(cfg SubWorkflowConfig) *NodeBuilder {
	nb.node.SubWorkflow = &cfg
	return nb
}

// WithRouting sets condition-node routing metadata.
func (nb *NodeBuilder) WithRouting(cfg RoutingConfig) *NodeBuilder {
	nb.node.Routing = &cfg
	return nb
}

// Done completes node configuration and returns to the Builder.
func (nb *NodeBuilder) Done() *Builder {
	return nb.parent
}

// EdgeBuilder configures an individual edge.
type EdgeBuilder struct {
	edge   *Edge
	parent *Builder
}

// WithCondition sets the guard expression.
func (eb *EdgeBuilder) WithCondition(expr string) *EdgeBuilder {
	eb.edge.Condition = expr
	return eb
}

// WithWeight sets the edge weight.
func (eb *EdgeBuilder) WithWeight(w float64) *EdgeBuilder {
	eb.edge.Weight = w
	return eb
}

// WithProperty sets a free-form property.
func (eb *EdgeBuilder) WithProperty(key string, value any) *EdgeBuilder {
	if eb.edge.Properties == nil {
		eb.edge.Properties = map[string]any{}
	}
	eb.edge.Properties[key] = value
	return eb
}

// WithConditions attaches complex conditions plus their evaluation mode and
// combination logic.
func (eb *EdgeBuilder) WithConditions(mode EvaluationMode, logic CombinationLogic, conds ...ComplexCondition) *EdgeBuilder {
	eb.edge.Conditions = conds
	eb.edge.Mode = mode
	eb.edge.Combination = logic
	return eb
}

// WithParallelBatchSize sets the batch size used by parallel evaluation.
func (eb *EdgeBuilder) WithParallelBatchSize(n int) *EdgeBuilder {
	eb.edge.ParallelBatchSize = n
	return eb
}

// Done completes edge configuration and returns to the Builder.
func (eb *EdgeBuilder) Done() *Builder {
	return eb.parent
}
