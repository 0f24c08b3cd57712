package condition

import (
	"context"

	"go.uber.org/zap"

	"github.com/weft-ai/weft/graph"
	"github.com/weft-ai/weft/types"
)

// Result is the outcome of evaluating one edge or one condition.
type Result struct {
	Satisfied  bool
	Confidence float64
	Err        error
	Metadata   map[string]any
}

// Evaluator decides whether an edge is traversable given the current
// execution state.
type Evaluator struct {
	registry *FunctionRegistry
	expr     ExpressionEvaluator
	logger   *zap.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithExpressionEvaluator replaces the built-in comparison evaluator.
func WithExpressionEvaluator(expr ExpressionEvaluator) Option {
	return func(e *Evaluator) {
		e.expr = expr
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger.With(zap.String("component", "condition_evaluator"))
		}
	}
}

// NewEvaluator creates an evaluator with the given function registry.
func NewEvaluator(registry *FunctionRegistry, opts ...Option) *Evaluator {
	e := &Evaluator{
		registry: registry,
		expr:     NewCompareEvaluator(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the injected function registry.
func (e *Evaluator) Registry() *FunctionRegistry { return e.registry }

// Evaluate decides whether an edge is traversable. An edge with no guard
// is always satisfied. A named routing function takes precedence over the
// condition string; an unresolved function name is a configuration error,
// not an unsatisfied condition. Multi-condition edges go through the
// combination logic.
func (e *Evaluator) Evaluate(ctx context.Context, edge *graph.Edge, ec *EvalContext) Result {
	ec = ec.WithEdgeParams(edge.Properties)

	if edge.HasComplexConditions() {
		return e.evaluateComplex(ctx, edge, ec)
	}

	if name := edgeFunction(edge); name != "" {
		fn, err := e.registry.Lookup(name)
		if err != nil {
			return Result{Err: err}
		}
		ok, err := invoke(fn, ec)
		if err != nil {
			e.logger.Debug("routing function failed",
				zap.String("edge_id", edge.ID),
				zap.String("function", name),
				zap.Error(err),
			)
			return Result{Err: types.NewErrorf(types.ErrExecution, "routing function %q failed", name).WithCause(err).WithEdge(edge.ID)}
		}
		return Result{Satisfied: ok, Confidence: confidenceFunction}
	}

	if edge.Condition == "" {
		return Result{Satisfied: true, Confidence: 1}
	}

	v, err := e.expr.Evaluate(edge.Condition, ec)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Satisfied: truthy(v), Confidence: confidenceSimple}
}

// edgeFunction returns the routing function name declared on the edge.
func edgeFunction(edge *graph.Edge) string {
	if edge.Properties == nil {
		return ""
	}
	if name, ok := edge.Properties["function"].(string); ok {
		return name
	}
	return ""
}

// invoke calls a routing function, converting a panic into an error so a
// misbehaving function cannot take down the evaluation loop.
func invoke(fn RoutingFunc, ec *EvalContext) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = types.NewErrorf(types.ErrExecution, "routing function panicked: %v", r)
		}
	}()
	return fn(ec)
}
