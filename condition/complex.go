package condition

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/weft-ai/weft/graph"
	"github.com/weft-ai/weft/types"
)

// Fixed confidences per condition type.
const (
	confidenceSimple   = 0.8
	confidenceFunction = 0.9
)

const defaultParallelBatch = 4

// evaluateComplex runs the multi-condition machinery for an edge: evaluate
// each enabled condition under the edge's evaluation mode, then combine
// per the edge's combination logic.
func (e *Evaluator) evaluateComplex(ctx context.Context, edge *graph.Edge, ec *EvalContext) Result {
	conds := enabledConditions(edge.Conditions)
	if len(conds) == 0 {
		return Result{Satisfied: true, Confidence: 1}
	}

	logic := edge.Combination
	if logic == "" {
		logic = graph.CombineAll
	}

	var results []Result
	switch edge.Mode {
	case graph.EvalParallel:
		results = e.evaluateParallel(ctx, conds, ec, edge.ParallelBatchSize)
	default:
		// Eager, and lazy as its documented alias: stop as soon as the
		// combination logic is decided.
		results = e.evaluateEager(ctx, conds, ec, logic)
	}

	return combine(results, conds, logic)
}

// enabledConditions filters disabled conditions and orders the rest by
// priority (higher first), then by condition id for determinism.
func enabledConditions(conds []graph.ComplexCondition) []graph.ComplexCondition {
	out := make([]graph.ComplexCondition, 0, len(conds))
	for _, c := range conds {
		if c.Enabled {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ConditionID < out[j].ConditionID
	})
	return out
}

// evaluateEager evaluates in order and short-circuits: first success under
// any, first failure under all. Weighted and custom combinations fold the
// confidence of every condition into the edge result, so they never
// short-circuit.
func (e *Evaluator) evaluateEager(ctx context.Context, conds []graph.ComplexCondition, ec *EvalContext, logic graph.CombinationLogic) []Result {
	results := make([]Result, 0, len(conds))
	for i := range conds {
		r := e.evaluateOne(ctx, &conds[i], ec)
		results = append(results, r)
		switch logic {
		case graph.CombineAny:
			if r.Satisfied {
				return results
			}
		case graph.CombineAll:
			if !r.Satisfied {
				return results
			}
		}
	}
	return results
}

// evaluateParallel evaluates batch by batch, concurrently within a batch.
// Evaluation is read-only over the context, so batches are safe to fan
// out; results are merged back in order before combination.
func (e *Evaluator) evaluateParallel(ctx context.Context, conds []graph.ComplexCondition, ec *EvalContext, batchSize int) []Result {
	if batchSize <= 0 {
		batchSize = defaultParallelBatch
	}
	results := make([]Result, len(conds))
	for start := 0; start < len(conds); start += batchSize {
		end := start + batchSize
		if end > len(conds) {
			end = len(conds)
		}
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = e.evaluateOne(gctx, &conds[i], ec)
				return nil
			})
		}
		// Workers never return errors; failures are carried per-result.
		_ = g.Wait()
	}
	return results
}

// evaluateOne evaluates a single condition. Any error or panic is caught
// and converted to not-satisfied with zero confidence so sibling
// conditions and the overall combination are unaffected.
func (e *Evaluator) evaluateOne(ctx context.Context, c *graph.ComplexCondition, ec *EvalContext) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: types.NewErrorf(types.ErrExecution, "condition %s panicked: %v", c.ConditionID, r)}
		}
	}()

	switch c.Type {
	case graph.ConditionSimple:
		v, err := e.expr.Evaluate(c.Expression, ec)
		if err != nil {
			e.logger.Debug("condition failed",
				zap.String("condition_id", c.ConditionID),
				zap.Error(err),
			)
			return Result{Err: err}
		}
		return Result{Satisfied: truthy(v), Confidence: confidenceSimple}

	case graph.ConditionComposite:
		return e.evaluateComposite(ctx, c, ec)

	case graph.ConditionFunction:
		fn, err := e.registry.Lookup(c.Function)
		if err != nil {
			return Result{Err: err}
		}
		ok, err := invoke(fn, ec)
		if err != nil {
			return Result{Err: err}
		}
		return Result{Satisfied: ok, Confidence: confidenceFunction}

	case graph.ConditionScript:
		// Script conditions are a documented no-op: never executed,
		// never satisfied.
		return Result{Err: types.NewErrorf(types.ErrScriptUnsupported, "condition %s: script conditions are not executed", c.ConditionID)}
	}

	return Result{Err: types.NewErrorf(types.ErrConfiguration, "condition %s has unknown type %q", c.ConditionID, c.Type)}
}

// evaluateComposite applies the boolean operator over the child
// conditions. Confidence is the average of the children's confidences.
func (e *Evaluator) evaluateComposite(ctx context.Context, c *graph.ComplexCondition, ec *EvalContext) Result {
	children := enabledConditions(c.Children)
	if len(children) == 0 {
		return Result{Err: types.NewErrorf(types.ErrConfiguration, "composite condition %s has no enabled children", c.ConditionID)}
	}

	childResults := make([]Result, len(children))
	sum := 0.0
	satisfiedCount := 0
	for i := range children {
		childResults[i] = e.evaluateOne(ctx, &children[i], ec)
		sum += childResults[i].Confidence
		if childResults[i].Satisfied {
			satisfiedCount++
		}
	}
	confidence := sum / float64(len(children))

	var satisfied bool
	switch c.Operator {
	case graph.OpAnd:
		satisfied = satisfiedCount == len(children)
	case graph.OpOr:
		satisfied = satisfiedCount > 0
	case graph.OpXor:
		satisfied = satisfiedCount == 1
	case graph.OpNot:
		if len(children) != 1 {
			return Result{Err: types.NewErrorf(types.ErrConfiguration, "composite condition %s: NOT requires exactly one child", c.ConditionID)}
		}
		satisfied = !childResults[0].Satisfied
	default:
		return Result{Err: types.NewErrorf(types.ErrConfiguration, "composite condition %s has unknown operator %q", c.ConditionID, c.Operator)}
	}
	return Result{Satisfied: satisfied, Confidence: confidence}
}

// combine folds individual condition results into the edge-level decision.
func combine(results []Result, conds []graph.ComplexCondition, logic graph.CombinationLogic) Result {
	switch logic {
	case graph.CombineAny:
		// First satisfied condition wins; confidence is that condition's.
		for _, r := range results {
			if r.Satisfied {
				return Result{Satisfied: true, Confidence: r.Confidence}
			}
		}
		return Result{Satisfied: false}

	case graph.CombineAll:
		// Every condition must be satisfied; confidence is the minimum.
		min := 1.0
		for _, r := range results {
			if !r.Satisfied {
				return Result{Satisfied: false, Confidence: r.Confidence}
			}
			if r.Confidence < min {
				min = r.Confidence
			}
		}
		return Result{Satisfied: true, Confidence: min}

	case graph.CombineWeighted:
		// Traversable iff the weighted confidence sum of satisfied
		// conditions is positive; confidence is that sum over the total
		// weight.
		total := 0.0
		sum := 0.0
		for i, r := range results {
			w := conds[i].Weight
			if w == 0 {
				w = 1
			}
			total += w
			if r.Satisfied {
				sum += w * r.Confidence
			}
		}
		// Unevaluated (short-circuited) conditions still count toward the
		// total weight.
		for i := len(results); i < len(conds); i++ {
			w := conds[i].Weight
			if w == 0 {
				w = 1
			}
			total += w
		}
		if total == 0 {
			return Result{Satisfied: false}
		}
		return Result{Satisfied: sum > 0, Confidence: sum / total}

	case graph.CombineCustom:
		// Any condition satisfied; confidence averages over all.
		sum := 0.0
		any := false
		for _, r := range results {
			sum += r.Confidence
			if r.Satisfied {
				any = true
			}
		}
		return Result{Satisfied: any, Confidence: sum / float64(len(conds))}
	}

	return Result{Err: types.NewErrorf(types.ErrConfiguration, "unknown combination logic %q", logic)}
}
