package condition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/weft-ai/weft/types"
)

// ExpressionEvaluator evaluates a condition expression against a context.
// The engine ships a comparison evaluator; applications may inject their
// own implementation.
type ExpressionEvaluator interface {
	Evaluate(expr string, ctx *EvalContext) (any, error)
}

// CompareEvaluator is the built-in ExpressionEvaluator. It supports the
// six comparison operators ==, !=, >=, <=, >, < between two operands, with
// ${name} interpolation from edge parameters, workflow variables, and the
// current node result. This is deliberately not a scripting language.
type CompareEvaluator struct{}

// NewCompareEvaluator creates the built-in comparison evaluator.
func NewCompareEvaluator() *CompareEvaluator {
	return &CompareEvaluator{}
}

// two-char operators must be probed before their one-char prefixes.
var operators = []string{"==", "!=", ">=", "<=", ">", "<"}

// Evaluate parses "lhs op rhs" and returns the comparison result as a
// bool. An expression with no operator resolves a single operand and
// returns its truthiness. Unparsable expressions fail with
// MALFORMED_EXPRESSION.
func (e *CompareEvaluator) Evaluate(expr string, ctx *EvalContext) (any, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, types.NewError(types.ErrMalformedExpr, "empty expression")
	}

	for _, op := range operators {
		idx := strings.Index(trimmed, op)
		if idx < 0 {
			continue
		}
		lhsRaw := strings.TrimSpace(trimmed[:idx])
		rhsRaw := strings.TrimSpace(trimmed[idx+len(op):])
		if lhsRaw == "" || rhsRaw == "" {
			return nil, types.NewErrorf(types.ErrMalformedExpr, "expression %q is missing an operand", expr)
		}
		lhs, err := resolveOperand(lhsRaw, ctx)
		if err != nil {
			return nil, err
		}
		rhs, err := resolveOperand(rhsRaw, ctx)
		if err != nil {
			return nil, err
		}
		return compare(lhs, rhs, op, expr)
	}

	// Single operand: resolve and return its truthy value.
	v, err := resolveOperand(trimmed, ctx)
	if err != nil {
		return nil, err
	}
	return truthy(v), nil
}

// resolveOperand turns raw text into a value: ${name} interpolation, quoted
// strings, booleans, numbers, or a bare name looked up in the context. A
// bare name that resolves nowhere is treated as a literal string.
func resolveOperand(raw string, ctx *EvalContext) (any, error) {
	if strings.HasPrefix(raw, "${") {
		if !strings.HasSuffix(raw, "}") {
			return nil, types.NewErrorf(types.ErrMalformedExpr, "unterminated interpolation in %q", raw)
		}
		name := strings.TrimSpace(raw[2 : len(raw)-1])
		v, ok := ctx.Value(name)
		if !ok {
			return nil, nil
		}
		return v, nil
	}
	if len(raw) >= 2 {
		if (raw[0] == '\'' && raw[len(raw)-1] == '\'') || (raw[0] == '"' && raw[len(raw)-1] == '"') {
			return raw[1 : len(raw)-1], nil
		}
	}
	switch raw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null", "nil":
		return nil, nil
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n, nil
	}
	if v, ok := ctx.Value(raw); ok {
		return v, nil
	}
	return raw, nil
}

func compare(lhs, rhs any, op, expr string) (any, error) {
	lf, lNum := toFloat(lhs)
	rf, rNum := toFloat(rhs)

	switch op {
	case "==":
		if lNum && rNum {
			return lf == rf, nil
		}
		return fmt.Sprint(lhs) == fmt.Sprint(rhs), nil
	case "!=":
		if lNum && rNum {
			return lf != rf, nil
		}
		return fmt.Sprint(lhs) != fmt.Sprint(rhs), nil
	}

	// Ordering operators require numeric operands.
	if !lNum || !rNum {
		return nil, types.NewErrorf(types.ErrMalformedExpr,
			"expression %q: operator %s requires numeric operands", expr, op)
	}
	switch op {
	case ">":
		return lf > rf, nil
	case "<":
		return lf < rf, nil
	case ">=":
		return lf >= rf, nil
	case "<=":
		return lf <= rf, nil
	}
	return nil, types.NewErrorf(types.ErrMalformedExpr, "unknown operator %s", op)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "false" && t != "0"
	case float64:
		return t != 0
	case int:
		return t != 0
	}
	return true
}
