/*
Package condition decides whether an edge is traversable given the current
execution state.

An edge with no guard is always satisfied. A named routing function is
resolved through the injected FunctionRegistry; an unresolved name is a
configuration error, never a silent "not satisfied". Plain guards are
expression strings handled by an ExpressionEvaluator (the built-in
CompareEvaluator supports the six comparison operators with ${name}
interpolation).

Multi-condition edges combine individual results under a
CombinationLogic (any, all, weighted, custom) and an EvaluationMode
(eager, lazy — a documented alias of eager — or parallel, batch by
batch). Each condition yields a satisfied flag and a confidence in
[0, 1]; a single condition's error or panic is isolated to that
condition. Script conditions are never executed.
*/
package condition
