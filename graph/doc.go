/*
Package graph provides the workflow graph model and its analysis tools.

# Model

  - Graph — immutable aggregate owning nodes and edges by id. Structural
    edits (WithNode, WithEdge, WithoutNode, WithoutEdge) return a new
    version with Version incremented; the original is never mutated.
  - Node — a workflow step: start, end, tool, llm, condition, wait, or
    sub_workflow, each with type-specific configuration.
  - Edge — a transition: sequence, conditional, default, error, timeout,
    or custom, optionally guarded by an expression or a set of
    ComplexCondition guards with combination logic.

# Analysis

  - TopologicalSort — Kahn's algorithm; fails with CYCLE_DETECTED on
    cyclic input.
  - NodeLevels / Levels — BFS layering for batched concurrent execution.
  - CycleDetector — HasCycle, FindAllCycles (literal cycle sequences),
    StronglyConnectedComponents (Kosaraju).

# Construction

Builder offers a fluent API with validation: dangling edge references,
duplicate node/edge/condition ids, and per-type node configuration are all
reported together. Definition supports JSON and YAML round-trips.
*/
package graph
