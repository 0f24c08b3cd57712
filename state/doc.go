// Package state holds the durable execution state of one workflow thread:
// ExecutionState with per-node records, the shared variable namespace,
// workflow progress counters, conversation context and the ordered audit
// trail, plus the NodeResult view handed to routing and condition
// evaluation.
//
// ExecutionState is not internally synchronized. Each thread owns one
// state and one cursor; callers serialize transitions per thread
// (single-writer) while distinct threads run fully in parallel.
package state
