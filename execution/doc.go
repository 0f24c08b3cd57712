// Package execution orchestrates state transitions: once per completed
// node the Manager updates the node's record, invokes the router, updates
// workflow-level progress, merges variable and conversation updates, and
// advances the execution cursor. Ordering is fixed: node-state update
// precedes routing, routing precedes workflow-state update.
package execution
