// Package engine compiles workflow graphs and drives their execution.
//
// Compile validates a graph up front: every cycle is enumerated, start
// nodes are checked, and unreachable nodes are reported as warnings.
// Execution then schedules nodes in dependency batches; nodes within a
// batch run concurrently through registered executors, and their
// results are applied serially through the state transition manager so
// each thread keeps a single writer. Stream exposes the same run as an
// ordered event feed, and GetNextNodes previews routing without
// touching state.
package engine
