// Package checkpoint snapshots execution state so workflow threads can
// be restored, inspected and forked. A checkpoint captures node states,
// variables, conversation history and progress at one point in time;
// tuples link to their predecessor, forming a per-thread history chain.
//
// Three store backends are provided: MemoryStore for tests and
// single-process use, RedisStore for shared deployments, and GormStore
// for relational persistence. Manager layers policy on top: periodic,
// on-error and milestone triggers, plus keep-last-N retention.
package checkpoint
