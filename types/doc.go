// Package types holds shared value types used across the engine:
// structured errors with unified error codes and retryability metadata.
//
// The packages graph, condition, routing, execution, checkpoint, session
// and engine all report failures as *types.Error so callers can dispatch
// on ErrorCode instead of string matching.
package types
