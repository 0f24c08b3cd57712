// Package extension is a lightweight hook system for engine lifecycle
// events. Handlers register against typed events with a priority, an
// enabled flag and an optional timeout; dispatch returns one uniform
// HookResult per handler, and handler failures never interrupt the
// engine.
package extension
