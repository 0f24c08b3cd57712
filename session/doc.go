// Package session groups workflow threads under sessions and supports
// forking a running thread into a new one. A fork copies the parent's
// variable snapshot, per-node state and conversation context at a chosen
// node; pluggable strategies (discard, freeze, replay) decide how
// in-flight node state carries over. Forks are refused when the owning
// session is deleted or not active, the parent thread is missing, or the
// session has reached its thread limit.
package session
