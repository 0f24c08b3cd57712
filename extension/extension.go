package extension

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType identifies an engine lifecycle event handlers can attach to.
type EventType string

const (
	EventNodeStarted       EventType = "node_started"
	EventNodeCompleted     EventType = "node_completed"
	EventNodeFailed        EventType = "node_failed"
	EventGraphCompleted    EventType = "graph_completed"
	EventGraphFailed       EventType = "graph_failed"
	EventCheckpointCreated EventType = "checkpoint_created"
	EventThreadForked      EventType = "thread_forked"
)

// Event carries the context of one lifecycle occurrence.
type Event struct {
	Type       EventType      `json:"type"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	ThreadID   string         `json:"thread_id,omitempty"`
	NodeID     string         `json:"node_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// HandlerFunc is the body of an extension handler. Errors are collected
// into HookResults and never abort the engine.
type HandlerFunc func(ctx context.Context, event *Event) error

// Handler is one registered extension. Higher priority runs first;
// disabled handlers are skipped but still reported. A nonzero Timeout
// bounds the handler's context.
type Handler struct {
	Name     string
	Priority int
	Enabled  bool
	Timeout  time.Duration
	Fn       HandlerFunc
}

// HookResult is the uniform outcome of one handler invocation.
type HookResult struct {
	HandlerName string        `json:"handler_name"`
	Event       EventType     `json:"event"`
	Skipped     bool          `json:"skipped,omitempty"`
	Duration    time.Duration `json:"duration"`
	Err         error         `json:"-"`
}

// Registry holds handlers per event type and dispatches events to them
// in priority order. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	logger   *zap.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		handlers: make(map[EventType][]Handler),
		logger:   logger.With(zap.String("component", "extension_registry")),
	}
}

// Register attaches a handler to an event type. Handlers with equal
// priority run in name order.
func (r *Registry) Register(event EventType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = append(r.handlers[event], h)
	sort.SliceStable(r.handlers[event], func(i, j int) bool {
		a, b := r.handlers[event][i], r.handlers[event][j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.Name < b.Name
	})
}

// Handlers returns the ordered handlers for an event type.
func (r *Registry) Handlers(event EventType) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handler, len(r.handlers[event]))
	copy(out, r.handlers[event])
	return out
}

// Dispatch runs every handler registered for the event's type, in
// order, and returns one HookResult per handler. A failing or panicking
// handler never stops the remaining ones.
func (r *Registry) Dispatch(ctx context.Context, event *Event) []HookResult {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	handlers := r.Handlers(event.Type)
	results := make([]HookResult, 0, len(handlers))
	for _, h := range handlers {
		results = append(results, r.invoke(ctx, h, event))
	}
	return results
}

func (r *Registry) invoke(ctx context.Context, h Handler, event *Event) HookResult {
	result := HookResult{HandlerName: h.Name, Event: event.Type}
	if !h.Enabled {
		result.Skipped = true
		return result
	}

	hctx := ctx
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	start := time.Now()
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				result.Err = fmt.Errorf("handler %s panicked: %v", h.Name, rec)
			}
		}()
		result.Err = h.Fn(hctx, event)
	}()
	result.Duration = time.Since(start)

	if result.Err != nil {
		r.logger.Warn("extension handler failed",
			zap.String("handler", h.Name),
			zap.String("event", string(event.Type)),
			zap.Error(result.Err))
	}
	return result
}
