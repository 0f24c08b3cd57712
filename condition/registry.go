package condition

import (
	"sync"

	"github.com/weft-ai/weft/types"
)

// RoutingFunc is a named routing predicate. It receives the evaluation
// context and decides whether its edge (or branch) is taken.
type RoutingFunc func(ctx *EvalContext) (bool, error)

// FunctionRegistry maps names to routing functions. Registries are owned
// by the compiled graph or runtime instance and injected where needed; the
// engine never consults process-wide state, so concurrent graphs can run
// with independent registries.
type FunctionRegistry struct {
	mu    sync.RWMutex
	funcs map[string]RoutingFunc
}

// NewFunctionRegistry creates an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{funcs: map[string]RoutingFunc{}}
}

// Register adds or replaces a routing function.
func (r *FunctionRegistry) Register(name string, fn RoutingFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Lookup resolves a routing function. An unresolved name is a
// configuration error, surfaced immediately rather than silently treated
// as "not satisfied".
func (r *FunctionRegistry) Lookup(name string) (RoutingFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	if !ok {
		return nil, types.NewErrorf(types.ErrUnknownFunction, "routing function %q is not registered", name)
	}
	return fn, nil
}

// Names returns the registered function names.
func (r *FunctionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	return names
}
