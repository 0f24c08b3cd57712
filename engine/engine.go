package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/weft-ai/weft/checkpoint"
	"github.com/weft-ai/weft/condition"
	"github.com/weft-ai/weft/config"
	"github.com/weft-ai/weft/execution"
	"github.com/weft-ai/weft/extension"
	"github.com/weft-ai/weft/graph"
	"github.com/weft-ai/weft/internal/metrics"
	"github.com/weft-ai/weft/routing"
	"github.com/weft-ai/weft/state"
	"github.com/weft-ai/weft/types"
)

const tracerName = "github.com/weft-ai/weft/engine"

// Engine drives graph execution: it compiles graphs, schedules node
// batches, invokes executors, and feeds results through the transition
// manager. One engine serves many threads; each Execute call owns its
// thread's state exclusively for the duration of the run.
type Engine struct {
	cfg         config.EngineConfig
	executors   *ExecutorRegistry
	evaluator   *condition.Evaluator
	transitions *execution.Manager
	checkpoints *checkpoint.Manager
	extensions  *extension.Registry
	collector   *metrics.Collector
	tracer      trace.Tracer
	logger      *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the engine tuning parameters.
func WithConfig(cfg config.EngineConfig) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithExecutors sets the executor registry.
func WithExecutors(reg *ExecutorRegistry) Option {
	return func(e *Engine) { e.executors = reg }
}

// WithEvaluator sets the condition evaluator used for routing.
func WithEvaluator(ev *condition.Evaluator) Option {
	return func(e *Engine) { e.evaluator = ev }
}

// WithCheckpoints enables checkpointing after successful transitions.
func WithCheckpoints(m *checkpoint.Manager) Option {
	return func(e *Engine) { e.checkpoints = m }
}

// WithExtensions enables lifecycle event dispatch.
func WithExtensions(reg *extension.Registry) Option {
	return func(e *Engine) { e.extensions = reg }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// New builds an engine. Without options it runs with defaults: no
// checkpointing, no extensions, no metrics, and a fresh function
// registry.
func New(opts ...Option) *Engine {
	e := &Engine{
		cfg:    config.DefaultEngineConfig(),
		tracer: otel.Tracer(tracerName),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.executors == nil {
		e.executors = NewExecutorRegistry()
	}
	if e.evaluator == nil {
		e.evaluator = condition.NewEvaluator(condition.NewFunctionRegistry(), condition.WithLogger(e.logger))
	}
	e.logger = e.logger.With(zap.String("component", "engine"))
	router := routing.NewRouter(e.evaluator, e.logger)
	e.transitions = execution.NewManager(router, execution.DefaultOptions(), e.logger)
	return e
}

// Executors returns the engine's executor registry.
func (e *Engine) Executors() *ExecutorRegistry { return e.executors }

// Functions returns the routing function registry.
func (e *Engine) Functions() *condition.FunctionRegistry { return e.evaluator.Registry() }

// Execute compiles and runs a graph to completion on one thread.
// Initial variables seed the shared namespace. The returned state is
// final; its status tells success from failure.
func (e *Engine) Execute(ctx context.Context, g *graph.Graph, threadID string, vars map[string]any) (*state.ExecutionState, error) {
	compiled, err := Compile(g)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, compiled, threadID, vars, nil)
}

// ExecuteAsync starts an execution in its own goroutine and returns a
// channel carrying the single final result.
func (e *Engine) ExecuteAsync(ctx context.Context, g *graph.Graph, threadID string, vars map[string]any) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		st, err := e.Execute(ctx, g, threadID, vars)
		out <- Result{State: st, Err: err}
	}()
	return out
}

// Stream runs a graph and emits ordered lifecycle events. The channel
// closes after the terminal graph_completed or graph_failed event.
// Compilation errors surface on the returned error, before any event.
func (e *Engine) Stream(ctx context.Context, g *graph.Graph, threadID string, vars map[string]any) (<-chan Event, error) {
	compiled, err := Compile(g)
	if err != nil {
		return nil, err
	}
	events := make(chan Event, e.cfg.StreamBufferSize)
	go func() {
		defer close(events)
		emit := func(ev Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}
		e.run(ctx, compiled, threadID, vars, emit)
	}()
	return events, nil
}

// GetNextNodes previews routing for a finished node without mutating
// state: it replays the node's recorded outcome through the router on a
// state clone and returns the targets that would be scheduled next.
func (e *Engine) GetNextNodes(ctx context.Context, g *graph.Graph, nodeID string, st *state.ExecutionState) ([]string, error) {
	node, ok := g.Node(nodeID)
	if !ok {
		return nil, types.NewErrorf(types.ErrNodeNotFound, "node %s not found in graph %s", nodeID, g.ID).WithNode(nodeID)
	}
	ns, ok := st.NodeState(nodeID)
	if !ok {
		return nil, types.NewErrorf(types.ErrInvalidTransition, "node %s has not executed", nodeID).WithNode(nodeID)
	}
	res := &state.NodeResult{
		NodeID:     nodeID,
		Success:    ns.Status == state.NodeCompleted,
		Error:      ns.Error,
		RetryCount: ns.RetryCount,
		Duration:   ns.Duration,
	}
	res.Output = ns.Result
	router := routing.NewRouter(e.evaluator, e.logger)
	decision, err := router.Route(ctx, node, res, st.Clone(), g)
	if err != nil {
		return nil, err
	}
	return decision.NextNodeIDs, nil
}

// run is the scheduling loop. Routed nodes are batched by their
// compiled dependency level; one batch executes concurrently (bounded
// by ParallelBatchSize), then its results are transitioned serially
// under the single-writer discipline before the next batch is formed.
func (e *Engine) run(ctx context.Context, compiled *CompiledGraph, threadID string, vars map[string]any, emit func(Event)) (*state.ExecutionState, error) {
	g := compiled.Graph
	for _, w := range compiled.Warnings {
		e.logger.Warn("compile warning", zap.String("workflow_id", g.ID), zap.String("warning", w))
	}

	st := state.New(g.ID, threadID, g.NodeCount())
	for k, v := range vars {
		st.SetVariable(k, v)
	}

	ctx, span := e.tracer.Start(ctx, "workflow.execute",
		trace.WithAttributes(
			attribute.String("workflow.id", g.ID),
			attribute.String("thread.id", threadID),
		))
	defer span.End()

	if e.collector != nil {
		e.collector.ExecutionStarted(g.ID)
		defer e.collector.ExecutionFinished(g.ID)
	}
	started := time.Now()

	levelOf := make(map[string]int, g.NodeCount())
	for lvl, ids := range compiled.Levels {
		for _, id := range ids {
			levelOf[id] = lvl
		}
	}

	pending := make(map[string]bool, len(compiled.StartNodes))
	for _, id := range compiled.StartNodes {
		pending[id] = true
	}
	var runErr error
	complete := false

	for len(pending) > 0 && !complete {
		if err := ctx.Err(); err != nil {
			st.Status = state.ExecutionCancelled
			runErr = types.NewError(types.ErrCancelled, "execution cancelled").WithCause(err)
			break
		}

		batch := e.nextBatch(pending, levelOf, st)
		if len(batch) == 0 {
			break
		}
		for _, id := range batch {
			delete(pending, id)
		}

		results, err := e.runBatch(ctx, g, batch, st, emit)
		if err != nil {
			st.Status = state.ExecutionFailed
			runErr = err
			break
		}

		// Every executed node transitions before a terminal transition or
		// failure stops the run; a sibling's result is never dropped.
		for _, nodeID := range batch {
			res := results[nodeID]
			tr := e.transitions.Transition(ctx, nodeID, res, st, g)
			if e.collector != nil {
				e.collector.RecordTransition(g.ID, transitionStatus(tr))
				e.recordConditionEvaluations(g.ID, tr)
			}
			if !tr.Success {
				if runErr == nil {
					st.Status = state.ExecutionFailed
					runErr = tr.Error
				}
				continue
			}

			e.emitNodeEvent(emit, st, nodeID, res)
			e.dispatch(ctx, st, nodeID, res)
			e.maybeCheckpoint(ctx, st, nodeID, res)

			for _, next := range tr.NextNodeIDs {
				pending[next] = true
			}
			if tr.WorkflowComplete {
				complete = true
			}
		}
		if runErr != nil {
			break
		}
	}

	if !st.Status.Terminal() {
		st.Status = state.ExecutionCompleted
	}
	e.finish(ctx, emit, st, span, time.Since(started), runErr)
	if runErr != nil {
		return st, runErr
	}
	if st.Status == state.ExecutionFailed {
		return st, types.NewErrorf(types.ErrExecution, "workflow %s failed at node %s", g.ID, st.CurrentNode)
	}
	return st, nil
}

// nextBatch picks the runnable pending nodes on the minimum dependency
// level. A join target routed to by one branch waits until every
// deeper-scheduled branch feeding it has executed and transitioned.
func (e *Engine) nextBatch(pending map[string]bool, levelOf map[string]int, st *state.ExecutionState) []string {
	min := -1
	for id := range pending {
		if ns, ok := st.NodeState(id); ok && ns.Status != state.NodePending {
			continue
		}
		if lvl := levelOf[id]; min == -1 || lvl < min {
			min = lvl
		}
	}
	var batch []string
	for id := range pending {
		if levelOf[id] != min {
			continue
		}
		if ns, ok := st.NodeState(id); ok && ns.Status != state.NodePending {
			continue
		}
		batch = append(batch, id)
	}
	sort.Strings(batch)
	return batch
}

// recordConditionEvaluations counts each routed edge's condition outcome.
func (e *Engine) recordConditionEvaluations(workflowID string, tr *execution.TransitionResult) {
	if tr.Decision == nil {
		return
	}
	for range tr.Decision.SatisfiedEdges {
		e.collector.RecordConditionEvaluation(workflowID, true)
	}
	for range tr.Decision.UnsatisfiedEdges {
		e.collector.RecordConditionEvaluation(workflowID, false)
	}
}

// runBatch executes one dependency batch. Scheduling happens serially
// before the executors launch; executors only read shared state.
func (e *Engine) runBatch(ctx context.Context, g *graph.Graph, batch []string, st *state.ExecutionState, emit func(Event)) (map[string]*state.NodeResult, error) {
	nodes := make([]*graph.Node, 0, len(batch))
	for _, nodeID := range batch {
		node, ok := g.Node(nodeID)
		if !ok {
			return nil, types.NewErrorf(types.ErrNodeNotFound, "node %s not found in graph %s", nodeID, g.ID).WithNode(nodeID)
		}
		st.Schedule(nodeID)
		nodes = append(nodes, node)
		if emit != nil {
			emit(Event{
				Type:       EventNodeStarted,
				WorkflowID: st.WorkflowID,
				ThreadID:   st.ThreadID,
				NodeID:     nodeID,
				Progress:   st.Progress,
				Timestamp:  time.Now(),
			})
		}
		if e.extensions != nil {
			e.extensions.Dispatch(ctx, &extension.Event{
				Type:       extension.EventNodeStarted,
				WorkflowID: st.WorkflowID,
				ThreadID:   st.ThreadID,
				NodeID:     nodeID,
			})
		}
	}

	results := make([]*state.NodeResult, len(nodes))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(e.batchLimit())
	for i, node := range nodes {
		group.Go(func() error {
			res, err := e.runNode(gctx, node, st)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*state.NodeResult, len(nodes))
	for i, node := range nodes {
		out[node.ID] = results[i]
	}
	return out, nil
}

func (e *Engine) batchLimit() int {
	if e.cfg.ParallelBatchSize > 0 {
		return e.cfg.ParallelBatchSize
	}
	return 1
}

// runNode invokes one executor with timeout and retry handling. Node
// body failures come back as unsuccessful results, not errors; only
// orchestration problems (no executor registered, cancellation) are
// returned as errors.
func (e *Engine) runNode(ctx context.Context, node *graph.Node, st *state.ExecutionState) (*state.NodeResult, error) {
	executor, err := e.executors.Resolve(node)
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "node.execute",
		trace.WithAttributes(
			attribute.String("node.id", node.ID),
			attribute.String("node.type", string(node.Type)),
		))
	defer span.End()

	timeout := e.nodeTimeout(node)
	retries := e.nodeRetries(node)
	started := time.Now()

	var res *state.NodeResult
	attempts := 0
	for {
		res, err = e.invokeOnce(ctx, executor, node, st, timeout)
		if err != nil {
			return nil, err
		}
		if res.Success || attempts >= retries || ctx.Err() != nil {
			break
		}
		attempts++
		e.logger.Debug("retrying node",
			zap.String("node_id", node.ID), zap.Int("attempt", attempts))
	}

	res.NodeID = node.ID
	res.RetryCount = attempts
	res.Duration = time.Since(started)
	if e.collector != nil {
		e.collector.RecordNodeExecution(st.WorkflowID, string(node.Type), nodeStatus(res), res.Duration)
	}
	return res, nil
}

// invokeOnce runs the executor body with panic isolation and a timeout.
// A deadline hit is recorded as a timeout failure the router can claim
// through a timeout edge.
func (e *Engine) invokeOnce(ctx context.Context, executor NodeExecutor, node *graph.Node, st *state.ExecutionState, timeout time.Duration) (res *state.NodeResult, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				res = &state.NodeResult{
					NodeID:  node.ID,
					Success: false,
					Error:   fmt.Sprintf("executor panicked: %v", rec),
				}
				err = nil
			}
		}()
		res, err = executor.Execute(ctx, node, st)
	}()

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return timeoutResult(node), nil
		}
		if ctx.Err() == context.Canceled {
			return nil, types.NewErrorf(types.ErrCancelled, "node %s cancelled", node.ID).WithNode(node.ID).WithCause(err)
		}
		// body failure is data for the router, not an engine error
		return &state.NodeResult{NodeID: node.ID, Success: false, Error: err.Error()}, nil
	}
	if res == nil {
		res = &state.NodeResult{NodeID: node.ID, Success: true}
	}
	return res, nil
}

func timeoutResult(node *graph.Node) *state.NodeResult {
	terr := types.NewErrorf(types.ErrTimeout, "node %s timed out", node.ID).WithNode(node.ID).WithRetryable(true)
	return &state.NodeResult{
		NodeID:   node.ID,
		Success:  false,
		Error:    terr.Error(),
		Metadata: map[string]any{"timeout": true},
	}
}

// nodeTimeout picks the effective timeout for a node. Wait nodes are
// unbounded unless a timeout is configured.
func (e *Engine) nodeTimeout(node *graph.Node) time.Duration {
	if node.Type == graph.NodeTypeWait {
		if node.Wait != nil && node.Wait.Timeout > 0 {
			return node.Wait.Timeout
		}
		return e.cfg.WaitTimeout
	}
	if node.Tool != nil && node.Tool.Timeout > 0 {
		return node.Tool.Timeout
	}
	return e.cfg.NodeTimeout
}

func (e *Engine) nodeRetries(node *graph.Node) int {
	if node.Type != graph.NodeTypeTool {
		return 0
	}
	if node.Tool != nil && node.Tool.MaxRetries > 0 {
		return node.Tool.MaxRetries
	}
	return e.cfg.MaxRetries
}

func (e *Engine) emitNodeEvent(emit func(Event), st *state.ExecutionState, nodeID string, res *state.NodeResult) {
	if emit == nil {
		return
	}
	evType := EventNodeCompleted
	if !res.Success {
		evType = EventNodeFailed
	}
	emit(Event{
		Type:       evType,
		WorkflowID: st.WorkflowID,
		ThreadID:   st.ThreadID,
		NodeID:     nodeID,
		Progress:   st.Progress,
		Timestamp:  time.Now(),
	})
}

func (e *Engine) dispatch(ctx context.Context, st *state.ExecutionState, nodeID string, res *state.NodeResult) {
	if e.extensions == nil {
		return
	}
	evType := extension.EventNodeCompleted
	if !res.Success {
		evType = extension.EventNodeFailed
	}
	e.extensions.Dispatch(ctx, &extension.Event{
		Type:       evType,
		WorkflowID: st.WorkflowID,
		ThreadID:   st.ThreadID,
		NodeID:     nodeID,
		Payload:    map[string]any{"error": res.Error},
	})
}

// maybeCheckpoint runs the checkpoint policy strictly after a
// successful transition, so restores never observe a half-applied
// transition.
func (e *Engine) maybeCheckpoint(ctx context.Context, st *state.ExecutionState, nodeID string, res *state.NodeResult) {
	if e.checkpoints == nil {
		return
	}
	tuple, err := e.checkpoints.MaybeCheckpoint(ctx, st, nodeID, !res.Success)
	if err != nil {
		e.logger.Warn("checkpoint failed",
			zap.String("thread_id", st.ThreadID), zap.Error(err))
		return
	}
	if tuple == nil {
		return
	}
	if e.collector != nil {
		e.collector.RecordCheckpoint(string(tuple.Checkpoint.Source))
	}
	if e.extensions != nil {
		e.extensions.Dispatch(ctx, &extension.Event{
			Type:       extension.EventCheckpointCreated,
			WorkflowID: st.WorkflowID,
			ThreadID:   st.ThreadID,
			NodeID:     nodeID,
			Payload: map[string]any{
				"checkpoint_id": tuple.Checkpoint.ID,
				"source":        string(tuple.Checkpoint.Source),
			},
		})
	}
}

func (e *Engine) finish(ctx context.Context, emit func(Event), st *state.ExecutionState, span trace.Span, elapsed time.Duration, runErr error) {
	evType := EventGraphCompleted
	extType := extension.EventGraphCompleted
	if st.Status != state.ExecutionCompleted {
		evType = EventGraphFailed
		extType = extension.EventGraphFailed
	}
	if emit != nil {
		emit(Event{
			Type:       evType,
			WorkflowID: st.WorkflowID,
			ThreadID:   st.ThreadID,
			Progress:   st.Progress,
			Err:        runErr,
			Timestamp:  time.Now(),
		})
	}
	if e.extensions != nil {
		e.extensions.Dispatch(ctx, &extension.Event{
			Type:       extType,
			WorkflowID: st.WorkflowID,
			ThreadID:   st.ThreadID,
			Payload:    map[string]any{"status": string(st.Status)},
		})
	}
	if e.collector != nil {
		e.collector.RecordWorkflowExecution(st.WorkflowID, string(st.Status), elapsed)
	}
	span.SetAttributes(attribute.String("workflow.status", string(st.Status)))
	e.logger.Info("workflow finished",
		zap.String("workflow_id", st.WorkflowID),
		zap.String("thread_id", st.ThreadID),
		zap.String("status", string(st.Status)),
		zap.Duration("elapsed", elapsed))
}

func transitionStatus(tr *execution.TransitionResult) string {
	if tr.Success {
		return "success"
	}
	return "failed"
}

func nodeStatus(res *state.NodeResult) string {
	if res.Success {
		return "completed"
	}
	return "failed"
}
