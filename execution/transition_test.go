package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weft-ai/weft/condition"
	"github.com/weft-ai/weft/graph"
	"github.com/weft-ai/weft/routing"
	"github.com/weft-ai/weft/state"
	"github.com/weft-ai/weft/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	router := routing.NewRouter(condition.NewEvaluator(condition.NewFunctionRegistry()), nil)
	return NewManager(router, DefaultOptions(), nil)
}

func pipelineGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.NewBuilder("pipeline").
		AddNode("a", graph.NodeTypeStart).Done().
		AddNode("b", graph.NodeTypeLLM).WithLLM(graph.LLMConfig{Model: "gpt-4"}).Done().
		AddNode("c", graph.NodeTypeEnd).Done().
		AddEdge("a", "b").
		AddEdge("b", "c").
		Build()
	require.NoError(t, err)
	return g
}

func TestTransition_AdvancesCursor(t *testing.T) {
	m := newTestManager(t)
	g := pipelineGraph(t)
	st := state.New(g.ID, "t1", g.NodeCount())
	st.Schedule("a")

	tr := m.Transition(context.Background(), "a", &state.NodeResult{NodeID: "a", Success: true}, st, g)
	require.True(t, tr.Success)

	assert.Equal(t, []string{"b"}, tr.NextNodeIDs)
	assert.False(t, tr.WorkflowComplete)
	assert.Equal(t, "b", st.CurrentNode)
	assert.Equal(t, 1, st.Progress.Completed)

	ns, ok := st.NodeState("a")
	require.True(t, ok)
	assert.Equal(t, state.NodeCompleted, ns.Status)
	assert.False(t, ns.CompletedAt.IsZero())
}

func TestTransition_TerminalNodeCompletesWorkflow(t *testing.T) {
	m := newTestManager(t)
	g := pipelineGraph(t)
	st := state.New(g.ID, "t1", g.NodeCount())
	st.Schedule("c")

	tr := m.Transition(context.Background(), "c", &state.NodeResult{NodeID: "c", Success: true}, st, g)
	require.True(t, tr.Success)

	assert.True(t, tr.WorkflowComplete)
	assert.Empty(t, tr.NextNodeIDs)
	assert.Equal(t, state.ExecutionCompleted, st.Status)
}

func TestTransition_UnclaimedFailureFailsWorkflow(t *testing.T) {
	m := newTestManager(t)
	g := pipelineGraph(t)
	st := state.New(g.ID, "t1", g.NodeCount())
	st.Schedule("b")

	// No error edge leaves b, so the failure is unclaimed.
	tr := m.Transition(context.Background(), "b", &state.NodeResult{NodeID: "b", Success: false, Error: "model unavailable"}, st, g)
	require.True(t, tr.Success)

	assert.True(t, tr.WorkflowComplete)
	assert.Equal(t, state.ExecutionFailed, st.Status)
	assert.Equal(t, 1, st.Progress.Failed)

	ns, _ := st.NodeState("b")
	assert.Equal(t, state.NodeFailed, ns.Status)
	assert.Equal(t, "model unavailable", ns.Error)
}

func TestTransition_NeverScheduledIsRejected(t *testing.T) {
	m := newTestManager(t)
	g := pipelineGraph(t)
	st := state.New(g.ID, "t1", g.NodeCount())
	st.SetVariable("seed", 1)
	before := st.Clone()

	tr := m.Transition(context.Background(), "b", &state.NodeResult{NodeID: "b", Success: true}, st, g)
	require.False(t, tr.Success)
	assert.True(t, types.HasCode(tr.Error, types.ErrInvalidTransition))

	// The shared state is untouched and PreviousState mirrors it.
	assert.Equal(t, before.Status, st.Status)
	assert.Equal(t, before.Variables, st.Variables)
	assert.Equal(t, before.Variables, tr.PreviousState.Variables)
	assert.Empty(t, st.Steps)
}

func TestTransition_UnknownNodeIsRejected(t *testing.T) {
	m := newTestManager(t)
	g := pipelineGraph(t)
	st := state.New(g.ID, "t1", g.NodeCount())

	tr := m.Transition(context.Background(), "ghost", &state.NodeResult{NodeID: "ghost", Success: true}, st, g)
	require.False(t, tr.Success)
	assert.True(t, types.HasCode(tr.Error, types.ErrNodeNotFound))
}

func TestTransition_MergesResultFields(t *testing.T) {
	m := newTestManager(t)
	g := pipelineGraph(t)
	st := state.New(g.ID, "t1", g.NodeCount())
	st.Schedule("b")

	res := &state.NodeResult{
		NodeID:  "b",
		Success: true,
		Output:  map[string]any{"summary": "ok", "usage": map[string]any{"tokens": 42}},
	}
	tr := m.Transition(context.Background(), "b", res, st, g)
	require.True(t, tr.Success)

	assert.Equal(t, "ok", st.Variables["b.summary"])
	assert.Equal(t, 42, st.Variables["b.usage.tokens"])
}

func TestTransition_AppendsConversation(t *testing.T) {
	m := newTestManager(t)
	g := pipelineGraph(t)
	st := state.New(g.ID, "t1", g.NodeCount())
	st.Schedule("b")

	res := &state.NodeResult{
		NodeID:   "b",
		Success:  true,
		Prompt:   "summarize the report",
		Response: "the report says ok",
	}
	tr := m.Transition(context.Background(), "b", res, st, g)
	require.True(t, tr.Success)

	require.Len(t, st.Conversation, 1)
	assert.Equal(t, "b", st.Conversation[0].NodeID)
	assert.Equal(t, "summarize the report", st.Conversation[0].Prompt)

	// Half a pair is not recorded.
	st.Schedule("c")
	tr = m.Transition(context.Background(), "c", &state.NodeResult{NodeID: "c", Success: true, Prompt: "orphan"}, st, g)
	require.True(t, tr.Success)
	assert.Len(t, st.Conversation, 1)
}

func TestTransition_AppendsAuditTrail(t *testing.T) {
	m := newTestManager(t)
	g := pipelineGraph(t)
	st := state.New(g.ID, "t1", g.NodeCount())
	st.Schedule("a")

	tr := m.Transition(context.Background(), "a", &state.NodeResult{NodeID: "a", Success: true}, st, g)
	require.True(t, tr.Success)

	require.Len(t, st.Steps, 1)
	assert.Equal(t, "a", st.Steps[0].NodeID)
	assert.Equal(t, state.NodeCompleted, st.Steps[0].Status)
	assert.Equal(t, []string{"b"}, st.Steps[0].NextNodeIDs)
}

func TestTransition_StateUpdatesApplied(t *testing.T) {
	g, err := graph.NewBuilder("nested").
		AddNode("sub", graph.NodeTypeSubWorkflow).
		WithSubWorkflow(graph.SubWorkflowConfig{GraphID: "inner", ResultKey: "inner_result"}).Done().
		AddNode("after", graph.NodeTypeEnd).Done().
		AddEdge("sub", "after").
		Build()
	require.NoError(t, err)

	m := newTestManager(t)
	st := state.New(g.ID, "t1", g.NodeCount())
	st.Schedule("sub")

	res := &state.NodeResult{NodeID: "sub", Success: true, Output: "nested done"}
	tr := m.Transition(context.Background(), "sub", res, st, g)
	require.True(t, tr.Success)
	assert.Equal(t, "nested done", st.Variables["inner_result"])
}

func TestTransitionAll_StopsAtFirstFailure(t *testing.T) {
	m := newTestManager(t)
	g := pipelineGraph(t)
	st := state.New(g.ID, "t1", g.NodeCount())
	st.Schedule("a")

	items := []TransitionItem{
		{NodeID: "a", Result: &state.NodeResult{NodeID: "a", Success: true}},
		{NodeID: "b", Result: &state.NodeResult{NodeID: "b", Success: true}}, // never scheduled
		{NodeID: "c", Result: &state.NodeResult{NodeID: "c", Success: true}},
	}
	results := m.TransitionAll(context.Background(), items, st, g)

	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)

	// The first transition stays applied.
	assert.Equal(t, "b", st.CurrentNode)
	assert.Equal(t, 1, st.Progress.Completed)
}
