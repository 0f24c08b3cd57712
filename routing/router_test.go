package routing

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weft-ai/weft/condition"
	"github.com/weft-ai/weft/graph"
	"github.com/weft-ai/weft/state"
	"github.com/weft-ai/weft/types"
)

func newTestRouter() *Router {
	return NewRouter(condition.NewEvaluator(condition.NewFunctionRegistry()), nil)
}

func branchGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.NewBuilder("branching").
		AddNode("classify", graph.NodeTypeLLM).
		WithLLM(graph.LLMConfig{Model: "gpt-4"}).Done().
		AddNode("positive", graph.NodeTypeEnd).Done().
		AddNode("negative", graph.NodeTypeEnd).Done().
		AddConditionalEdge("to-pos", "classify", "positive", "label == 'positive'").
		AddConditionalEdge("to-neg", "classify", "negative", "label == 'negative'").
		Build()
	require.NoError(t, err)
	return g
}

func TestRoute_OneSatisfiedEdge(t *testing.T) {
	r := newTestRouter()
	g := branchGraph(t)
	st := state.New(g.ID, "t1", g.NodeCount())
	node, _ := g.Node("classify")

	res := &state.NodeResult{
		NodeID:  "classify",
		Success: true,
		Output:  map[string]any{"label": "positive"},
	}
	dec, err := r.Route(context.Background(), node, res, st, g)
	require.NoError(t, err)

	assert.Equal(t, []string{"positive"}, dec.NextNodeIDs)
	assert.Equal(t, []string{"to-pos"}, dec.SatisfiedEdges)
	assert.Equal(t, []string{"to-neg"}, dec.UnsatisfiedEdges)
}

func TestRoute_TerminalNodeHasNoNext(t *testing.T) {
	r := newTestRouter()
	g := branchGraph(t)
	st := state.New(g.ID, "t1", g.NodeCount())
	node, _ := g.Node("positive")

	dec, err := r.Route(context.Background(), node, &state.NodeResult{NodeID: "positive", Success: true}, st, g)
	require.NoError(t, err)
	assert.Empty(t, dec.NextNodeIDs)
	assert.NotContains(t, dec.Metadata, "unclaimed_error")
}

func TestRoute_ErrorEdgeClaimsFailure(t *testing.T) {
	g, err := graph.NewBuilder("recovery").
		AddNode("fetch", graph.NodeTypeTool).
		WithTool(graph.ToolConfig{ToolName: "http_get"}).Done().
		AddNode("done", graph.NodeTypeEnd).Done().
		AddNode("fallback", graph.NodeTypeEnd).Done().
		AddEdge("fetch", "done").
		AddTypedEdge("on-error", graph.EdgeTypeError, "fetch", "fallback").
		Build()
	require.NoError(t, err)

	r := newTestRouter()
	st := state.New(g.ID, "t1", g.NodeCount())
	node, _ := g.Node("fetch")

	// Failure: only the error edge applies.
	dec, err := r.Route(context.Background(), node, &state.NodeResult{NodeID: "fetch", Success: false, Error: "503"}, st, g)
	require.NoError(t, err)
	assert.Equal(t, []string{"fallback"}, dec.NextNodeIDs)
	assert.NotContains(t, dec.Metadata, "unclaimed_error")

	// Success: the sequence edge applies, the error edge does not.
	dec, err = r.Route(context.Background(), node, &state.NodeResult{NodeID: "fetch", Success: true}, st, g)
	require.NoError(t, err)
	assert.Equal(t, []string{"done"}, dec.NextNodeIDs)
}

func TestRoute_UnclaimedFailureIsFlagged(t *testing.T) {
	g := branchGraph(t)
	r := newTestRouter()
	st := state.New(g.ID, "t1", g.NodeCount())
	node, _ := g.Node("classify")

	dec, err := r.Route(context.Background(), node, &state.NodeResult{NodeID: "classify", Success: false, Error: "llm failed"}, st, g)
	require.NoError(t, err)
	assert.Empty(t, dec.NextNodeIDs)
	assert.Equal(t, true, dec.Metadata["unclaimed_error"])
}

func TestRoute_TimeoutEdge(t *testing.T) {
	g, err := graph.NewBuilder("timeouts").
		AddNode("wait", graph.NodeTypeWait).Done().
		AddNode("done", graph.NodeTypeEnd).Done().
		AddNode("escalate", graph.NodeTypeEnd).Done().
		AddEdge("wait", "done").
		AddTypedEdge("on-timeout", graph.EdgeTypeTimeout, "wait", "escalate").
		Build()
	require.NoError(t, err)

	r := newTestRouter()
	st := state.New(g.ID, "t1", g.NodeCount())
	node, _ := g.Node("wait")

	res := &state.NodeResult{
		NodeID:   "wait",
		Success:  false,
		Error:    "timed out",
		Metadata: map[string]any{"timeout": true},
	}
	dec, err := r.Route(context.Background(), node, res, st, g)
	require.NoError(t, err)
	assert.Equal(t, []string{"escalate"}, dec.NextNodeIDs)

	// A plain failure does not take the timeout edge.
	dec, err = r.Route(context.Background(), node, &state.NodeResult{NodeID: "wait", Success: false, Error: "cancelled"}, st, g)
	require.NoError(t, err)
	assert.Empty(t, dec.NextNodeIDs)
	assert.Equal(t, true, dec.Metadata["unclaimed_error"])
}

func TestRoute_DefaultEdgeFiresWhenNothingSatisfied(t *testing.T) {
	g, err := graph.NewBuilder("defaults").
		AddNode("classify", graph.NodeTypeLLM).
		WithLLM(graph.LLMConfig{Model: "m"}).Done().
		AddNode("positive", graph.NodeTypeEnd).Done().
		AddNode("other", graph.NodeTypeEnd).Done().
		AddConditionalEdge("to-pos", "classify", "positive", "label == 'positive'").
		AddTypedEdge("to-other", graph.EdgeTypeDefault, "classify", "other").
		Build()
	require.NoError(t, err)

	r := newTestRouter()
	st := state.New(g.ID, "t1", g.NodeCount())
	node, _ := g.Node("classify")

	res := &state.NodeResult{NodeID: "classify", Success: true, Output: map[string]any{"label": "neutral"}}
	dec, err := r.Route(context.Background(), node, res, st, g)
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, dec.NextNodeIDs)

	res.Output = map[string]any{"label": "positive"}
	dec, err = r.Route(context.Background(), node, res, st, g)
	require.NoError(t, err)
	assert.Equal(t, []string{"positive"}, dec.NextNodeIDs)
}

func TestRoute_ConditionNodeUsesRoutingMetadata(t *testing.T) {
	g, err := graph.NewBuilder("cond").
		AddNode("check", graph.NodeTypeCondition).
		WithRouting(graph.RoutingConfig{OnTrue: []string{"yes"}, OnFalse: []string{"no"}}).Done().
		AddNode("yes", graph.NodeTypeEnd).Done().
		AddNode("no", graph.NodeTypeEnd).Done().
		AddEdge("check", "yes").
		AddEdge("check", "no").
		Build()
	require.NoError(t, err)

	r := newTestRouter()
	st := state.New(g.ID, "t1", g.NodeCount())
	node, _ := g.Node("check")

	// A boolean output picks the branch directly.
	dec, err := r.Route(context.Background(), node, &state.NodeResult{NodeID: "check", Success: true, Output: true}, st, g)
	require.NoError(t, err)
	assert.Equal(t, []string{"yes"}, dec.NextNodeIDs)
	assert.Equal(t, true, dec.Metadata["branch"])

	dec, err = r.Route(context.Background(), node, &state.NodeResult{NodeID: "check", Success: true, Output: false}, st, g)
	require.NoError(t, err)
	assert.Equal(t, []string{"no"}, dec.NextNodeIDs)
	assert.Equal(t, false, dec.Metadata["branch"])
}

func TestRoute_ConditionNodeFunction(t *testing.T) {
	evaluator := condition.NewEvaluator(condition.NewFunctionRegistry())
	evaluator.Registry().Register("is_high", func(ec *condition.EvalContext) (bool, error) {
		v, _ := ec.Value("score")
		f, _ := v.(float64)
		return f > 0.5, nil
	})
	r := NewRouter(evaluator, nil)

	g, err := graph.NewBuilder("cond-fn").
		AddNode("check", graph.NodeTypeCondition).
		WithRouting(graph.RoutingConfig{Function: "is_high", OnTrue: []string{"high"}, OnFalse: []string{"low"}}).Done().
		AddNode("high", graph.NodeTypeEnd).Done().
		AddNode("low", graph.NodeTypeEnd).Done().
		AddEdge("check", "high").
		AddEdge("check", "low").
		Build()
	require.NoError(t, err)

	st := state.New(g.ID, "t1", g.NodeCount())
	st.SetVariable("score", 0.9)
	node, _ := g.Node("check")

	dec, err := r.Route(context.Background(), node, &state.NodeResult{NodeID: "check", Success: true}, st, g)
	require.NoError(t, err)
	assert.Equal(t, []string{"high"}, dec.NextNodeIDs)
}

func TestRoute_SubWorkflowMergesResult(t *testing.T) {
	g, err := graph.NewBuilder("nested").
		AddNode("sub", graph.NodeTypeSubWorkflow).
		WithSubWorkflow(graph.SubWorkflowConfig{GraphID: "inner", ResultKey: "inner_result"}).Done().
		AddNode("after", graph.NodeTypeEnd).Done().
		AddEdge("sub", "after").
		Build()
	require.NoError(t, err)

	r := newTestRouter()
	st := state.New(g.ID, "t1", g.NodeCount())
	node, _ := g.Node("sub")

	res := &state.NodeResult{NodeID: "sub", Success: true, Output: map[string]any{"answer": 42}}
	dec, err := r.Route(context.Background(), node, res, st, g)
	require.NoError(t, err)
	assert.Equal(t, []string{"after"}, dec.NextNodeIDs)
	assert.Equal(t, res.Output, dec.StateUpdates["inner_result"])
}

func TestRoute_ConfigurationErrorAborts(t *testing.T) {
	g, err := graph.NewBuilder("badfn").
		AddNode("a", graph.NodeTypeStart).Done().
		AddNode("b", graph.NodeTypeEnd).Done().
		AddEdge("a", "b").
		Edge("a->b").WithProperty("function", "not_registered").Done().
		Build()
	require.NoError(t, err)

	r := newTestRouter()
	st := state.New(g.ID, "t1", g.NodeCount())
	node, _ := g.Node("a")

	_, err = r.Route(context.Background(), node, &state.NodeResult{NodeID: "a", Success: true}, st, g)
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrUnknownFunction))
}

// Property: for a two-way conditional branch guarded by complementary
// expressions, exactly one edge is satisfied and the decision routes to
// exactly one target.
func TestProperty_ConditionalBranchExclusive(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("exactly one branch taken", prop.ForAll(
		func(score float64) bool {
			g, err := graph.NewBuilder("prop").
				AddNode("n", graph.NodeTypeLLM).
				WithLLM(graph.LLMConfig{Model: "m"}).Done().
				AddNode("high", graph.NodeTypeEnd).Done().
				AddNode("low", graph.NodeTypeEnd).Done().
				AddConditionalEdge("to-high", "n", "high", "score >= 0.5").
				AddConditionalEdge("to-low", "n", "low", "score < 0.5").
				Build()
			if err != nil {
				return false
			}

			r := newTestRouter()
			st := state.New(g.ID, "t1", g.NodeCount())
			st.SetVariable("score", score)
			node, _ := g.Node("n")

			dec, err := r.Route(context.Background(), node, &state.NodeResult{NodeID: "n", Success: true}, st, g)
			if err != nil {
				return false
			}
			if len(dec.NextNodeIDs) != 1 || len(dec.SatisfiedEdges) != 1 || len(dec.UnsatisfiedEdges) != 1 {
				return false
			}
			if score >= 0.5 {
				return dec.NextNodeIDs[0] == "high"
			}
			return dec.NextNodeIDs[0] == "low"
		},
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}
