package session

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weft-ai/weft/checkpoint"
	"github.com/weft-ai/weft/extension"
	"github.com/weft-ai/weft/internal/metrics"
	"github.com/weft-ai/weft/state"
	"github.com/weft-ai/weft/types"
)

// forkFixture is a session with one running parent thread positioned
// mid-workflow: node a completed, node b running, node c pending.
func forkFixture(t *testing.T, maxThreads int) (*Manager, *Session, *Thread) {
	t.Helper()
	m := NewManager(nil)
	sess := m.CreateSession("s", maxThreads)

	parent, err := m.CreateThread(sess.ID, "wf-1")
	require.NoError(t, err)

	st := state.New("wf-1", parent.ID, 3)
	st.Status = state.ExecutionRunning
	st.SetVariable("score", 0.75)
	st.NodeStates["a"] = &state.NodeExecutionState{NodeID: "a", Status: state.NodeCompleted, Result: "done"}
	st.NodeStates["b"] = &state.NodeExecutionState{NodeID: "b", Status: state.NodeRunning, RetryCount: 2}
	st.NodeStates["c"] = &state.NodeExecutionState{NodeID: "c", Status: state.NodePending}
	st.CurrentNode = "b"

	parent.State = st
	parent.Status = state.ExecutionRunning
	return m, sess, parent
}

func TestFork_CreatesIndependentChild(t *testing.T) {
	m, sess, parent := forkFixture(t, 0)
	f := NewForkManager(m, nil, nil)

	child, err := f.Fork(context.Background(), sess.ID, parent.ID, "b", nil)
	require.NoError(t, err)

	assert.NotEqual(t, parent.ID, child.ID)
	assert.Equal(t, parent.WorkflowID, child.WorkflowID)
	assert.Equal(t, state.ExecutionPending, child.Status)
	assert.Equal(t, parent.ID, child.ParentThreadID())
	assert.Equal(t, "b", child.Metadata["fork_node"])
	assert.Equal(t, "discard", child.Metadata["fork_strategy"])

	require.NotNil(t, child.State)
	assert.Equal(t, child.ID, child.State.ThreadID)
	assert.NotEqual(t, parent.State.ExecutionID, child.State.ExecutionID)
	assert.Equal(t, "b", child.State.CurrentNode)

	// The snapshot is isolated: mutating the child leaves the parent alone.
	child.State.SetVariable("score", 0.1)
	child.State.NodeStates["a"].Result = "tampered"
	assert.Equal(t, 0.75, parent.State.Variables["score"])
	assert.Equal(t, "done", parent.State.NodeStates["a"].Result)

	assert.Equal(t, 2, sess.ThreadCount())
}

func TestFork_DiscardDropsInFlight(t *testing.T) {
	m, sess, parent := forkFixture(t, 0)
	f := NewForkManager(m, nil, nil)

	child, err := f.Fork(context.Background(), sess.ID, parent.ID, "b", DiscardStrategy{})
	require.NoError(t, err)

	_, ok := child.State.NodeState("b")
	assert.False(t, ok)
	// Settled and pending records survive.
	_, ok = child.State.NodeState("a")
	assert.True(t, ok)
	_, ok = child.State.NodeState("c")
	assert.True(t, ok)
}

func TestFork_FreezeCancelsInFlight(t *testing.T) {
	m, sess, parent := forkFixture(t, 0)
	f := NewForkManager(m, nil, nil)

	child, err := f.Fork(context.Background(), sess.ID, parent.ID, "b", FreezeStrategy{})
	require.NoError(t, err)

	ns, ok := child.State.NodeState("b")
	require.True(t, ok)
	assert.Equal(t, state.NodeCancelled, ns.Status)
	// The frozen record keeps its attempt history.
	assert.Equal(t, 2, ns.RetryCount)

	// The parent's record is untouched.
	assert.Equal(t, state.NodeRunning, parent.State.NodeStates["b"].Status)
}

func TestFork_ReplayResetsInFlight(t *testing.T) {
	m, sess, parent := forkFixture(t, 0)
	f := NewForkManager(m, nil, nil)

	child, err := f.Fork(context.Background(), sess.ID, parent.ID, "b", ReplayStrategy{})
	require.NoError(t, err)

	ns, ok := child.State.NodeState("b")
	require.True(t, ok)
	assert.Equal(t, state.NodePending, ns.Status)
	assert.Equal(t, 0, ns.RetryCount)
	assert.Nil(t, ns.Result)
	assert.Empty(t, ns.Error)
	assert.True(t, ns.StartedAt.IsZero())
}

func TestFork_RejectedWhenSessionDeleted(t *testing.T) {
	m, sess, parent := forkFixture(t, 0)
	require.NoError(t, m.Delete(sess.ID))
	f := NewForkManager(m, nil, nil)

	_, err := f.Fork(context.Background(), sess.ID, parent.ID, "b", nil)
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrSessionDeleted))
	assert.Equal(t, 1, sess.ThreadCount())
}

func TestFork_RejectedWhenSessionPaused(t *testing.T) {
	m, sess, parent := forkFixture(t, 0)
	require.NoError(t, m.SetStatus(sess.ID, StatusPaused))
	f := NewForkManager(m, nil, nil)

	_, err := f.Fork(context.Background(), sess.ID, parent.ID, "b", nil)
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrSessionNotActive))
	assert.Equal(t, 1, sess.ThreadCount())
}

func TestFork_RejectedWhenParentMissing(t *testing.T) {
	m, sess, _ := forkFixture(t, 0)
	f := NewForkManager(m, nil, nil)

	_, err := f.Fork(context.Background(), sess.ID, "no-such-thread", "b", nil)
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrThreadNotFound))
	assert.Equal(t, 1, sess.ThreadCount())
}

func TestFork_RejectedAtThreadLimit(t *testing.T) {
	m, sess, parent := forkFixture(t, 1)
	f := NewForkManager(m, nil, nil)

	_, err := f.Fork(context.Background(), sess.ID, parent.ID, "b", nil)
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrThreadLimit))
	assert.Equal(t, 1, sess.ThreadCount())
}

func TestFork_RejectedWithoutParentState(t *testing.T) {
	m := NewManager(nil)
	sess := m.CreateSession("s", 0)
	parent, err := m.CreateThread(sess.ID, "wf-1")
	require.NoError(t, err)
	f := NewForkManager(m, nil, nil)

	_, err = f.Fork(context.Background(), sess.ID, parent.ID, "b", nil)
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrForkRejected))
	assert.Equal(t, 1, sess.ThreadCount())
}

func TestFork_CheckpointsChildAsChainRoot(t *testing.T) {
	m, sess, parent := forkFixture(t, 0)
	store := checkpoint.NewMemoryStore()
	ckpts := checkpoint.NewManager(store, "default", checkpoint.DefaultPolicy(), nil)
	f := NewForkManager(m, ckpts, nil)

	child, err := f.Fork(context.Background(), sess.ID, parent.ID, "b", FreezeStrategy{})
	require.NoError(t, err)

	tuple, err := store.Latest(context.Background(), child.ID, "default")
	require.NoError(t, err)
	assert.Empty(t, tuple.ParentID)
	assert.Equal(t, child.ID, tuple.Checkpoint.ThreadID)
	assert.Equal(t, checkpoint.SourceManual, tuple.Checkpoint.Source)

	// The parent thread gets no checkpoint from the fork.
	_, err = store.Latest(context.Background(), parent.ID, "default")
	assert.True(t, types.HasCode(err, types.ErrCheckpointNotFound))
}

func TestFork_DispatchesThreadForked(t *testing.T) {
	m, sess, parent := forkFixture(t, 0)

	ext := extension.NewRegistry(nil)
	var forked []*extension.Event
	ext.Register(extension.EventThreadForked, extension.Handler{
		Name: "audit", Enabled: true,
		Fn: func(ctx context.Context, event *extension.Event) error {
			forked = append(forked, event)
			return nil
		},
	})
	f := NewForkManager(m, nil, nil, WithForkExtensions(ext))

	child, err := f.Fork(context.Background(), sess.ID, parent.ID, "b", ReplayStrategy{})
	require.NoError(t, err)

	require.Len(t, forked, 1)
	assert.Equal(t, child.ID, forked[0].ThreadID)
	assert.Equal(t, "wf-1", forked[0].WorkflowID)
	assert.Equal(t, "b", forked[0].NodeID)
	assert.Equal(t, sess.ID, forked[0].Payload["session_id"])
	assert.Equal(t, parent.ID, forked[0].Payload["parent_thread_id"])
	assert.Equal(t, "replay", forked[0].Payload["fork_strategy"])
}

func TestFork_RecordsOutcomes(t *testing.T) {
	m, sess, parent := forkFixture(t, 1)

	reg := prometheus.NewRegistry()
	f := NewForkManager(m, nil, nil, WithForkMetrics(metrics.NewCollector("weft", reg, nil)))

	// The session is already at its single-thread limit, so the fork is
	// rejected; lifting the limit lets the retry succeed.
	_, err := f.Fork(context.Background(), sess.ID, parent.ID, "b", FreezeStrategy{})
	require.Error(t, err)
	sess.MaxThreads = 0
	_, err = f.Fork(context.Background(), sess.ID, parent.ID, "b", FreezeStrategy{})
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "weft_thread_forks_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			counts[labels["strategy"]+"/"+labels["status"]] = metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, counts["freeze/rejected"])
	assert.Equal(t, 1.0, counts["freeze/success"])
}
