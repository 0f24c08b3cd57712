package checkpoint

import (
	"context"

	"go.uber.org/zap"

	"github.com/weft-ai/weft/state"
	"github.com/weft-ai/weft/types"
)

// Policy decides when the manager snapshots state on its own. Manual
// checkpoints are always allowed regardless of policy.
type Policy struct {
	// EveryNSteps triggers a periodic checkpoint after that many
	// completed steps. Zero disables periodic checkpoints.
	EveryNSteps int `yaml:"every_n_steps" json:"every_n_steps"`
	// OnError snapshots state when a node fails.
	OnError bool `yaml:"on_error" json:"on_error"`
	// Milestones lists node IDs whose completion triggers a checkpoint.
	Milestones []string `yaml:"milestones" json:"milestones"`
	// KeepLast bounds retained checkpoints per thread. Oldest tuples
	// are pruned past the limit. Zero keeps everything.
	KeepLast int `yaml:"keep_last" json:"keep_last"`
}

// DefaultPolicy checkpoints on error and keeps the last 20 snapshots.
func DefaultPolicy() Policy {
	return Policy{OnError: true, KeepLast: 20}
}

// Manager creates, restores and prunes checkpoints for one namespace.
// Each checkpoint records its predecessor, so a thread's history forms
// a parent chain the manager can walk back through.
type Manager struct {
	store     Store
	namespace string
	policy    Policy
	logger    *zap.Logger
}

// NewManager builds a manager over the given store.
func NewManager(store Store, namespace string, policy Policy, logger *zap.Logger) *Manager {
	if namespace == "" {
		namespace = "default"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:     store,
		namespace: namespace,
		policy:    policy,
		logger:    logger.With(zap.String("component", "checkpoint_manager")),
	}
}

// Namespace returns the namespace this manager writes under.
func (m *Manager) Namespace() string {
	return m.namespace
}

// Create snapshots the state and persists it, linking it to the thread's
// previous checkpoint when one exists.
func (m *Manager) Create(ctx context.Context, st *state.ExecutionState, source Source) (*Tuple, error) {
	ckpt := FromState(st, source)

	parentID := ""
	if prev, err := m.store.Latest(ctx, st.ThreadID, m.namespace); err == nil {
		parentID = prev.Config.CheckpointID
	} else if !types.HasCode(err, types.ErrCheckpointNotFound) {
		return nil, err
	}

	tuple := &Tuple{
		Checkpoint: ckpt,
		Config: Config{
			ThreadID:     st.ThreadID,
			CheckpointID: ckpt.ID,
			Namespace:    m.namespace,
		},
		ParentID: parentID,
	}
	if err := m.store.Put(ctx, tuple); err != nil {
		return nil, err
	}

	m.logger.Debug("checkpoint created",
		zap.String("thread_id", st.ThreadID),
		zap.String("checkpoint_id", ckpt.ID),
		zap.String("source", string(source)))

	if err := m.prune(ctx, st.ThreadID); err != nil {
		m.logger.Warn("checkpoint pruning failed",
			zap.String("thread_id", st.ThreadID), zap.Error(err))
	}
	return tuple, nil
}

// MaybeCheckpoint applies the policy after a node finished. It returns
// the created tuple, or nil when the policy did not fire.
func (m *Manager) MaybeCheckpoint(ctx context.Context, st *state.ExecutionState, nodeID string, failed bool) (*Tuple, error) {
	switch {
	case failed && m.policy.OnError:
		return m.Create(ctx, st, SourceOnError)
	case m.isMilestone(nodeID):
		return m.Create(ctx, st, SourceOnMilestone)
	case m.policy.EveryNSteps > 0 && len(st.Steps) > 0 && len(st.Steps)%m.policy.EveryNSteps == 0:
		return m.Create(ctx, st, SourcePeriodic)
	}
	return nil, nil
}

func (m *Manager) isMilestone(nodeID string) bool {
	for _, id := range m.policy.Milestones {
		if id == nodeID {
			return true
		}
	}
	return false
}

// Restore rebuilds execution state from a checkpoint. An empty
// checkpointID restores the thread's latest snapshot.
func (m *Manager) Restore(ctx context.Context, threadID, checkpointID string) (*state.ExecutionState, error) {
	tuple, err := m.resolve(ctx, threadID, checkpointID)
	if err != nil {
		return nil, err
	}
	m.logger.Info("checkpoint restored",
		zap.String("thread_id", threadID),
		zap.String("checkpoint_id", tuple.Config.CheckpointID))
	return tuple.Checkpoint.ToState(), nil
}

// History walks the parent chain from the given checkpoint (or the
// latest one) back to the root, newest first.
func (m *Manager) History(ctx context.Context, threadID, checkpointID string) ([]*Tuple, error) {
	tuple, err := m.resolve(ctx, threadID, checkpointID)
	if err != nil {
		return nil, err
	}
	return Chain(ctx, m.store, tuple.Config)
}

// List returns every retained checkpoint for a thread, oldest first.
func (m *Manager) List(ctx context.Context, threadID string) ([]*Tuple, error) {
	return m.store.List(ctx, threadID, m.namespace)
}

// Delete removes one checkpoint. Chains referencing it keep their
// parent IDs; History stops where the chain breaks.
func (m *Manager) Delete(ctx context.Context, threadID, checkpointID string) error {
	return m.store.Delete(ctx, Config{
		ThreadID:     threadID,
		CheckpointID: checkpointID,
		Namespace:    m.namespace,
	})
}

func (m *Manager) resolve(ctx context.Context, threadID, checkpointID string) (*Tuple, error) {
	if checkpointID == "" {
		return m.store.Latest(ctx, threadID, m.namespace)
	}
	return m.store.Get(ctx, Config{
		ThreadID:     threadID,
		CheckpointID: checkpointID,
		Namespace:    m.namespace,
	})
}

func (m *Manager) prune(ctx context.Context, threadID string) error {
	if m.policy.KeepLast <= 0 {
		return nil
	}
	tuples, err := m.store.List(ctx, threadID, m.namespace)
	if err != nil {
		return err
	}
	excess := len(tuples) - m.policy.KeepLast
	for i := 0; i < excess; i++ {
		if err := m.store.Delete(ctx, tuples[i].Config); err != nil {
			return err
		}
	}
	if excess > 0 {
		m.logger.Debug("pruned checkpoints",
			zap.String("thread_id", threadID), zap.Int("removed", excess))
	}
	return nil
}
