package checkpoint

import (
	"context"
	"sort"
	"sync"

	"github.com/weft-ai/weft/types"
)

// Store persists checkpoint tuples keyed by (threadID, checkpointID,
// namespace). Implementations must treat stored tuples as immutable.
type Store interface {
	// Put persists a tuple.
	Put(ctx context.Context, tuple *Tuple) error
	// Get retrieves the tuple addressed by cfg.
	Get(ctx context.Context, cfg Config) (*Tuple, error)
	// Latest returns the most recently created tuple for a thread.
	Latest(ctx context.Context, threadID, namespace string) (*Tuple, error)
	// List returns all tuples for a thread, oldest first.
	List(ctx context.Context, threadID, namespace string) ([]*Tuple, error)
	// Delete removes the tuple addressed by cfg.
	Delete(ctx context.Context, cfg Config) error
}

// Chain walks the parent references from the given checkpoint back to the
// chain root, returning the tuples newest first.
func Chain(ctx context.Context, store Store, cfg Config) ([]*Tuple, error) {
	var chain []*Tuple
	seen := map[string]bool{}
	for cfg.CheckpointID != "" {
		if seen[cfg.CheckpointID] {
			return nil, types.NewErrorf(types.ErrValidation, "checkpoint chain for thread %s contains a loop at %s", cfg.ThreadID, cfg.CheckpointID)
		}
		seen[cfg.CheckpointID] = true
		tuple, err := store.Get(ctx, cfg)
		if err != nil {
			return nil, err
		}
		chain = append(chain, tuple)
		cfg.CheckpointID = tuple.ParentID
	}
	return chain, nil
}

// MemoryStore is the in-memory Store, suitable for tests and single
// process runs.
type MemoryStore struct {
	mu     sync.RWMutex
	tuples map[string]*Tuple // key: namespace/threadID/checkpointID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tuples: map[string]*Tuple{}}
}

func storeKey(cfg Config) string {
	return cfg.Namespace + "/" + cfg.ThreadID + "/" + cfg.CheckpointID
}

// Put stores a tuple.
func (s *MemoryStore) Put(ctx context.Context, tuple *Tuple) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tuples[storeKey(tuple.Config)] = tuple
	return nil
}

// Get retrieves a tuple.
func (s *MemoryStore) Get(ctx context.Context, cfg Config) (*Tuple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tuple, ok := s.tuples[storeKey(cfg)]
	if !ok {
		return nil, types.NewErrorf(types.ErrCheckpointNotFound, "checkpoint %s not found for thread %s", cfg.CheckpointID, cfg.ThreadID)
	}
	return tuple, nil
}

// Latest returns the newest tuple for a thread.
func (s *MemoryStore) Latest(ctx context.Context, threadID, namespace string) (*Tuple, error) {
	tuples, err := s.List(ctx, threadID, namespace)
	if err != nil {
		return nil, err
	}
	if len(tuples) == 0 {
		return nil, types.NewErrorf(types.ErrCheckpointNotFound, "no checkpoints for thread %s", threadID)
	}
	return tuples[len(tuples)-1], nil
}

// List returns all tuples for a thread, oldest first.
func (s *MemoryStore) List(ctx context.Context, threadID, namespace string) ([]*Tuple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Tuple
	for _, t := range s.tuples {
		if t.Config.ThreadID == threadID && t.Config.Namespace == namespace {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Checkpoint.CreatedAt.Before(out[j].Checkpoint.CreatedAt)
	})
	return out, nil
}

// Delete removes a tuple.
func (s *MemoryStore) Delete(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tuples, storeKey(cfg))
	return nil
}
