package checkpoint

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/weft-ai/weft/state"
	"github.com/weft-ai/weft/types"
)

func newRedisTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreWithClient(client, "")
}

func newGormTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	store, err := NewGormStore(db)
	require.NoError(t, err)
	return store
}

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  newRedisTestStore(t),
		"gorm":   newGormTestStore(t),
	}
}

func testTuple(threadID, checkpointID, parentID string, createdAt time.Time) *Tuple {
	return &Tuple{
		Checkpoint: &Checkpoint{
			ID:          checkpointID,
			ThreadID:    threadID,
			ExecutionID: "exec-1",
			WorkflowID:  "wf-1",
			CurrentNode: "b",
			Status:      state.ExecutionRunning,
			NodeStates: map[string]*state.NodeExecutionState{
				"a": {NodeID: "a", Status: state.NodeCompleted},
			},
			Variables: map[string]any{"score": 0.75},
			Progress:  state.Progress{Total: 3, Completed: 1},
			Source:    SourceManual,
			CreatedAt: createdAt,
			Metadata:  map[string]any{},
		},
		Config: Config{
			ThreadID:     threadID,
			CheckpointID: checkpointID,
			Namespace:    "default",
		},
		ParentID: parentID,
	}
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tuple := testTuple("t1", "c1", "", time.Now().UTC())
			require.NoError(t, store.Put(ctx, tuple))

			got, err := store.Get(ctx, tuple.Config)
			require.NoError(t, err)
			assert.Equal(t, "c1", got.Config.CheckpointID)
			assert.Equal(t, "wf-1", got.Checkpoint.WorkflowID)
			assert.Equal(t, state.ExecutionRunning, got.Checkpoint.Status)
			require.Contains(t, got.Checkpoint.NodeStates, "a")
			assert.Equal(t, state.NodeCompleted, got.Checkpoint.NodeStates["a"].Status)
			assert.Equal(t, 0.75, got.Checkpoint.Variables["score"])
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), Config{
				ThreadID: "t1", CheckpointID: "nope", Namespace: "default",
			})
			require.Error(t, err)
			assert.True(t, types.HasCode(err, types.ErrCheckpointNotFound))
		})
	}
}

func TestStore_LatestAndListOrdering(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC()
			for i := 0; i < 3; i++ {
				id := fmt.Sprintf("c%d", i+1)
				require.NoError(t, store.Put(ctx, testTuple("t1", id, "", base.Add(time.Duration(i)*time.Second))))
			}

			latest, err := store.Latest(ctx, "t1", "default")
			require.NoError(t, err)
			assert.Equal(t, "c3", latest.Config.CheckpointID)

			tuples, err := store.List(ctx, "t1", "default")
			require.NoError(t, err)
			require.Len(t, tuples, 3)
			assert.Equal(t, "c1", tuples[0].Config.CheckpointID)
			assert.Equal(t, "c3", tuples[2].Config.CheckpointID)
		})
	}
}

func TestStore_LatestEmptyThread(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Latest(context.Background(), "empty", "default")
			require.Error(t, err)
			assert.True(t, types.HasCode(err, types.ErrCheckpointNotFound))
		})
	}
}

func TestStore_NamespaceIsolation(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tuple := testTuple("t1", "c1", "", time.Now().UTC())
			require.NoError(t, store.Put(ctx, tuple))

			other := tuple.Config
			other.Namespace = "staging"
			_, err := store.Get(ctx, other)
			assert.True(t, types.HasCode(err, types.ErrCheckpointNotFound))

			_, err = store.Latest(ctx, "t1", "staging")
			assert.True(t, types.HasCode(err, types.ErrCheckpointNotFound))
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tuple := testTuple("t1", "c1", "", time.Now().UTC())
			require.NoError(t, store.Put(ctx, tuple))
			require.NoError(t, store.Delete(ctx, tuple.Config))

			_, err := store.Get(ctx, tuple.Config)
			assert.True(t, types.HasCode(err, types.ErrCheckpointNotFound))

			tuples, err := store.List(ctx, "t1", "default")
			require.NoError(t, err)
			assert.Empty(t, tuples)
		})
	}
}

func TestStore_PutReplacesSameID(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := testTuple("t1", "c1", "", time.Now().UTC())
			require.NoError(t, store.Put(ctx, first))

			second := testTuple("t1", "c1", "", time.Now().UTC().Add(time.Second))
			second.Checkpoint.CurrentNode = "c"
			require.NoError(t, store.Put(ctx, second))

			got, err := store.Get(ctx, first.Config)
			require.NoError(t, err)
			assert.Equal(t, "c", got.Checkpoint.CurrentNode)

			tuples, err := store.List(ctx, "t1", "default")
			require.NoError(t, err)
			assert.Len(t, tuples, 1)
		})
	}
}

func TestChain_WalksParents(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now().UTC()
	require.NoError(t, store.Put(ctx, testTuple("t1", "c1", "", base)))
	require.NoError(t, store.Put(ctx, testTuple("t1", "c2", "c1", base.Add(time.Second))))
	require.NoError(t, store.Put(ctx, testTuple("t1", "c3", "c2", base.Add(2*time.Second))))

	chain, err := Chain(ctx, store, Config{ThreadID: "t1", CheckpointID: "c3", Namespace: "default"})
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "c3", chain[0].Config.CheckpointID)
	assert.Equal(t, "c1", chain[2].Config.CheckpointID)
}

func TestChain_BrokenParentFails(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, testTuple("t1", "c2", "c1", time.Now().UTC())))

	_, err := Chain(ctx, store, Config{ThreadID: "t1", CheckpointID: "c2", Namespace: "default"})
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCheckpointNotFound))
}

func TestChain_LoopDetected(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now().UTC()
	require.NoError(t, store.Put(ctx, testTuple("t1", "c1", "c2", base)))
	require.NoError(t, store.Put(ctx, testTuple("t1", "c2", "c1", base.Add(time.Second))))

	_, err := Chain(ctx, store, Config{ThreadID: "t1", CheckpointID: "c2", Namespace: "default"})
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrValidation))
}
