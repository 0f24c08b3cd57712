package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weft-ai/weft/types"
)

// RedisStore persists checkpoint tuples in Redis. Tuples live in plain
// keys; a per-thread sorted set scored by creation time provides ordering
// for Latest and List. Suitable for distributed deployments where several
// workers share one checkpoint namespace.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	PoolSize  int    `yaml:"pool_size" json:"pool_size"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "weft:"
	}
	return &RedisStore{client: client, keyPrefix: prefix + "ckpt:"}, nil
}

// NewRedisStoreWithClient wraps an existing client (used in tests).
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "weft:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix + "ckpt:"}
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks store health.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) dataKey(cfg Config) string {
	return s.keyPrefix + "data:" + cfg.Namespace + ":" + cfg.ThreadID + ":" + cfg.CheckpointID
}

func (s *RedisStore) indexKey(threadID, namespace string) string {
	return s.keyPrefix + "index:" + namespace + ":" + threadID
}

// Put persists a tuple and indexes it by creation time.
func (s *RedisStore) Put(ctx context.Context, tuple *Tuple) error {
	data, err := json.Marshal(tuple)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint tuple: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.dataKey(tuple.Config), data, 0)
	pipe.ZAdd(ctx, s.indexKey(tuple.Config.ThreadID, tuple.Config.Namespace), redis.Z{
		Score:  float64(tuple.Checkpoint.CreatedAt.UnixNano()),
		Member: tuple.Config.CheckpointID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}
	return nil
}

// Get retrieves a tuple.
func (s *RedisStore) Get(ctx context.Context, cfg Config) (*Tuple, error) {
	data, err := s.client.Get(ctx, s.dataKey(cfg)).Bytes()
	if err == redis.Nil {
		return nil, types.NewErrorf(types.ErrCheckpointNotFound, "checkpoint %s not found for thread %s", cfg.CheckpointID, cfg.ThreadID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var tuple Tuple
	if err := json.Unmarshal(data, &tuple); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint tuple: %w", err)
	}
	return &tuple, nil
}

// Latest returns the newest tuple for a thread.
func (s *RedisStore) Latest(ctx context.Context, threadID, namespace string) (*Tuple, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(threadID, namespace), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint index: %w", err)
	}
	if len(ids) == 0 {
		return nil, types.NewErrorf(types.ErrCheckpointNotFound, "no checkpoints for thread %s", threadID)
	}
	return s.Get(ctx, Config{ThreadID: threadID, CheckpointID: ids[0], Namespace: namespace})
}

// List returns all tuples for a thread, oldest first.
func (s *RedisStore) List(ctx context.Context, threadID, namespace string) ([]*Tuple, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(threadID, namespace), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint index: %w", err)
	}
	out := make([]*Tuple, 0, len(ids))
	for _, id := range ids {
		tuple, err := s.Get(ctx, Config{ThreadID: threadID, CheckpointID: id, Namespace: namespace})
		if err != nil {
			return nil, err
		}
		out = append(out, tuple)
	}
	return out, nil
}

// Delete removes a tuple and its index entry.
func (s *RedisStore) Delete(ctx context.Context, cfg Config) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.dataKey(cfg))
	pipe.ZRem(ctx, s.indexKey(cfg.ThreadID, cfg.Namespace), cfg.CheckpointID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}
