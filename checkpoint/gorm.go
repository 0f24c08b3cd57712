package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/weft-ai/weft/types"
)

// checkpointRecord is the relational row backing one checkpoint tuple.
// The full tuple is kept as a JSON payload; the indexed columns exist
// only for lookup and ordering.
type checkpointRecord struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	CheckpointID string `gorm:"size:64;uniqueIndex:idx_ckpt_key,priority:3;not null"`
	ThreadID     string `gorm:"size:64;uniqueIndex:idx_ckpt_key,priority:2;index:idx_ckpt_thread;not null"`
	Namespace    string `gorm:"size:128;uniqueIndex:idx_ckpt_key,priority:1;index:idx_ckpt_thread;not null"`
	ParentID     string `gorm:"size:64"`
	Payload      []byte `gorm:"type:blob;not null"`
	CreatedAt    time.Time
}

func (checkpointRecord) TableName() string {
	return "weft_checkpoints"
}

// GormStore persists checkpoint tuples through GORM. Works with any
// dialect GORM supports; tests run it against in-process SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the checkpoint table and returns a store.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&checkpointRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate checkpoint table: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Put inserts or replaces a tuple.
func (s *GormStore) Put(ctx context.Context, tuple *Tuple) error {
	payload, err := json.Marshal(tuple)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint tuple: %w", err)
	}
	record := checkpointRecord{
		CheckpointID: tuple.Config.CheckpointID,
		ThreadID:     tuple.Config.ThreadID,
		Namespace:    tuple.Config.Namespace,
		ParentID:     tuple.ParentID,
		Payload:      payload,
		CreatedAt:    tuple.Checkpoint.CreatedAt,
	}
	err = s.db.WithContext(ctx).
		Where("namespace = ? AND thread_id = ? AND checkpoint_id = ?",
			record.Namespace, record.ThreadID, record.CheckpointID).
		Delete(&checkpointRecord{}).Error
	if err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}
	return nil
}

// Get retrieves a tuple.
func (s *GormStore) Get(ctx context.Context, cfg Config) (*Tuple, error) {
	var record checkpointRecord
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND thread_id = ? AND checkpoint_id = ?",
			cfg.Namespace, cfg.ThreadID, cfg.CheckpointID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewErrorf(types.ErrCheckpointNotFound, "checkpoint %s not found for thread %s", cfg.CheckpointID, cfg.ThreadID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return decodeRecord(&record)
}

// Latest returns the newest tuple for a thread.
func (s *GormStore) Latest(ctx context.Context, threadID, namespace string) (*Tuple, error) {
	var record checkpointRecord
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND thread_id = ?", namespace, threadID).
		Order("created_at DESC, id DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewErrorf(types.ErrCheckpointNotFound, "no checkpoints for thread %s", threadID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return decodeRecord(&record)
}

// List returns all tuples for a thread, oldest first.
func (s *GormStore) List(ctx context.Context, threadID, namespace string) ([]*Tuple, error) {
	var records []checkpointRecord
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND thread_id = ?", namespace, threadID).
		Order("created_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	out := make([]*Tuple, 0, len(records))
	for i := range records {
		tuple, err := decodeRecord(&records[i])
		if err != nil {
			return nil, err
		}
		out = append(out, tuple)
	}
	return out, nil
}

// Delete removes a tuple.
func (s *GormStore) Delete(ctx context.Context, cfg Config) error {
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND thread_id = ? AND checkpoint_id = ?",
			cfg.Namespace, cfg.ThreadID, cfg.CheckpointID).
		Delete(&checkpointRecord{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

func decodeRecord(record *checkpointRecord) (*Tuple, error) {
	var tuple Tuple
	if err := json.Unmarshal(record.Payload, &tuple); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint tuple: %w", err)
	}
	return &tuple, nil
}
