//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCheckpointNotFound is returned when no checkpoint matches.
var ErrCheckpointNotFound = errors.New("memory: checkpoint not found")

// Checkpoint is a serialized agent-state snapshot.
type Checkpoint struct {
	ID        string          `json:"id"`
	ThreadID  string          `json:"thread_id"`
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// CheckpointMetadata records provenance of a checkpoint.
type CheckpointMetadata struct {
	Source string         `json:"source"`
	Step   int            `json:"step"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// PendingWrite is one buffered state write attached to a checkpoint.
type PendingWrite struct {
	TaskID  string          `json:"task_id"`
	Channel string          `json:"channel"`
	Value   json.RawMessage `json:"value"`
}

// CheckpointTuple bundles a checkpoint with its metadata and writes.
type CheckpointTuple struct {
	Checkpoint *Checkpoint         `json:"checkpoint"`
	Metadata   *CheckpointMetadata `json:"metadata"`
	ParentID   string              `json:"parent_id,omitempty"`
	Writes     []PendingWrite      `json:"writes,omitempty"`
}

// CheckpointSaver persists agent state per thread. All operations are
// idempotent and carry the TTL forward.
type CheckpointSaver interface {
	// GetTuple returns the checkpoint with the given id, or the latest one
	// when checkpointID is empty. Returns ErrCheckpointNotFound when absent.
	GetTuple(ctx context.Context, threadID, checkpointID string) (*CheckpointTuple, error)
	// Put stores a checkpoint and marks it latest.
	Put(ctx context.Context, ckpt *Checkpoint, meta *CheckpointMetadata) error
	// PutWrites appends pending writes to a stored checkpoint.
	PutWrites(ctx context.Context, threadID, checkpointID, taskID string, writes []PendingWrite) error
	// List returns up to limit checkpoints of the thread, newest first.
	List(ctx context.Context, threadID string, limit int) ([]*CheckpointTuple, error)
	// DeleteThread removes every checkpoint of the thread.
	DeleteThread(ctx context.Context, threadID string) error
}

const defaultCheckpointTTL = 24 * time.Hour

// Redis key layout for checkpoints.
func checkpointKey(threadID, id string) string  { return fmt.Sprintf("checkpoint:%s:%s", threadID, id) }
func checkpointMetaKey(threadID, id string) string {
	return fmt.Sprintf("checkpoint_meta:%s:%s", threadID, id)
}
func checkpointWritesKey(threadID, id string) string {
	return fmt.Sprintf("checkpoint_writes:%s:%s", threadID, id)
}
func checkpointLatestKey(threadID string) string { return "checkpoint_latest:" + threadID }
func checkpointIndexKey(threadID string) string  { return "checkpoint_index:" + threadID }

// RedisCheckpointSaver implements CheckpointSaver on Redis.
type RedisCheckpointSaver struct {
	client *redis.Client
	ttl    time.Duration
}

var _ CheckpointSaver = (*RedisCheckpointSaver)(nil)

// CheckpointOption configures the saver.
type CheckpointOption func(*RedisCheckpointSaver)

// WithCheckpointTTL overrides the default 24h TTL.
func WithCheckpointTTL(ttl time.Duration) CheckpointOption {
	return func(s *RedisCheckpointSaver) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewRedisCheckpointSaver creates a saver on the given client.
func NewRedisCheckpointSaver(client *redis.Client, opts ...CheckpointOption) *RedisCheckpointSaver {
	s := &RedisCheckpointSaver{client: client, ttl: defaultCheckpointTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put implements CheckpointSaver.
func (s *RedisCheckpointSaver) Put(ctx context.Context, ckpt *Checkpoint, meta *CheckpointMetadata) error {
	if ckpt == nil || ckpt.ThreadID == "" || ckpt.ID == "" {
		return errors.New("memory: checkpoint needs thread id and id")
	}
	ckptJSON, err := json.Marshal(ckpt)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal checkpoint metadata: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, checkpointKey(ckpt.ThreadID, ckpt.ID), ckptJSON, s.ttl)
	pipe.Set(ctx, checkpointMetaKey(ckpt.ThreadID, ckpt.ID), metaJSON, s.ttl)
	pipe.Set(ctx, checkpointLatestKey(ckpt.ThreadID), ckpt.ID, s.ttl)
	pipe.LPush(ctx, checkpointIndexKey(ckpt.ThreadID), ckpt.ID)
	pipe.Expire(ctx, checkpointIndexKey(ckpt.ThreadID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store checkpoint: %w", err)
	}
	return nil
}

// GetTuple implements CheckpointSaver. The TTL of touched keys is refreshed.
func (s *RedisCheckpointSaver) GetTuple(ctx context.Context, threadID, checkpointID string) (*CheckpointTuple, error) {
	if checkpointID == "" {
		latest, err := s.client.Get(ctx, checkpointLatestKey(threadID)).Result()
		if errors.Is(err, redis.Nil) {
			return nil, ErrCheckpointNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("get latest checkpoint id: %w", err)
		}
		checkpointID = latest
	}
	raw, err := s.client.Get(ctx, checkpointKey(threadID, checkpointID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	var ckpt Checkpoint
	if err := json.Unmarshal([]byte(raw), &ckpt); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	tuple := &CheckpointTuple{Checkpoint: &ckpt}
	if metaRaw, err := s.client.Get(ctx, checkpointMetaKey(threadID, checkpointID)).Result(); err == nil {
		var meta CheckpointMetadata
		if err := json.Unmarshal([]byte(metaRaw), &meta); err == nil {
			tuple.Metadata = &meta
		}
	}
	if writesRaw, err := s.client.Get(ctx, checkpointWritesKey(threadID, checkpointID)).Result(); err == nil {
		_ = json.Unmarshal([]byte(writesRaw), &tuple.Writes)
	}
	s.refreshTTL(ctx, threadID, checkpointID)
	return tuple, nil
}

// PutWrites implements CheckpointSaver.
func (s *RedisCheckpointSaver) PutWrites(ctx context.Context, threadID, checkpointID, taskID string, writes []PendingWrite) error {
	if len(writes) == 0 {
		return nil
	}
	key := checkpointWritesKey(threadID, checkpointID)
	var existing []PendingWrite
	if raw, err := s.client.Get(ctx, key).Result(); err == nil {
		_ = json.Unmarshal([]byte(raw), &existing)
	}
	for _, w := range writes {
		w.TaskID = taskID
		existing = append(existing, w)
	}
	payload, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("marshal pending writes: %w", err)
	}
	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store pending writes: %w", err)
	}
	return nil
}

// List implements CheckpointSaver.
func (s *RedisCheckpointSaver) List(ctx context.Context, threadID string, limit int) ([]*CheckpointTuple, error) {
	if limit <= 0 {
		limit = 10
	}
	ids, err := s.client.LRange(ctx, checkpointIndexKey(threadID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoint ids: %w", err)
	}
	var tuples []*CheckpointTuple
	for _, id := range ids {
		tuple, err := s.GetTuple(ctx, threadID, id)
		if errors.Is(err, ErrCheckpointNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tuples = append(tuples, tuple)
	}
	return tuples, nil
}

// DeleteThread implements CheckpointSaver.
func (s *RedisCheckpointSaver) DeleteThread(ctx context.Context, threadID string) error {
	ids, err := s.client.LRange(ctx, checkpointIndexKey(threadID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("list checkpoint ids: %w", err)
	}
	keys := []string{checkpointLatestKey(threadID), checkpointIndexKey(threadID)}
	for _, id := range ids {
		keys = append(keys,
			checkpointKey(threadID, id),
			checkpointMetaKey(threadID, id),
			checkpointWritesKey(threadID, id))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete checkpoints: %w", err)
	}
	return nil
}

func (s *RedisCheckpointSaver) refreshTTL(ctx context.Context, threadID, checkpointID string) {
	pipe := s.client.Pipeline()
	pipe.Expire(ctx, checkpointKey(threadID, checkpointID), s.ttl)
	pipe.Expire(ctx, checkpointMetaKey(threadID, checkpointID), s.ttl)
	pipe.Expire(ctx, checkpointLatestKey(threadID), s.ttl)
	pipe.Expire(ctx, checkpointIndexKey(threadID), s.ttl)
	_, _ = pipe.Exec(ctx)
}
