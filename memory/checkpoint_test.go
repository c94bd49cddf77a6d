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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func ckpt(threadID, id string, step int) *Checkpoint {
	state, _ := json.Marshal(map[string]any{"iteration": step})
	return &Checkpoint{
		ID:        id,
		ThreadID:  threadID,
		State:     state,
		CreatedAt: time.Now(),
	}
}

func TestCheckpointPutAndGetLatest(t *testing.T) {
	ctx := context.Background()
	saver := NewRedisCheckpointSaver(newTestRedis(t))

	require.NoError(t, saver.Put(ctx, ckpt("t1", "c1", 1), &CheckpointMetadata{Source: "loop", Step: 1}))
	require.NoError(t, saver.Put(ctx, ckpt("t1", "c2", 2), &CheckpointMetadata{Source: "loop", Step: 2}))

	// Empty id resolves to the latest checkpoint.
	tuple, err := saver.GetTuple(ctx, "t1", "")
	require.NoError(t, err)
	assert.Equal(t, "c2", tuple.Checkpoint.ID)
	require.NotNil(t, tuple.Metadata)
	assert.Equal(t, 2, tuple.Metadata.Step)

	tuple, err = saver.GetTuple(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", tuple.Checkpoint.ID)
}

func TestCheckpointNotFound(t *testing.T) {
	ctx := context.Background()
	saver := NewRedisCheckpointSaver(newTestRedis(t))

	_, err := saver.GetTuple(ctx, "missing", "")
	assert.ErrorIs(t, err, ErrCheckpointNotFound)
	_, err = saver.GetTuple(ctx, "t1", "nope")
	assert.ErrorIs(t, err, ErrCheckpointNotFound)
}

func TestCheckpointPutWritesAppends(t *testing.T) {
	ctx := context.Background()
	saver := NewRedisCheckpointSaver(newTestRedis(t))
	require.NoError(t, saver.Put(ctx, ckpt("t1", "c1", 1), &CheckpointMetadata{}))

	w1 := []PendingWrite{{Channel: "messages", Value: json.RawMessage(`"a"`)}}
	w2 := []PendingWrite{{Channel: "messages", Value: json.RawMessage(`"b"`)}}
	require.NoError(t, saver.PutWrites(ctx, "t1", "c1", "task1", w1))
	require.NoError(t, saver.PutWrites(ctx, "t1", "c1", "task2", w2))

	tuple, err := saver.GetTuple(ctx, "t1", "c1")
	require.NoError(t, err)
	require.Len(t, tuple.Writes, 2)
	assert.Equal(t, "task1", tuple.Writes[0].TaskID)
	assert.Equal(t, "task2", tuple.Writes[1].TaskID)
}

func TestCheckpointListNewestFirst(t *testing.T) {
	ctx := context.Background()
	saver := NewRedisCheckpointSaver(newTestRedis(t))
	for i, id := range []string{"c1", "c2", "c3"} {
		require.NoError(t, saver.Put(ctx, ckpt("t1", id, i), &CheckpointMetadata{Step: i}))
	}

	tuples, err := saver.List(ctx, "t1", 2)
	require.NoError(t, err)
	require.Len(t, tuples, 2)
	assert.Equal(t, "c3", tuples[0].Checkpoint.ID)
	assert.Equal(t, "c2", tuples[1].Checkpoint.ID)
}

func TestCheckpointDeleteThread(t *testing.T) {
	ctx := context.Background()
	saver := NewRedisCheckpointSaver(newTestRedis(t))
	require.NoError(t, saver.Put(ctx, ckpt("t1", "c1", 1), &CheckpointMetadata{}))
	require.NoError(t, saver.Put(ctx, ckpt("t2", "c1", 1), &CheckpointMetadata{}))

	require.NoError(t, saver.DeleteThread(ctx, "t1"))

	_, err := saver.GetTuple(ctx, "t1", "")
	assert.ErrorIs(t, err, ErrCheckpointNotFound)
	// Other threads are untouched.
	_, err = saver.GetTuple(ctx, "t2", "")
	require.NoError(t, err)
}
