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
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/papermind/papermind/log"
	"github.com/papermind/papermind/model"
)

// Conversation cache defaults.
const (
	defaultConvTTL      = 6 * time.Hour
	defaultWriteQueue   = 4096
	persistRetryBackoff = 500 * time.Millisecond
)

func convHistoryKey(threadID string) string { return "conv_history:" + threadID }

type convWrite struct {
	threadID string
	msgs     []model.Message
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Writes     int64 `json:"writes"`
	Dropped    int64 `json:"dropped"`
	QueueDepth int   `json:"queue_depth"`
}

// ConversationCache is a read-through Redis cache over the durable Store
// with write-behind persistence. Appends update the cache synchronously
// and enqueue the durable write on a bounded queue; when the queue is
// full the oldest pending write is dropped so appends never block.
type ConversationCache struct {
	client *redis.Client
	store  Store
	ttl    time.Duration

	queue  chan convWrite
	mu     sync.Mutex // guards the queue lifecycle: enqueue, drop-oldest and close
	owners map[string]string
	done   chan struct{}
	closed atomic.Bool

	hits    atomic.Int64
	misses  atomic.Int64
	writes  atomic.Int64
	dropped atomic.Int64
}

// ConvCacheOption configures the cache.
type ConvCacheOption func(*ConversationCache)

// WithConvTTL overrides the default 6h cache TTL.
func WithConvTTL(ttl time.Duration) ConvCacheOption {
	return func(c *ConversationCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithWriteQueueSize overrides the pending-write queue capacity.
func WithWriteQueueSize(n int) ConvCacheOption {
	return func(c *ConversationCache) {
		if n > 0 {
			c.queue = make(chan convWrite, n)
		}
	}
}

// NewConversationCache creates the cache and starts its persistence worker.
func NewConversationCache(client *redis.Client, store Store, opts ...ConvCacheOption) *ConversationCache {
	c := &ConversationCache{
		client: client,
		store:  store,
		ttl:    defaultConvTTL,
		queue:  make(chan convWrite, defaultWriteQueue),
		owners: make(map[string]string),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.persistLoop()
	return c
}

// CreateThread writes through to the durable store and remembers the
// owner, so a write-behind retry that has to recreate the thread keeps
// it attributed to the right user.
func (c *ConversationCache) CreateThread(ctx context.Context, userID, threadID string) error {
	c.mu.Lock()
	c.owners[threadID] = userID
	c.mu.Unlock()
	return c.store.CreateThread(ctx, userID, threadID)
}

// GetMessages returns the thread history, reading through to the durable
// store on a cache miss and populating the cache afterwards.
func (c *ConversationCache) GetMessages(ctx context.Context, threadID string) ([]model.Message, error) {
	raw, err := c.client.Get(ctx, convHistoryKey(threadID)).Result()
	if err == nil {
		var msgs []model.Message
		if err := json.Unmarshal([]byte(raw), &msgs); err == nil {
			c.hits.Add(1)
			return msgs, nil
		}
	}
	c.misses.Add(1)
	msgs, err := c.store.GetMessages(ctx, threadID)
	if err != nil {
		return nil, err
	}
	c.setCache(ctx, threadID, msgs)
	return msgs, nil
}

// AppendMessages updates the cached history synchronously and enqueues the
// durable write. The call never blocks on the store.
func (c *ConversationCache) AppendMessages(ctx context.Context, threadID string, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	history, err := c.GetMessages(ctx, threadID)
	if err != nil && !errors.Is(err, ErrThreadNotFound) {
		return err
	}
	history = append(history, msgs...)
	c.setCache(ctx, threadID, history)
	c.enqueue(convWrite{threadID: threadID, msgs: msgs})
	return nil
}

// InvalidateThread drops the cached history, e.g. on thread delete.
func (c *ConversationCache) InvalidateThread(ctx context.Context, threadID string) {
	_ = c.client.Del(ctx, convHistoryKey(threadID)).Err()
}

// Stats returns a counter snapshot.
func (c *ConversationCache) Stats() CacheStats {
	return CacheStats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Writes:     c.writes.Load(),
		Dropped:    c.dropped.Load(),
		QueueDepth: len(c.queue),
	}
}

// Close drains the pending-write queue and stops the worker. The lock
// serializes the close against in-flight enqueues, which otherwise could
// pass the closed check and send on a closed channel.
func (c *ConversationCache) Close() {
	c.mu.Lock()
	if c.closed.Swap(true) {
		c.mu.Unlock()
		return
	}
	close(c.queue)
	c.mu.Unlock()
	<-c.done
}

func (c *ConversationCache) setCache(ctx context.Context, threadID string, msgs []model.Message) {
	payload, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, convHistoryKey(threadID), payload, c.ttl).Err(); err != nil {
		log.Warnf("conversation cache write for thread %s failed: %v", threadID, err)
	}
}

func (c *ConversationCache) enqueue(w convWrite) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		c.dropped.Add(1)
		return
	}
	for {
		select {
		case c.queue <- w:
			return
		default:
		}
		// Queue full: drop the oldest pending write to make room.
		select {
		case old := <-c.queue:
			c.dropped.Add(1)
			log.Warnf("conversation write queue full, dropping %d pending messages for thread %s",
				len(old.msgs), old.threadID)
		default:
		}
	}
}

func (c *ConversationCache) owner(threadID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owners[threadID]
}

func (c *ConversationCache) persistLoop() {
	defer close(c.done)
	for w := range c.queue {
		c.persist(w)
	}
}

func (c *ConversationCache) persist(w convWrite) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := c.store.AppendMessages(ctx, w.threadID, w.msgs)
	if errors.Is(err, ErrThreadNotFound) {
		if err = c.store.CreateThread(ctx, c.owner(w.threadID), w.threadID); err == nil {
			err = c.store.AppendMessages(ctx, w.threadID, w.msgs)
		}
	}
	if err != nil {
		// One retry after a short pause, then give up; the cache still
		// holds the history for the TTL.
		time.Sleep(persistRetryBackoff)
		if err = c.store.AppendMessages(ctx, w.threadID, w.msgs); err != nil {
			log.Errorf("persist conversation for thread %s failed: %v", w.threadID, err)
			return
		}
	}
	c.writes.Add(1)
}

// String implements fmt.Stringer for debug logging.
func (s CacheStats) String() string {
	return fmt.Sprintf("hits=%d misses=%d writes=%d dropped=%d queue=%d",
		s.Hits, s.Misses, s.Writes, s.Dropped, s.QueueDepth)
}
