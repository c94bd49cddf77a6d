//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

// Package memory implements the conversation memory stack: rolling
// summaries, sliding windows, cross-session semantic memory, checkpoint
// persistence and the write-behind conversation cache.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/papermind/papermind/model"
)

// ErrThreadNotFound is returned when a thread id is unknown.
var ErrThreadNotFound = errors.New("memory: thread not found")

// ThreadInfo describes one conversation thread.
type ThreadInfo struct {
	ThreadID     string    `json:"thread_id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is the durable conversation log. The relational backend lives
// outside the core; this interface is its minimum surface.
type Store interface {
	CreateThread(ctx context.Context, userID, threadID string) error
	GetThread(ctx context.Context, threadID string) (*ThreadInfo, error)
	ListThreads(ctx context.Context, userID string) ([]*ThreadInfo, error)
	AppendMessages(ctx context.Context, threadID string, msgs []model.Message) error
	GetMessages(ctx context.Context, threadID string) ([]model.Message, error)
	DeleteThread(ctx context.Context, threadID string) error
}

// InMemoryStore is a Store for tests and single-process deployments.
type InMemoryStore struct {
	mu       sync.RWMutex
	threads  map[string]*ThreadInfo
	messages map[string][]model.Message
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		threads:  make(map[string]*ThreadInfo),
		messages: make(map[string][]model.Message),
	}
}

// CreateThread implements Store. Creating an existing thread is a no-op.
func (s *InMemoryStore) CreateThread(ctx context.Context, userID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[threadID]; ok {
		return nil
	}
	now := time.Now()
	s.threads[threadID] = &ThreadInfo{
		ThreadID:  threadID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

// GetThread implements Store.
func (s *InMemoryStore) GetThread(ctx context.Context, threadID string) (*ThreadInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.threads[threadID]
	if !ok {
		return nil, ErrThreadNotFound
	}
	cp := *info
	return &cp, nil
}

// ListThreads implements Store, newest first.
func (s *InMemoryStore) ListThreads(ctx context.Context, userID string) ([]*ThreadInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ThreadInfo
	for _, info := range s.threads {
		if info.UserID == userID {
			cp := *info
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// AppendMessages implements Store.
func (s *InMemoryStore) AppendMessages(ctx context.Context, threadID string, msgs []model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.threads[threadID]
	if !ok {
		return ErrThreadNotFound
	}
	s.messages[threadID] = append(s.messages[threadID], msgs...)
	info.MessageCount = len(s.messages[threadID])
	info.UpdatedAt = time.Now()
	if info.Title == "" {
		for _, m := range msgs {
			if m.Role == model.RoleUser {
				info.Title = firstLine(m.Content, 80)
				break
			}
		}
	}
	return nil
}

// GetMessages implements Store.
func (s *InMemoryStore) GetMessages(ctx context.Context, threadID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.threads[threadID]; !ok {
		return nil, ErrThreadNotFound
	}
	msgs := s.messages[threadID]
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// DeleteThread implements Store. Deleting a missing thread is a no-op.
func (s *InMemoryStore) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	delete(s.messages, threadID)
	return nil
}

func firstLine(s string, max int) string {
	for i, r := range s {
		if r == '\n' || i >= max {
			return s[:i]
		}
	}
	return s
}
