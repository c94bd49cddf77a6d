//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package memory

import (
	"context"

	"github.com/papermind/papermind/log"
	"github.com/papermind/papermind/model"
)

// PreparedContext is what the agent receives before a turn: the windowed
// history plus the summary and recalled memories to fold into the system
// prompt.
type PreparedContext struct {
	Messages    []model.Message
	Summary     string
	UserContext string
}

// Manager composes the memory tiers. Each tier degrades to empty output
// on failure; preparing context never fails a conversation.
type Manager struct {
	summarizer *Summarizer
	window     Window
	semantic   *SemanticMemory
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithSummarizer sets the rolling-summary tier.
func WithSummarizer(s *Summarizer) ManagerOption {
	return func(m *Manager) { m.summarizer = s }
}

// WithWindow sets the sliding-window tier.
func WithWindow(w Window) ManagerOption {
	return func(m *Manager) { m.window = w }
}

// WithSemanticMemory sets the cross-session memory tier.
func WithSemanticMemory(sm *SemanticMemory) ManagerOption {
	return func(m *Manager) { m.semantic = sm }
}

// NewManager creates a Manager. Tiers left unset are skipped.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PrepareContext runs summary -> window -> recall over the thread history.
func (m *Manager) PrepareContext(ctx context.Context, threadID, userID, query string, msgs []model.Message) *PreparedContext {
	out := &PreparedContext{Messages: msgs}
	if m.summarizer != nil {
		out.Summary = m.summarizer.MaybeSummarize(ctx, threadID, msgs)
	}
	if m.window != nil {
		out.Messages = m.window.Apply(msgs)
		if len(out.Messages) != len(msgs) {
			log.Debugf("window trimmed thread %s: %s", threadID, describeWindow(msgs, out.Messages))
		}
	}
	if m.semantic != nil && userID != "" {
		out.UserContext = m.semantic.Recall(ctx, userID, query)
	}
	return out
}

// ExtractMemories runs post-turn memory extraction. Failures are logged,
// never surfaced; the turn is already over when this runs.
func (m *Manager) ExtractMemories(ctx context.Context, userID string, msgs []model.Message) {
	if m.semantic == nil || userID == "" {
		return
	}
	if _, err := m.semantic.Extract(ctx, userID, msgs); err != nil {
		log.Warnf("memory extraction for user %s failed: %v", userID, err)
	}
}

// Invalidate clears per-thread derived state on thread delete.
func (m *Manager) Invalidate(ctx context.Context, threadID string) {
	if m.summarizer != nil {
		m.summarizer.Invalidate(ctx, threadID)
	}
}
