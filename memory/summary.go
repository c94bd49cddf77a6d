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
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/papermind/papermind/log"
	"github.com/papermind/papermind/model"
)

// Summarizer defaults.
const (
	DefaultSummaryThreshold = 20
	DefaultWindowSize       = 10
	defaultSummaryTTL       = 24 * time.Hour
)

const summarySystemPrompt = "You summarize research-assistant conversations. " +
	"Merge the prior summary (if any) with the new messages into a single summary " +
	"of at most 3 sentences. Keep paper titles, key findings and the user's goals. " +
	"Return only the summary text."

func summaryKey(threadID string) string     { return "summary:" + threadID }
func summaryMetaKey(threadID string) string { return "summary_meta:" + threadID }

type summaryMeta struct {
	MessageCount int       `json:"message_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summarizer maintains the rolling per-thread conversation summary.
// Summaries are cached in Redis and merged incrementally: each refresh
// feeds the model only the messages that arrived since the last one.
type Summarizer struct {
	model     model.Model
	client    *redis.Client
	threshold int
	window    int
	ttl       time.Duration
}

// SummarizerOption configures the Summarizer.
type SummarizerOption func(*Summarizer)

// WithSummaryThreshold sets the message count that triggers summarization.
func WithSummaryThreshold(n int) SummarizerOption {
	return func(s *Summarizer) {
		if n > 0 {
			s.threshold = n
		}
	}
}

// WithSummaryWindow sets the window size used to compute the cutoff.
func WithSummaryWindow(n int) SummarizerOption {
	return func(s *Summarizer) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithSummaryTTL sets the cache TTL.
func WithSummaryTTL(ttl time.Duration) SummarizerOption {
	return func(s *Summarizer) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(m model.Model, client *redis.Client, opts ...SummarizerOption) *Summarizer {
	s := &Summarizer{
		model:     m,
		client:    client,
		threshold: DefaultSummaryThreshold,
		window:    DefaultWindowSize,
		ttl:       defaultSummaryTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summary returns the cached summary, or "" when none exists.
func (s *Summarizer) Summary(ctx context.Context, threadID string) string {
	val, err := s.client.Get(ctx, summaryKey(threadID)).Result()
	if err != nil {
		return ""
	}
	return val
}

// MaybeSummarize refreshes the rolling summary when the thread has grown
// past the threshold. Everything before the last 2 x window messages is
// folded into the summary; the recent tail is left for the sliding window.
// Returns the current summary (possibly unchanged).
func (s *Summarizer) MaybeSummarize(ctx context.Context, threadID string, msgs []model.Message) string {
	current := s.Summary(ctx, threadID)
	if len(msgs) <= s.threshold {
		return current
	}
	cutoff := len(msgs) - 2*s.window
	if cutoff <= 0 {
		return current
	}
	meta := s.meta(ctx, threadID)
	if cutoff <= meta.MessageCount {
		// Nothing new below the cutoff since the last refresh.
		return current
	}
	delta := msgs[meta.MessageCount:cutoff]
	updated, err := s.summarize(ctx, current, delta)
	if err != nil {
		log.Warnf("summary refresh for thread %s failed: %v", threadID, err)
		return current
	}
	metaJSON, _ := json.Marshal(summaryMeta{MessageCount: cutoff, UpdatedAt: time.Now()})
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, summaryKey(threadID), updated, s.ttl)
	pipe.Set(ctx, summaryMetaKey(threadID), metaJSON, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warnf("summary cache write for thread %s failed: %v", threadID, err)
	}
	return updated
}

// Invalidate drops the cached summary, e.g. on thread delete.
func (s *Summarizer) Invalidate(ctx context.Context, threadID string) {
	_ = s.client.Del(ctx, summaryKey(threadID), summaryMetaKey(threadID)).Err()
}

func (s *Summarizer) meta(ctx context.Context, threadID string) summaryMeta {
	var meta summaryMeta
	raw, err := s.client.Get(ctx, summaryMetaKey(threadID)).Result()
	if err != nil {
		return meta
	}
	_ = json.Unmarshal([]byte(raw), &meta)
	return meta
}

func (s *Summarizer) summarize(ctx context.Context, prior string, delta []model.Message) (string, error) {
	if s.model == nil {
		return "", errors.New("no model configured")
	}
	var b strings.Builder
	if prior != "" {
		fmt.Fprintf(&b, "Prior summary:\n%s\n\n", prior)
	}
	b.WriteString("New messages:\n")
	for _, msg := range delta {
		content := msg.Content
		if msg.Role == model.RoleTool {
			content = truncate(content, 200)
		}
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, content)
	}
	ch, err := s.model.GenerateContent(ctx, &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage(summarySystemPrompt),
			model.NewUserMessage(b.String()),
		},
		Temperature: model.FloatPtr(0.3),
		MaxTokens:   model.IntPtr(300),
	})
	if err != nil {
		return "", err
	}
	var content string
	for rsp := range ch {
		if rsp.Err != nil {
			return "", rsp.Err
		}
		if rsp.IsFinal {
			content = rsp.Content
		}
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errors.New("empty summary from model")
	}
	return content, nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
