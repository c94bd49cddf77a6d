//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package memory

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"

	"github.com/papermind/papermind/model"
)

// Token window defaults.
const (
	DefaultTokenBudget       = 8000
	defaultRecentToolResults = 5
)

// Window trims a message history down to a bounded context.
type Window interface {
	Apply(msgs []model.Message) []model.Message
}

// SimpleWindow keeps system messages, the first user message (the thread
// anchor) and the last 2 x size messages. Histories that already fit are
// returned unchanged.
type SimpleWindow struct {
	size int
}

var _ Window = (*SimpleWindow)(nil)

// NewSimpleWindow creates a SimpleWindow. size <= 0 uses the default.
func NewSimpleWindow(size int) *SimpleWindow {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &SimpleWindow{size: size}
}

// Apply implements Window.
func (w *SimpleWindow) Apply(msgs []model.Message) []model.Message {
	if len(msgs) <= 2*w.size {
		return msgs
	}
	var kept []model.Message
	firstUserTaken := false
	tailStart := len(msgs) - 2*w.size
	for i, m := range msgs {
		if i >= tailStart {
			break
		}
		switch {
		case m.Role == model.RoleSystem:
			kept = append(kept, m)
		case m.Role == model.RoleUser && !firstUserTaken:
			kept = append(kept, m)
			firstUserTaken = true
		}
	}
	return append(kept, msgs[tailStart:]...)
}

// TokenWindow trims by token budget, walking newest to oldest. System
// messages are always kept; among tool results only the most recent few
// count as protected, older ones are the first to go.
type TokenWindow struct {
	budget            int
	recentToolResults int
	codec             tokenizer.Codec
}

var _ Window = (*TokenWindow)(nil)

// NewTokenWindow creates a TokenWindow for the given model name. When the
// model has no known encoding, cl100k_base is used; when no codec can be
// loaded at all, counting falls back to a chars/3 approximation.
func NewTokenWindow(modelName string, budget int) *TokenWindow {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	w := &TokenWindow{budget: budget, recentToolResults: defaultRecentToolResults}
	codec, err := tokenizer.ForModel(tokenizer.Model(modelName))
	if err != nil {
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
	}
	if err == nil {
		w.codec = codec
	}
	return w
}

// Apply implements Window.
func (w *TokenWindow) Apply(msgs []model.Message) []model.Message {
	if len(msgs) == 0 {
		return msgs
	}
	total := 0
	costs := make([]int, len(msgs))
	for i, m := range msgs {
		costs[i] = w.countTokens(m)
		total += costs[i]
	}
	if total <= w.budget {
		return msgs
	}

	keep := make([]bool, len(msgs))
	used := 0
	// System messages survive unconditionally.
	for i, m := range msgs {
		if m.Role == model.RoleSystem {
			keep[i] = true
			used += costs[i]
		}
	}
	// Newest-first walk over the rest. Tool results beyond the most
	// recent few are skipped so conversational turns win the budget.
	toolSeen := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if keep[i] {
			continue
		}
		if msgs[i].Role == model.RoleTool {
			toolSeen++
			if toolSeen > w.recentToolResults {
				continue
			}
		}
		if used+costs[i] > w.budget {
			continue
		}
		keep[i] = true
		used += costs[i]
	}
	out := make([]model.Message, 0, len(msgs))
	for i, m := range msgs {
		if keep[i] {
			out = append(out, m)
		}
	}
	return out
}

func (w *TokenWindow) countTokens(m model.Message) int {
	text := m.Content
	for _, tc := range m.ToolCalls {
		text += tc.Name + string(tc.Arguments)
	}
	if w.codec != nil {
		if toks, _, err := w.codec.Encode(text); err == nil {
			// Small fixed overhead per message for role and framing.
			return len(toks) + 4
		}
	}
	return len(text)/3 + 4
}

// HybridWindow applies the simple count-based window first, then enforces
// the token budget on what remains.
type HybridWindow struct {
	simple *SimpleWindow
	token  *TokenWindow
}

var _ Window = (*HybridWindow)(nil)

// NewHybridWindow composes both window strategies.
func NewHybridWindow(size int, modelName string, budget int) *HybridWindow {
	return &HybridWindow{
		simple: NewSimpleWindow(size),
		token:  NewTokenWindow(modelName, budget),
	}
}

// Apply implements Window.
func (w *HybridWindow) Apply(msgs []model.Message) []model.Message {
	return w.token.Apply(w.simple.Apply(msgs))
}

// describeWindow is used in debug logs.
func describeWindow(before, after []model.Message) string {
	return fmt.Sprintf("%d -> %d messages", len(before), len(after))
}
