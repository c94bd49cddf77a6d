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
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/papermind/papermind/chunking"
	"github.com/papermind/papermind/index"
	"github.com/papermind/papermind/log"
	"github.com/papermind/papermind/model"
)

// Memory entry types extracted from conversations.
const (
	MemoryUserPreference   = "user_preference"
	MemoryResearchInterest = "research_interest"
	MemoryKeyFinding       = "key_finding"
	MemoryTaskContext      = "task_context"
	MemoryFeedback         = "feedback"
)

// Semantic memory defaults.
const (
	DefaultImportanceThreshold = 0.7
	DefaultRecallTopK          = 5
)

var memoryTypeLabels = map[string]string{
	MemoryUserPreference:   "User preferences",
	MemoryResearchInterest: "Research interests",
	MemoryKeyFinding:       "Key findings",
	MemoryTaskContext:      "Task context",
	MemoryFeedback:         "Feedback",
}

const extractSystemPrompt = `You extract long-term memories from a research-assistant conversation.
Return a JSON object: {"memories": [{"type": "...", "content": "...", "importance": 0.0}]}.
Valid types: user_preference, research_interest, key_finding, task_context, feedback.
Importance is 0.0-1.0; only include facts worth remembering across sessions.
Content must be a single self-contained sentence. Return {"memories": []} when nothing qualifies.`

// Entry is one extracted long-term memory.
type Entry struct {
	Type       string  `json:"type"`
	Content    string  `json:"content"`
	Importance float64 `json:"importance"`
}

// SemanticMemory extracts durable facts from conversations and recalls
// them by embedding similarity. Entries live in the dense index under the
// per-user memory namespace, invisible to unscoped paper search.
type SemanticMemory struct {
	model     model.Model
	dual      *index.DualIndex
	threshold float64
	topK      int
}

// SemanticOption configures SemanticMemory.
type SemanticOption func(*SemanticMemory)

// WithImportanceThreshold sets the minimum importance to persist.
func WithImportanceThreshold(t float64) SemanticOption {
	return func(m *SemanticMemory) {
		if t > 0 {
			m.threshold = t
		}
	}
}

// WithRecallTopK sets the number of entries recalled per query.
func WithRecallTopK(k int) SemanticOption {
	return func(m *SemanticMemory) {
		if k > 0 {
			m.topK = k
		}
	}
}

// NewSemanticMemory creates a SemanticMemory.
func NewSemanticMemory(m model.Model, dual *index.DualIndex, opts ...SemanticOption) *SemanticMemory {
	sm := &SemanticMemory{
		model:     m,
		dual:      dual,
		threshold: DefaultImportanceThreshold,
		topK:      DefaultRecallTopK,
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// Extract runs the extraction model over recent messages and persists the
// entries that clear the importance threshold. Returns the stored entries.
func (m *SemanticMemory) Extract(ctx context.Context, userID string, msgs []model.Message) ([]Entry, error) {
	if m.model == nil || len(msgs) == 0 {
		return nil, nil
	}
	var b strings.Builder
	for _, msg := range msgs {
		if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	if b.Len() == 0 {
		return nil, nil
	}
	ch, err := m.model.GenerateContent(ctx, &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage(extractSystemPrompt),
			model.NewUserMessage(b.String()),
		},
		Temperature:  model.FloatPtr(0.1),
		MaxTokens:    model.IntPtr(1000),
		JSONResponse: true,
	})
	if err != nil {
		return nil, fmt.Errorf("memory extraction: %w", err)
	}
	var content string
	for rsp := range ch {
		if rsp.Err != nil {
			return nil, fmt.Errorf("memory extraction: %w", rsp.Err)
		}
		if rsp.IsFinal {
			content = rsp.Content
		}
	}
	var parsed struct {
		Memories []Entry `json:"memories"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("decode extracted memories: %w", err)
	}
	var stored []Entry
	for _, entry := range parsed.Memories {
		if entry.Importance < m.threshold || strings.TrimSpace(entry.Content) == "" {
			continue
		}
		if _, ok := memoryTypeLabels[entry.Type]; !ok {
			entry.Type = MemoryTaskContext
		}
		if err := m.store(ctx, userID, entry); err != nil {
			log.Warnf("store memory for user %s failed: %v", userID, err)
			continue
		}
		stored = append(stored, entry)
	}
	return stored, nil
}

func (m *SemanticMemory) store(ctx context.Context, userID string, entry Entry) error {
	paperID := index.MemoryPaperID(userID)
	vectors, err := m.dual.Embedder().Embed(ctx, []string{entry.Content})
	if err != nil {
		return fmt.Errorf("embed memory: %w", err)
	}
	chunk := chunking.Chunk{
		PaperID:     paperID,
		ChunkID:     paperID + "#" + uuid.NewString(),
		Content:     entry.Content,
		SectionType: entry.Type,
		Chars:       len([]rune(entry.Content)),
	}
	meta := index.PaperMeta{
		PaperID:    paperID,
		Title:      memoryTypeLabels[entry.Type],
		UploadTime: time.Now().Format(time.RFC3339),
	}
	return m.dual.IndexMemory(ctx, meta, []chunking.Chunk{chunk}, vectors)
}

// Recall returns up to topK memories similar to the query, as a context
// block grouped by memory type. Returns "" when nothing is stored or the
// lookup fails; recall never blocks a conversation.
func (m *SemanticMemory) Recall(ctx context.Context, userID, query string) string {
	if m.dual == nil || strings.TrimSpace(query) == "" {
		return ""
	}
	results, err := m.dual.DenseSearch(ctx, query, m.topK, index.MemoryPaperID(userID))
	if err != nil {
		log.Debugf("memory recall for user %s failed: %v", userID, err)
		return ""
	}
	if len(results) == 0 {
		return ""
	}
	grouped := make(map[string][]string)
	var order []string
	for _, r := range results {
		label, ok := memoryTypeLabels[r.SectionType]
		if !ok {
			label = memoryTypeLabels[MemoryTaskContext]
		}
		if _, seen := grouped[label]; !seen {
			order = append(order, label)
		}
		grouped[label] = append(grouped[label], r.Content)
	}
	var b strings.Builder
	b.WriteString("What you remember about this user:\n")
	for _, label := range order {
		fmt.Fprintf(&b, "%s:\n", label)
		for _, content := range grouped[label] {
			fmt.Fprintf(&b, "- %s\n", content)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Forget removes every memory stored for the user.
func (m *SemanticMemory) Forget(ctx context.Context, userID string) error {
	return m.dual.DeletePaper(ctx, index.MemoryPaperID(userID))
}
