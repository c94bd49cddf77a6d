//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papermind/papermind/chunking"
	"github.com/papermind/papermind/index"
	"github.com/papermind/papermind/model"
)

type fakeDense struct {
	inserted map[string][]index.SearchResult
}

func newFakeDense() *fakeDense {
	return &fakeDense{inserted: make(map[string][]index.SearchResult)}
}

func (f *fakeDense) EnsureCollection(ctx context.Context) error { return nil }

func (f *fakeDense) Insert(ctx context.Context, meta index.PaperMeta, chunks []chunking.Chunk, vectors [][]float64) error {
	for _, ch := range chunks {
		f.inserted[meta.PaperID] = append(f.inserted[meta.PaperID], index.SearchResult{
			PaperID:     ch.PaperID,
			ChunkID:     ch.ChunkID,
			Content:     ch.Content,
			SectionType: ch.SectionType,
		})
	}
	return nil
}

func (f *fakeDense) Search(ctx context.Context, vector []float64, k int, paperID string) ([]index.SearchResult, error) {
	rows := f.inserted[paperID]
	if len(rows) > k {
		rows = rows[:k]
	}
	return rows, nil
}

func (f *fakeDense) DeleteByPaper(ctx context.Context, paperID string) error {
	delete(f.inserted, paperID)
	return nil
}

func (f *fakeDense) Stats(ctx context.Context) (int64, error) { return 0, nil }

type fakeSparse struct{}

func (fakeSparse) Add(meta index.PaperMeta, chunks []chunking.Chunk)            {}
func (fakeSparse) Remove(paperID string)                                       {}
func (fakeSparse) Search(query string, k int, paperID string) []index.SearchResult { return nil }
func (fakeSparse) HasChunk(chunkID string) bool                                    { return false }
func (fakeSparse) Clear()                                                      {}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range out {
		out[i] = []float64{0.5, 0.5}
	}
	return out, nil
}
func (fakeEmbedder) Dimensions() int { return 2 }

const extractionJSON = `{"memories": [
	{"type": "research_interest", "content": "User studies efficient attention mechanisms.", "importance": 0.9},
	{"type": "user_preference", "content": "User prefers answers in Chinese.", "importance": 0.8},
	{"type": "task_context", "content": "Mentioned the weather once.", "importance": 0.2}
]}`

func TestSemanticMemoryExtractFiltersByImportance(t *testing.T) {
	dense := newFakeDense()
	dual := index.NewDual(dense, fakeSparse{}, fakeEmbedder{})
	sm := NewSemanticMemory(&fakeModel{out: extractionJSON}, dual)

	stored, err := sm.Extract(context.Background(), "u1", []model.Message{
		model.NewUserMessage("tell me about flash attention"),
		model.NewAssistantMessage("flash attention tiles the softmax computation"),
	})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, MemoryResearchInterest, stored[0].Type)
	assert.Len(t, dense.inserted[index.MemoryPaperID("u1")], 2)
}

func TestSemanticMemoryExtractUnknownTypeClamped(t *testing.T) {
	dense := newFakeDense()
	dual := index.NewDual(dense, fakeSparse{}, fakeEmbedder{})
	out := `{"memories": [{"type": "mystery", "content": "Something important.", "importance": 0.95}]}`
	sm := NewSemanticMemory(&fakeModel{out: out}, dual)

	stored, err := sm.Extract(context.Background(), "u1", []model.Message{
		model.NewUserMessage("hi"),
	})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, MemoryTaskContext, stored[0].Type)
}

func TestSemanticMemoryExtractBadJSON(t *testing.T) {
	dual := index.NewDual(newFakeDense(), fakeSparse{}, fakeEmbedder{})
	sm := NewSemanticMemory(&fakeModel{out: "not json"}, dual)

	_, err := sm.Extract(context.Background(), "u1", []model.Message{
		model.NewUserMessage("hi"),
	})
	assert.Error(t, err)
}

func TestSemanticMemoryRecallGroupsByType(t *testing.T) {
	dense := newFakeDense()
	dual := index.NewDual(dense, fakeSparse{}, fakeEmbedder{})
	sm := NewSemanticMemory(&fakeModel{out: extractionJSON}, dual)
	ctx := context.Background()

	_, err := sm.Extract(ctx, "u1", []model.Message{model.NewUserMessage("hi")})
	require.NoError(t, err)

	block := sm.Recall(ctx, "u1", "what do I like?")
	require.NotEmpty(t, block)
	assert.True(t, strings.HasPrefix(block, "What you remember about this user:"))
	assert.Contains(t, block, "Research interests:")
	assert.Contains(t, block, "- User studies efficient attention mechanisms.")
	assert.Contains(t, block, "User preferences:")
}

func TestSemanticMemoryRecallEmpty(t *testing.T) {
	dual := index.NewDual(newFakeDense(), fakeSparse{}, fakeEmbedder{})
	sm := NewSemanticMemory(&fakeModel{out: "{}"}, dual)

	assert.Empty(t, sm.Recall(context.Background(), "u1", "anything"))
	assert.Empty(t, sm.Recall(context.Background(), "u1", "  "))
}

func TestSemanticMemoryForget(t *testing.T) {
	dense := newFakeDense()
	dual := index.NewDual(dense, fakeSparse{}, fakeEmbedder{})
	sm := NewSemanticMemory(&fakeModel{out: extractionJSON}, dual)
	ctx := context.Background()

	_, err := sm.Extract(ctx, "u1", []model.Message{model.NewUserMessage("hi")})
	require.NoError(t, err)
	require.NoError(t, sm.Forget(ctx, "u1"))
	assert.Empty(t, sm.Recall(ctx, "u1", "anything"))
}

func TestManagerPrepareContext(t *testing.T) {
	dense := newFakeDense()
	dual := index.NewDual(dense, fakeSparse{}, fakeEmbedder{})
	sm := NewSemanticMemory(&fakeModel{out: extractionJSON}, dual)
	ctx := context.Background()
	_, err := sm.Extract(ctx, "u1", []model.Message{model.NewUserMessage("hi")})
	require.NoError(t, err)

	summarizer := NewSummarizer(&fakeModel{out: "a running summary"}, newTestRedis(t), WithSummaryWindow(5))
	mgr := NewManager(
		WithSummarizer(summarizer),
		WithWindow(NewSimpleWindow(2)),
		WithSemanticMemory(sm),
	)

	prepared := mgr.PrepareContext(ctx, "t1", "u1", "attention", conversation(25))
	assert.Equal(t, "a running summary", prepared.Summary)
	assert.Len(t, prepared.Messages, 6)
	assert.Contains(t, prepared.UserContext, "Research interests:")
}
