//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package bm25

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papermind/papermind/chunking"
	"github.com/papermind/papermind/index"
)

func TestTokenizeEnglish(t *testing.T) {
	tokens := Tokenize("The Transformer uses self-attention, a powerful mechanism!")
	assert.Contains(t, tokens, "transformer")
	assert.Contains(t, tokens, "attention")
	assert.Contains(t, tokens, "mechanism")
	// Single-character latin tokens are dropped.
	assert.NotContains(t, tokens, "a")
}

func TestTokenizeCJK(t *testing.T) {
	tokens := Tokenize("注意力机制")
	assert.Contains(t, tokens, "注意")
	assert.Contains(t, tokens, "意力")
	assert.Contains(t, tokens, "机制")
	assert.Contains(t, tokens, "注")
}

func TestTokenizeMixed(t *testing.T) {
	tokens := Tokenize("使用transformer模型")
	assert.Contains(t, tokens, "transformer")
	assert.Contains(t, tokens, "使用")
	assert.Contains(t, tokens, "模型")
}

func makeChunks(paperID string, contents ...string) []chunking.Chunk {
	chunks := make([]chunking.Chunk, len(contents))
	for i, c := range contents {
		chunks[i] = chunking.Chunk{
			PaperID: paperID,
			ChunkID: chunking.ChunkID(paperID, i),
			Index:   i,
			Content: c,
		}
	}
	return chunks
}

func TestSearchPaperScoped(t *testing.T) {
	idx := New()
	idx.Add(index.PaperMeta{PaperID: "p1", Title: "T1"},
		makeChunks("p1",
			"transformers rely on attention mechanisms",
			"convolutional networks process images",
		))

	results := idx.Search("attention mechanism", 10, "p1")
	require.NotEmpty(t, results)
	assert.Equal(t, "p1#0", results[0].ChunkID)
	assert.Greater(t, results[0].Score, 0.0)
	assert.Equal(t, "T1", results[0].Title)
}

func TestSearchGlobalAndRanking(t *testing.T) {
	idx := New()
	idx.Add(index.PaperMeta{PaperID: "p1"}, makeChunks("p1",
		"attention attention attention everywhere",
		"nothing relevant here at all",
	))
	idx.Add(index.PaperMeta{PaperID: "p2"}, makeChunks("p2",
		"attention is mentioned once only",
	))

	results := idx.Search("attention", 10, "")
	require.Len(t, results, 2)
	assert.Equal(t, "p1#0", results[0].ChunkID)
}

func TestSearchTopKTruncation(t *testing.T) {
	idx := New()
	contents := make([]string, 8)
	for i := range contents {
		contents[i] = fmt.Sprintf("retrieval systems and ranking functions part %d", i)
	}
	idx.Add(index.PaperMeta{PaperID: "p1"}, makeChunks("p1", contents...))

	results := idx.Search("retrieval ranking", 3, "")
	assert.Len(t, results, 3)
}

func TestRemoveRebuildsGlobal(t *testing.T) {
	idx := New()
	idx.Add(index.PaperMeta{PaperID: "p1"}, makeChunks("p1", "quantum entanglement experiments"))
	idx.Add(index.PaperMeta{PaperID: "p2"}, makeChunks("p2", "gradient descent optimization"))
	require.Equal(t, 2, idx.Len())
	require.True(t, idx.HasChunk("p1#0"))

	idx.Remove("p1")
	assert.Equal(t, 1, idx.Len())
	assert.False(t, idx.HasChunk("p1#0"))
	assert.Empty(t, idx.Search("quantum entanglement", 10, ""))
	assert.Empty(t, idx.Search("anything", 10, "p1"))
	assert.NotEmpty(t, idx.Search("gradient descent", 10, ""))
}

func TestClear(t *testing.T) {
	idx := New()
	idx.Add(index.PaperMeta{PaperID: "p1"}, makeChunks("p1", "some searchable text"))
	idx.Clear()
	assert.Equal(t, 0, idx.Len())
	assert.Empty(t, idx.Search("searchable", 10, ""))
}

func TestSearchCJKQuery(t *testing.T) {
	idx := New()
	idx.Add(index.PaperMeta{PaperID: "p1"}, makeChunks("p1",
		"注意力机制是神经网络的核心组件",
		"卷积网络擅长处理图像数据",
	))
	results := idx.Search("注意力机制", 10, "p1")
	require.NotEmpty(t, results)
	assert.Equal(t, "p1#0", results[0].ChunkID)
}

func TestSearchEmptyQueryAndUnknownPaper(t *testing.T) {
	idx := New()
	idx.Add(index.PaperMeta{PaperID: "p1"}, makeChunks("p1", "content body"))
	assert.Empty(t, idx.Search("", 10, ""))
	assert.Empty(t, idx.Search("content", 0, ""))
	assert.Empty(t, idx.Search("content", 10, "missing"))
}
