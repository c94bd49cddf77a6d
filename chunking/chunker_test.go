//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papermind/papermind/parser"
)

func TestChunkTextEmpty(t *testing.T) {
	c := New()
	assert.Nil(t, c.ChunkText("p1", ""))
	assert.Nil(t, c.ChunkText("p1", "   \n\t  "))
}

func TestChunkTextSmallIsSingleCompleteChunk(t *testing.T) {
	c := New()
	chunks := c.ChunkText("p1", "a short paragraph about transformers")
	require.Len(t, chunks, 1)
	assert.Equal(t, "p1#0", chunks[0].ChunkID)
	assert.Equal(t, 0, chunks[0].Index)
	assert.True(t, chunks[0].IsCompleteSection)
	assert.Equal(t, chunks[0].Chars, len([]rune(chunks[0].Content)))
}

func TestChunkTextParagraphSplit(t *testing.T) {
	para := strings.Repeat("word ", 120) // ~600 chars
	text := para + "\n\n" + para + "\n\n" + para
	c := New(WithMaxChunkSize(1000), WithChunkOverlap(100))
	chunks := c.ChunkText("p1", text)

	require.Greater(t, len(chunks), 1)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.LessOrEqual(t, ch.Chars, 1000)
		assert.False(t, ch.IsCompleteSection)
	}
}

func TestChunkOverlapCarried(t *testing.T) {
	sentence := strings.Repeat("alpha beta gamma delta. ", 30) // ~720 chars
	text := sentence + sentence
	c := New(WithMaxChunkSize(800), WithChunkOverlap(50))
	chunks := c.ChunkText("p1", text)
	require.Greater(t, len(chunks), 1)

	// Each follow-up chunk starts with the tail of its predecessor.
	first := chunks[0].Content
	tail := first[len(first)-20:]
	assert.Contains(t, chunks[1].Content, strings.TrimSpace(tail))
}

func TestHardSplitTinyMax(t *testing.T) {
	c := New(WithMaxChunkSize(1), WithChunkOverlap(0), WithMinChunkSize(0))
	chunks := c.ChunkText("p1", "abc")
	require.Len(t, chunks, 3)
	assert.Equal(t, "a", chunks[0].Content)
	assert.Equal(t, "c", chunks[2].Content)
}

func TestHardSplitNoSeparators(t *testing.T) {
	text := strings.Repeat("x", 2500)
	c := New(WithMaxChunkSize(1000), WithChunkOverlap(100))
	chunks := c.ChunkText("p1", text)
	require.GreaterOrEqual(t, len(chunks), 3)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.Chars, 1000)
	}
}

func TestChunkCJKText(t *testing.T) {
	text := strings.Repeat("注意力机制是一种重要的神经网络组件。", 80)
	c := New(WithMaxChunkSize(200), WithChunkOverlap(20))
	chunks := c.ChunkText("p1", text)
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len([]rune(ch.Content)), 200)
	}
}

func TestChunkStructureWalk(t *testing.T) {
	s := &parser.Structure{
		Title:    "A Paper",
		Abstract: "This paper studies retrieval.",
		Sections: []parser.Section{
			{
				Type:    parser.SectionIntroduction,
				Title:   "Introduction",
				Content: "Intro body.",
			},
			{
				Type:    parser.SectionMethods,
				Title:   "Methods",
				Content: "Methods overview.",
				Subsections: []parser.Section{
					{Type: parser.SectionMethods, Title: "Data Collection", Content: "We collected data."},
					{Type: parser.SectionMethods, Title: "Empty Sub", Content: "   "},
				},
			},
		},
	}
	c := New()
	chunks := c.ChunkStructure("p1", s)

	require.Len(t, chunks, 4)
	// Ordinals are dense 0..N-1 in reading order.
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, ChunkID("p1", i), ch.ChunkID)
	}
	assert.Equal(t, parser.SectionAbstract, chunks[0].SectionType)
	assert.Equal(t, "Introduction", chunks[1].HierarchyPath)
	assert.Equal(t, "Methods", chunks[2].HierarchyPath)
	assert.Equal(t, "Methods > Data Collection", chunks[3].HierarchyPath)
	// The empty subsection contributed nothing.
	for _, ch := range chunks {
		assert.NotEqual(t, "Empty Sub", ch.SectionTitle)
	}
}

func TestChunkStructureCompleteSectionFlag(t *testing.T) {
	long := strings.Repeat("sentence one. ", 200) // well over 1000 chars
	s := &parser.Structure{
		Sections: []parser.Section{
			{Type: parser.SectionIntroduction, Title: "Intro", Content: "short body"},
			{Type: parser.SectionMethods, Title: "Methods", Content: long},
		},
	}
	chunks := New().ChunkStructure("p1", s)
	require.Greater(t, len(chunks), 2)
	assert.True(t, chunks[0].IsCompleteSection)
	for _, ch := range chunks[1:] {
		assert.False(t, ch.IsCompleteSection)
	}
}

func TestHierarchyPathTruncated(t *testing.T) {
	deepTitle := strings.Repeat("Very Long Section Title ", 20)
	s := &parser.Structure{
		Sections: []parser.Section{
			{Type: parser.SectionOther, Title: deepTitle, Content: "body"},
		},
	}
	chunks := New().ChunkStructure("p1", s)
	require.Len(t, chunks, 1)
	assert.LessOrEqual(t, len([]rune(chunks[0].HierarchyPath)), 200)
}
