//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package ingest

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papermind/papermind/chunking"
	"github.com/papermind/papermind/index"
	"github.com/papermind/papermind/model"
	"github.com/papermind/papermind/parser"
)

type fakeDense struct {
	mu       sync.Mutex
	inserted map[string]int
}

func newFakeDense() *fakeDense { return &fakeDense{inserted: make(map[string]int)} }

func (f *fakeDense) EnsureCollection(ctx context.Context) error { return nil }
func (f *fakeDense) Insert(ctx context.Context, meta index.PaperMeta, chunks []chunking.Chunk, vectors [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted[meta.PaperID] += len(chunks)
	return nil
}
func (f *fakeDense) Search(ctx context.Context, vector []float64, k int, paperID string) ([]index.SearchResult, error) {
	return nil, nil
}
func (f *fakeDense) DeleteByPaper(ctx context.Context, paperID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inserted, paperID)
	return nil
}
func (f *fakeDense) Stats(ctx context.Context) (int64, error) { return 0, nil }

type fakeSparse struct{}

func (fakeSparse) Add(meta index.PaperMeta, chunks []chunking.Chunk)                {}
func (fakeSparse) Remove(paperID string)                                           {}
func (fakeSparse) Search(query string, k int, paperID string) []index.SearchResult { return nil }
func (fakeSparse) HasChunk(chunkID string) bool                                    { return false }
func (fakeSparse) Clear()                                                          {}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range out {
		out[i] = []float64{0.1}
	}
	return out, nil
}
func (fakeEmbedder) Dimensions() int { return 1 }

// failingModel forces the structure parser onto its rule-based path.
type failingModel struct{}

func (failingModel) Info() model.Info { return model.Info{Name: "down"} }
func (failingModel) GenerateContent(ctx context.Context, req *model.Request) (<-chan *model.Response, error) {
	return nil, assert.AnError
}

const paperText = `Deep Residual Learning

Abstract: We present residual networks that ease the training of deep models.

1. Introduction
Depth matters for vision tasks but plain networks degrade.

2. Methods
We add identity shortcuts every two layers.
`

func newTestPipeline(t *testing.T) (*Pipeline, *fakeDense, *Catalog) {
	t.Helper()
	dense := newFakeDense()
	catalog := NewCatalog()
	p, err := NewPipeline(
		parser.New(failingModel{}),
		index.NewDual(dense, fakeSparse{}, fakeEmbedder{}),
		catalog,
		WithWorkers(2),
	)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p, dense, catalog
}

func TestIngestIndexesAndCatalogs(t *testing.T) {
	p, dense, catalog := newTestPipeline(t)

	result, err := p.Ingest(context.Background(), Paper{
		PaperID:  "p1",
		FileName: "resnet.pdf",
		Text:     paperText,
	})
	require.NoError(t, err)
	assert.Positive(t, result.ChunkCount)
	assert.NotEmpty(t, result.Title)
	assert.Equal(t, result.ChunkCount, dense.inserted["p1"])

	metas, err := catalog.ListPapers(context.Background())
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "resnet.pdf", metas[0].FileName)

	content, err := catalog.PaperContent(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, paperText, content)
}

func TestIngestValidation(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	_, err := p.Ingest(context.Background(), Paper{PaperID: "", Text: "x"})
	assert.Error(t, err)
	_, err = p.Ingest(context.Background(), Paper{PaperID: "p1", Text: ""})
	assert.Error(t, err)
	_, err = p.Ingest(context.Background(), Paper{PaperID: "memory:u1", Text: "x"})
	assert.Error(t, err)
}

func TestIngestStructuredChunks(t *testing.T) {
	p, dense, catalog := newTestPipeline(t)

	result, err := p.Ingest(context.Background(), Paper{
		PaperID: "p1",
		Title:   "Deep Residual Learning",
		StructuredChunks: []StructuredChunk{
			{Content: "We present residual networks.", SectionType: "abstract", HierarchyPath: "Abstract"},
			{Content: "Depth matters for vision tasks.", SectionType: "introduction", HierarchyPath: "Introduction"},
			{Content: "We add identity shortcuts.", SectionType: "methods", HierarchyPath: "Methods"},
			{Content: "Shortcut granularity details.", SectionType: "methods", HierarchyPath: "Methods > Shortcuts"},
			{Content: ""},
		},
		Metadata: map[string]any{"venue": "CVPR"},
	})
	require.NoError(t, err)

	// Empty chunks are skipped; the rest index as supplied.
	assert.Equal(t, 4, result.ChunkCount)
	assert.True(t, result.Structured)
	assert.Equal(t, map[string]int{"abstract": 1, "introduction": 1, "methods": 2}, result.SectionTypes)
	assert.Equal(t, 4, dense.inserted["p1"])

	content, err := catalog.PaperContent(context.Background(), "p1")
	require.NoError(t, err)
	assert.Contains(t, content, "identity shortcuts")
	assert.Equal(t, map[string]any{"venue": "CVPR"}, catalog.Metadata("p1"))
}

func TestIngestHonorsMaxChunkSize(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	long := paperText + strings.Repeat("Identity shortcuts propagate gradients without extra parameters. ", 40)

	small, err := p.Ingest(context.Background(), Paper{PaperID: "p1", Text: long, MaxChunkSize: 200})
	require.NoError(t, err)
	whole, err := p.Ingest(context.Background(), Paper{PaperID: "p2", Text: long})
	require.NoError(t, err)
	assert.Greater(t, small.ChunkCount, whole.ChunkCount)
}

func TestIngestAsync(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	done := make(chan *Result, 1)
	err := p.IngestAsync(context.Background(), Paper{PaperID: "p1", Text: paperText},
		func(result *Result, err error) {
			require.NoError(t, err)
			done <- result
		})
	require.NoError(t, err)

	select {
	case result := <-done:
		assert.Equal(t, "p1", result.PaperID)
	case <-time.After(5 * time.Second):
		t.Fatal("ingestion did not complete")
	}
}

func TestDeleteRemovesEverywhere(t *testing.T) {
	p, dense, catalog := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.Ingest(ctx, Paper{PaperID: "p1", Text: paperText})
	require.NoError(t, err)
	require.NoError(t, p.Delete(ctx, "p1"))

	assert.Zero(t, dense.inserted["p1"])
	_, err = catalog.PaperContent(ctx, "p1")
	assert.Error(t, err)
	metas, _ := catalog.ListPapers(ctx)
	assert.Empty(t, metas)
}

func TestCatalogReplaceKeepsOrder(t *testing.T) {
	c := NewCatalog()
	c.Put(index.PaperMeta{PaperID: "a", Title: "first"}, "1", nil)
	c.Put(index.PaperMeta{PaperID: "b", Title: "second"}, "2", nil)
	c.Put(index.PaperMeta{PaperID: "a", Title: "updated"}, "3", nil)

	metas, err := c.ListPapers(context.Background())
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "updated", metas[0].Title)
	assert.Equal(t, "b", metas[1].PaperID)
}
