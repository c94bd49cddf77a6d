//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

// Package index couples the dense (vector) and sparse (BM25) representations
// of paper chunks behind one mutation surface, so that both stay in lockstep
// per chunk id.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/papermind/papermind/chunking"
	"github.com/papermind/papermind/log"
	"github.com/papermind/papermind/model"
)

// MemoryPaperIDPrefix marks the reserved namespace that holds semantic
// memory entries inside the dense index. Entries under it never surface in
// user-facing paper search.
const MemoryPaperIDPrefix = "memory:"

// MemoryPaperID returns the reserved paper id for a user's memory entries.
func MemoryPaperID(userID string) string {
	return MemoryPaperIDPrefix + userID
}

// IsMemoryPaperID reports whether the paper id belongs to the reserved
// memory namespace.
func IsMemoryPaperID(paperID string) bool {
	return strings.HasPrefix(paperID, MemoryPaperIDPrefix)
}

// Errors returned by the dual index.
var (
	ErrLengthMismatch = errors.New("index: chunk and embedding counts differ")
	ErrNoChunks       = errors.New("index: no chunks to insert")
)

// PaperMeta is the per-paper metadata stored alongside every chunk.
type PaperMeta struct {
	PaperID    string
	Title      string
	FileName   string
	UploadTime string
}

// SearchResult is one scored hit from either index.
type SearchResult struct {
	PaperID       string  `json:"paper_id"`
	ChunkID       string  `json:"chunk_id"`
	ChunkIndex    int     `json:"chunk_index"`
	Content       string  `json:"content"`
	Title         string  `json:"title"`
	FileName      string  `json:"file_name"`
	HierarchyPath string  `json:"hierarchy_path"`
	SectionType   string  `json:"section_type"`
	// Score is 1/(1+distance) for dense hits and the BM25 score for sparse hits.
	Score    float64 `json:"score"`
	Distance float64 `json:"distance,omitempty"`
}

// DenseStore is the vector-side storage contract.
type DenseStore interface {
	// EnsureCollection creates the collection and index if absent. Idempotent.
	EnsureCollection(ctx context.Context) error
	// Insert writes one batch of chunks with their embeddings.
	Insert(ctx context.Context, meta PaperMeta, chunks []chunking.Chunk, vectors [][]float64) error
	// Search returns up to k nearest chunks. An empty paperID searches all
	// papers but excludes the reserved memory namespace; a non-empty paperID
	// scopes the search to that paper (memory namespaces included).
	Search(ctx context.Context, vector []float64, k int, paperID string) ([]SearchResult, error)
	// DeleteByPaper removes every entry of the paper.
	DeleteByPaper(ctx context.Context, paperID string) error
	// Stats reports the number of stored entities.
	Stats(ctx context.Context) (int64, error)
}

// SparseStore is the lexical-side storage contract. Implementations are
// in-memory and must serialize mutations internally.
type SparseStore interface {
	Add(meta PaperMeta, chunks []chunking.Chunk)
	Remove(paperID string)
	Search(query string, k int, paperID string) []SearchResult
	HasChunk(chunkID string) bool
	Clear()
}

// DualIndex owns the paired dense and sparse indexes.
type DualIndex struct {
	dense    DenseStore
	sparse   SparseStore
	embedder model.Embedder
}

// NewDual creates a DualIndex.
func NewDual(dense DenseStore, sparse SparseStore, embedder model.Embedder) *DualIndex {
	return &DualIndex{dense: dense, sparse: sparse, embedder: embedder}
}

// Embedder exposes the configured embedder.
func (d *DualIndex) Embedder() model.Embedder { return d.embedder }

// IndexChunks embeds the chunk contents in one batched request and inserts
// them into the dense index first; the sparse index is only updated after
// the dense insert succeeds, so a failure leaves no orphan sparse entries.
func (d *DualIndex) IndexChunks(ctx context.Context, meta PaperMeta, chunks []chunking.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, ErrNoChunks
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vectors, err := d.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, ErrLengthMismatch
	}
	if err := d.dense.Insert(ctx, meta, chunks, vectors); err != nil {
		return 0, fmt.Errorf("dense insert: %w", err)
	}
	d.sparse.Add(meta, chunks)
	log.Infof("indexed %d chunks for paper %s", len(chunks), meta.PaperID)
	return len(chunks), nil
}

// IndexMemory writes pre-embedded entries into the dense index only. The
// reserved memory namespace never participates in sparse search.
func (d *DualIndex) IndexMemory(ctx context.Context, meta PaperMeta, chunks []chunking.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return ErrLengthMismatch
	}
	if !IsMemoryPaperID(meta.PaperID) {
		return fmt.Errorf("index: %q is not a memory namespace", meta.PaperID)
	}
	return d.dense.Insert(ctx, meta, chunks, vectors)
}

// DeletePaper cascades the delete through dense, then sparse. Success means
// both sides no longer hold any entry of the paper.
func (d *DualIndex) DeletePaper(ctx context.Context, paperID string) error {
	if err := d.dense.DeleteByPaper(ctx, paperID); err != nil {
		return fmt.Errorf("dense delete: %w", err)
	}
	d.sparse.Remove(paperID)
	return nil
}

// DenseSearch embeds the query and searches the dense index.
func (d *DualIndex) DenseSearch(ctx context.Context, query string, k int, paperID string) ([]SearchResult, error) {
	vectors, err := d.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return d.dense.Search(ctx, vectors[0], k, paperID)
}

// DenseSearchVector searches the dense index with a pre-computed vector.
func (d *DualIndex) DenseSearchVector(ctx context.Context, vector []float64, k int, paperID string) ([]SearchResult, error) {
	return d.dense.Search(ctx, vector, k, paperID)
}

// SparseSearch runs a BM25 search, paper-scoped when paperID is non-empty.
func (d *DualIndex) SparseSearch(query string, k int, paperID string) []SearchResult {
	return d.sparse.Search(query, k, paperID)
}

// Stats reports the dense entity count.
func (d *DualIndex) Stats(ctx context.Context) (int64, error) {
	return d.dense.Stats(ctx)
}
