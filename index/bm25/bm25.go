//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

// Package bm25 is the in-memory sparse index: per-paper Okapi BM25 bags
// plus one global bag rebuilt after every mutation.
package bm25

import (
	"math"
	"sort"
	"sync"

	"github.com/papermind/papermind/chunking"
	"github.com/papermind/papermind/index"
)

// Okapi BM25 parameters.
const (
	defaultK1 = 1.5
	defaultB  = 0.75
)

type document struct {
	result index.SearchResult
	freq   map[string]int
	length int
}

// Index implements index.SparseStore.
//
// All mutations take the writer lock and rebuild the global document
// frequency table before returning; searches run under the reader lock
// against the last committed state.
type Index struct {
	mu sync.RWMutex
	k1 float64
	b  float64

	papers map[string][]*document

	globalDocs   []*document
	globalDF     map[string]int
	globalAvgLen float64
	chunkIDs     map[string]struct{}
}

var _ index.SparseStore = (*Index)(nil)

// Option configures the Index.
type Option func(*Index)

// WithK1 sets the BM25 term-frequency saturation parameter.
func WithK1(k1 float64) Option {
	return func(idx *Index) { idx.k1 = k1 }
}

// WithB sets the BM25 length-normalization parameter.
func WithB(b float64) Option {
	return func(idx *Index) { idx.b = b }
}

// New creates an empty Index.
func New(opts ...Option) *Index {
	idx := &Index{
		k1:       defaultK1,
		b:        defaultB,
		papers:   make(map[string][]*document),
		globalDF: make(map[string]int),
		chunkIDs: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Add indexes the chunks of one paper. Re-adding a paper replaces its
// previous documents.
func (idx *Index) Add(meta index.PaperMeta, chunks []chunking.Chunk) {
	docs := make([]*document, 0, len(chunks))
	for _, ch := range chunks {
		tokens := Tokenize(ch.Content)
		freq := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freq[tok]++
		}
		docs = append(docs, &document{
			result: index.SearchResult{
				PaperID:       ch.PaperID,
				ChunkID:       ch.ChunkID,
				ChunkIndex:    ch.Index,
				Content:       ch.Content,
				Title:         meta.Title,
				FileName:      meta.FileName,
				HierarchyPath: ch.HierarchyPath,
				SectionType:   ch.SectionType,
			},
			freq:   freq,
			length: len(tokens),
		})
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.papers[meta.PaperID] = docs
	idx.rebuildGlobal()
}

// Remove deletes one paper's documents and rebuilds the global bag.
func (idx *Index) Remove(paperID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.papers, paperID)
	idx.rebuildGlobal()
}

// Clear drops every paper and the global state.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.papers = make(map[string][]*document)
	idx.rebuildGlobal()
}

// HasChunk reports whether the chunk id is present in the global bag.
func (idx *Index) HasChunk(chunkID string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.chunkIDs[chunkID]
	return ok
}

// Len reports the global document count.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.globalDocs)
}

// Search scores the query against one paper's documents, or against the
// global bag when paperID is empty. Results are sorted by BM25 score
// descending; zero-score documents are omitted.
func (idx *Index) Search(query string, k int, paperID string) []index.SearchResult {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 || k <= 0 {
		return nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var (
		docs   []*document
		df     map[string]int
		avgLen float64
	)
	if paperID == "" {
		docs, df, avgLen = idx.globalDocs, idx.globalDF, idx.globalAvgLen
	} else {
		docs = idx.papers[paperID]
		df, avgLen = corpusStats(docs)
	}
	if len(docs) == 0 {
		return nil
	}

	type scored struct {
		doc   *document
		score float64
		order int
	}
	var hits []scored
	for i, doc := range docs {
		s := idx.score(queryTokens, doc, df, avgLen, len(docs))
		if s > 0 {
			hits = append(hits, scored{doc: doc, score: s, order: i})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].order < hits[j].order
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	results := make([]index.SearchResult, len(hits))
	for i, h := range hits {
		r := h.doc.result
		r.Score = h.score
		results[i] = r
	}
	return results
}

func (idx *Index) score(queryTokens []string, doc *document, df map[string]int, avgLen float64, n int) float64 {
	if doc.length == 0 || avgLen == 0 {
		return 0
	}
	var score float64
	norm := idx.k1 * (1 - idx.b + idx.b*float64(doc.length)/avgLen)
	for _, tok := range queryTokens {
		tf := float64(doc.freq[tok])
		if tf == 0 {
			continue
		}
		idf := math.Log(1 + (float64(n)-float64(df[tok])+0.5)/(float64(df[tok])+0.5))
		score += idf * tf * (idx.k1 + 1) / (tf + norm)
	}
	return score
}

// rebuildGlobal recomputes the global corpus. Callers hold the writer lock.
func (idx *Index) rebuildGlobal() {
	idx.globalDocs = idx.globalDocs[:0]
	idx.chunkIDs = make(map[string]struct{})
	for _, docs := range idx.papers {
		for _, doc := range docs {
			idx.globalDocs = append(idx.globalDocs, doc)
			idx.chunkIDs[doc.result.ChunkID] = struct{}{}
		}
	}
	idx.globalDF, idx.globalAvgLen = corpusStats(idx.globalDocs)
}

func corpusStats(docs []*document) (map[string]int, float64) {
	df := make(map[string]int)
	var total int
	for _, doc := range docs {
		total += doc.length
		for tok := range doc.freq {
			df[tok]++
		}
	}
	if len(docs) == 0 {
		return df, 0
	}
	return df, float64(total) / float64(len(docs))
}
