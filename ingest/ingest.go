//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

// Package ingest turns raw paper text into indexed chunks: structure
// parsing, semantic chunking and dual-index writes, with a bounded worker
// pool for concurrent uploads.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/papermind/papermind/chunking"
	"github.com/papermind/papermind/index"
	"github.com/papermind/papermind/log"
	"github.com/papermind/papermind/parser"
)

const defaultWorkers = 4

// Paper is one ingestion request. Either Text or StructuredChunks must be
// set: Text goes through structure parsing and chunking, while
// StructuredChunks are indexed as supplied.
type Paper struct {
	PaperID  string
	Title    string
	FileName string
	Text     string
	// StructuredChunks carries pre-chunked content from an upstream
	// parse, bypassing the parser and chunker.
	StructuredChunks []StructuredChunk
	// MaxChunkSize overrides the chunk size cap, in runes, for this paper.
	MaxChunkSize int
	// Metadata is caller-supplied paper metadata kept in the catalog.
	Metadata map[string]any
}

// StructuredChunk is one pre-chunked unit of a paper.
type StructuredChunk struct {
	Content           string         `json:"content"`
	CharCount         int            `json:"char_count"`
	SectionType       string         `json:"section_type"`
	SectionTitle      string         `json:"section_title"`
	HierarchyPath     string         `json:"hierarchy_path"`
	IsCompleteSection bool           `json:"is_complete_section"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// Result reports one completed ingestion.
type Result struct {
	PaperID    string `json:"paper_id"`
	Title      string `json:"title"`
	ChunkCount int    `json:"chunks_created"`
	Sections   int    `json:"sections"`
	// SectionTypes counts chunks per section type; set only for
	// structured ingestion.
	SectionTypes map[string]int `json:"section_types,omitempty"`
	Structured   bool           `json:"structured"`
}

// Pipeline ingests papers into the dual index and the catalog.
type Pipeline struct {
	parser  *parser.Parser
	chunker *chunking.Chunker
	dual    *index.DualIndex
	catalog *Catalog
	pool    *ants.Pool
}

// Option configures the Pipeline.
type Option func(*pipelineOptions)

type pipelineOptions struct {
	workers int
	chunker *chunking.Chunker
}

// WithWorkers sets the ingestion pool size.
func WithWorkers(n int) Option {
	return func(o *pipelineOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithChunker overrides the default chunker.
func WithChunker(c *chunking.Chunker) Option {
	return func(o *pipelineOptions) { o.chunker = c }
}

// NewPipeline creates a Pipeline.
func NewPipeline(p *parser.Parser, dual *index.DualIndex, catalog *Catalog, opts ...Option) (*Pipeline, error) {
	o := &pipelineOptions{workers: defaultWorkers, chunker: chunking.New()}
	for _, opt := range opts {
		opt(o)
	}
	pool, err := ants.NewPool(o.workers)
	if err != nil {
		return nil, fmt.Errorf("ingest: create worker pool: %w", err)
	}
	return &Pipeline{
		parser:  p,
		chunker: o.chunker,
		dual:    dual,
		catalog: catalog,
		pool:    pool,
	}, nil
}

// Close releases the worker pool.
func (p *Pipeline) Close() {
	p.pool.Release()
}

// Ingest processes one paper synchronously. Text goes through structure
// parsing and chunking; pre-chunked papers skip both and index as given.
// Either way the chunks are embedded, indexed and recorded in the catalog.
func (p *Pipeline) Ingest(ctx context.Context, paper Paper) (*Result, error) {
	structured := len(paper.StructuredChunks) > 0
	if paper.PaperID == "" || (paper.Text == "" && !structured) {
		return nil, fmt.Errorf("ingest: paper id and text or structured chunks are required")
	}
	if index.IsMemoryPaperID(paper.PaperID) {
		return nil, fmt.Errorf("ingest: paper id %q uses a reserved namespace", paper.PaperID)
	}
	start := time.Now()

	var (
		chunks   []chunking.Chunk
		sections int
	)
	title := paper.Title
	if structured {
		chunks = p.structuredChunks(paper)
	} else {
		structure := p.parser.Parse(ctx, paper.Text)
		if title == "" {
			title = structure.Title
		}
		sections = len(structure.Sections)
		chunker := p.chunker
		if paper.MaxChunkSize > 0 {
			chunker = chunking.New(chunking.WithMaxChunkSize(paper.MaxChunkSize))
		}
		chunks = chunker.ChunkStructure(paper.PaperID, structure)
		if len(chunks) == 0 {
			chunks = chunker.ChunkText(paper.PaperID, paper.Text)
		}
	}

	meta := index.PaperMeta{
		PaperID:    paper.PaperID,
		Title:      title,
		FileName:   paper.FileName,
		UploadTime: time.Now().Format(time.RFC3339),
	}
	count, err := p.dual.IndexChunks(ctx, meta, chunks)
	if err != nil {
		return nil, fmt.Errorf("ingest: index paper %s: %w", paper.PaperID, err)
	}
	p.catalog.Put(meta, paperContent(paper, chunks), paper.Metadata)

	result := &Result{
		PaperID:    paper.PaperID,
		Title:      title,
		ChunkCount: count,
		Sections:   sections,
		Structured: structured,
	}
	if structured {
		result.SectionTypes = make(map[string]int, 8)
		for _, ch := range chunks {
			result.SectionTypes[ch.SectionType]++
		}
	}
	log.Infof("ingested paper %s: %d sections, %d chunks in %s",
		paper.PaperID, sections, count, time.Since(start))
	return result, nil
}

// structuredChunks adapts caller-supplied chunks into indexable ones,
// assigning dense indices and canonical chunk ids.
func (p *Pipeline) structuredChunks(paper Paper) []chunking.Chunk {
	chunks := make([]chunking.Chunk, 0, len(paper.StructuredChunks))
	for i, sc := range paper.StructuredChunks {
		if sc.Content == "" {
			continue
		}
		chars := sc.CharCount
		if chars <= 0 {
			chars = len([]rune(sc.Content))
		}
		sectionType := sc.SectionType
		if sectionType == "" {
			sectionType = parser.SectionOther
		}
		chunks = append(chunks, chunking.Chunk{
			PaperID:           paper.PaperID,
			ChunkID:           chunking.ChunkID(paper.PaperID, i),
			Index:             i,
			Content:           sc.Content,
			SectionType:       sectionType,
			SectionTitle:      sc.SectionTitle,
			HierarchyPath:     sc.HierarchyPath,
			Chars:             chars,
			IsCompleteSection: sc.IsCompleteSection,
		})
	}
	return chunks
}

// paperContent is the raw text kept in the catalog: the submitted text,
// or the joined chunk contents when only structured chunks were given.
func paperContent(paper Paper, chunks []chunking.Chunk) string {
	if paper.Text != "" {
		return paper.Text
	}
	parts := make([]string, len(chunks))
	for i, ch := range chunks {
		parts[i] = ch.Content
	}
	return strings.Join(parts, "\n\n")
}

// IngestAsync schedules an ingestion on the worker pool and invokes done
// with the outcome.
func (p *Pipeline) IngestAsync(ctx context.Context, paper Paper, done func(*Result, error)) error {
	return p.pool.Submit(func() {
		result, err := p.Ingest(ctx, paper)
		if done != nil {
			done(result, err)
		}
	})
}

// Delete removes a paper from the index and catalog.
func (p *Pipeline) Delete(ctx context.Context, paperID string) error {
	if err := p.dual.DeletePaper(ctx, paperID); err != nil {
		return err
	}
	p.catalog.Remove(paperID)
	return nil
}

// Catalog is the in-process registry of ingested papers, backing the
// library tools.
type Catalog struct {
	mu       sync.RWMutex
	papers   map[string]index.PaperMeta
	content  map[string]string
	metadata map[string]map[string]any
	order    []string
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		papers:   make(map[string]index.PaperMeta),
		content:  make(map[string]string),
		metadata: make(map[string]map[string]any),
	}
}

// Put records a paper. Re-ingesting replaces the previous entry.
func (c *Catalog) Put(meta index.PaperMeta, content string, metadata map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.papers[meta.PaperID]; !ok {
		c.order = append(c.order, meta.PaperID)
	}
	c.papers[meta.PaperID] = meta
	c.content[meta.PaperID] = content
	if metadata != nil {
		c.metadata[meta.PaperID] = metadata
	} else {
		delete(c.metadata, meta.PaperID)
	}
}

// Metadata returns the caller-supplied metadata for a paper, if any.
func (c *Catalog) Metadata(paperID string) map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metadata[paperID]
}

// Remove drops a paper.
func (c *Catalog) Remove(paperID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.papers[paperID]; !ok {
		return
	}
	delete(c.papers, paperID)
	delete(c.content, paperID)
	delete(c.metadata, paperID)
	for i, id := range c.order {
		if id == paperID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// ListPapers implements papers.Catalog, in ingestion order.
func (c *Catalog) ListPapers(ctx context.Context) ([]index.PaperMeta, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]index.PaperMeta, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.papers[id])
	}
	return out, nil
}

// PaperContent implements papers.Catalog.
func (c *Catalog) PaperContent(ctx context.Context, paperID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	content, ok := c.content[paperID]
	if !ok {
		return "", fmt.Errorf("ingest: paper %s not found", paperID)
	}
	return content, nil
}
