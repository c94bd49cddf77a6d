//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

// Package chunking splits parsed papers into retrieval-sized chunks while
// preserving the section hierarchy on every chunk.
package chunking

import (
	"fmt"
	"strings"

	"github.com/papermind/papermind/parser"
)

// Defaults for the splitter. Sizes are in runes.
const (
	DefaultMaxChunkSize = 1000
	DefaultMinChunkSize = 100
	DefaultChunkOverlap = 100
)

// separators in descending priority. Splitting tries each in turn and only
// moves down the ladder when a flushed piece is still oversized.
var separators = []string{"\n\n", "\n", "。", ". ", "；", "; ", "，", ", ", " "}

// Chunk is one retrieval unit of a paper.
type Chunk struct {
	PaperID string `json:"paper_id"`
	// ChunkID is PaperID + "#" + Index and is globally unique.
	ChunkID string `json:"chunk_id"`
	// Index is the 0-based position in reading order, dense per paper.
	Index   int    `json:"chunk_index"`
	Content string `json:"content"`
	// SectionType is the leaf section's canonical type.
	SectionType  string `json:"section_type"`
	SectionTitle string `json:"section_title"`
	// HierarchyPath is the ancestor breadcrumb, e.g. "Methods > Data Collection".
	HierarchyPath string `json:"hierarchy_path"`
	// Chars counts runes of Content.
	Chars int `json:"chunk_chars"`
	// IsCompleteSection is true iff the chunk holds an entire section body.
	IsCompleteSection bool `json:"is_complete_section"`
}

// ChunkID formats the canonical chunk identifier.
func ChunkID(paperID string, index int) string {
	return fmt.Sprintf("%s#%d", paperID, index)
}

// Chunker performs recursive semantic splitting.
type Chunker struct {
	maxChunkSize int
	minChunkSize int
	chunkOverlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithMaxChunkSize sets the chunk size cap in runes.
func WithMaxChunkSize(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxChunkSize = n
		}
	}
}

// WithMinChunkSize sets the advisory minimum chunk size.
func WithMinChunkSize(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.minChunkSize = n
		}
	}
}

// WithChunkOverlap sets the trailing overlap carried between chunks.
func WithChunkOverlap(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.chunkOverlap = n
		}
	}
}

// New creates a Chunker.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxChunkSize: DefaultMaxChunkSize,
		minChunkSize: DefaultMinChunkSize,
		chunkOverlap: DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChunkStructure walks the section tree depth-first (abstract first, then
// sections pre-order) and emits ordered chunks. Empty input yields nil.
func (c *Chunker) ChunkStructure(paperID string, s *parser.Structure) []Chunk {
	if s == nil {
		return nil
	}
	var (
		chunks  []Chunk
		ordinal int
	)
	if strings.TrimSpace(s.Abstract) != "" {
		chunks = c.appendBody(chunks, &ordinal, paperID,
			parser.SectionAbstract, "Abstract", "Abstract", s.Abstract)
	}
	for i := range s.Sections {
		chunks = c.walkSection(chunks, &ordinal, paperID, "", &s.Sections[i])
	}
	return chunks
}

// ChunkText splits a flat text blob with no structure metadata.
func (c *Chunker) ChunkText(paperID, text string) []Chunk {
	var ordinal int
	return c.appendBody(nil, &ordinal, paperID, parser.SectionOther, "", "", text)
}

func (c *Chunker) walkSection(
	chunks []Chunk,
	ordinal *int,
	paperID, parentPath string,
	sec *parser.Section,
) []Chunk {
	path := sec.Title
	if parentPath != "" {
		path = parentPath + " > " + sec.Title
	}
	// Empty bodies produce no chunks of their own but children still count.
	if strings.TrimSpace(sec.Content) != "" {
		chunks = c.appendBody(chunks, ordinal, paperID, sec.Type, sec.Title, path, sec.Content)
	}
	for i := range sec.Subsections {
		chunks = c.walkSection(chunks, ordinal, paperID, path, &sec.Subsections[i])
	}
	return chunks
}

func (c *Chunker) appendBody(
	chunks []Chunk,
	ordinal *int,
	paperID, sectionType, sectionTitle, hierarchyPath, body string,
) []Chunk {
	body = strings.TrimSpace(body)
	if body == "" {
		return chunks
	}
	complete := runeLen(body) <= c.maxChunkSize
	for _, piece := range c.split(body, 0) {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			PaperID:           paperID,
			ChunkID:           ChunkID(paperID, *ordinal),
			Index:             *ordinal,
			Content:           piece,
			SectionType:       sectionType,
			SectionTitle:      sectionTitle,
			HierarchyPath:     truncatePath(hierarchyPath),
			Chars:             runeLen(piece),
			IsCompleteSection: complete,
		})
		*ordinal++
	}
	return chunks
}

// split recursively divides text so that every returned piece fits within
// maxChunkSize, trying separators from sepIdx down the ladder and falling
// back to a hard split when none apply.
func (c *Chunker) split(text string, sepIdx int) []string {
	if runeLen(text) <= c.maxChunkSize {
		return []string{text}
	}
	if sepIdx >= len(separators) {
		return c.hardSplit(text)
	}
	sep := separators[sepIdx]
	if !strings.Contains(text, sep) {
		return c.split(text, sepIdx+1)
	}

	var (
		out     []string
		current string
	)
	flush := func() {
		if current == "" {
			return
		}
		// A flushed run can still exceed the cap when a single piece was
		// oversized; re-split it with the next separator.
		out = append(out, c.split(current, sepIdx+1)...)
	}
	for _, piece := range splitKeep(text, sep) {
		if current != "" && runeLen(current)+runeLen(piece) > c.maxChunkSize {
			previous := current
			flush()
			current = overlapSuffix(previous, c.chunkOverlap) + piece
			continue
		}
		current += piece
	}
	flush()
	return out
}

// hardSplit cuts at maxChunkSize boundaries carrying the overlap forward.
func (c *Chunker) hardSplit(text string) []string {
	runes := []rune(text)
	step := c.maxChunkSize - c.chunkOverlap
	if step < 1 {
		step = 1
	}
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + c.maxChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

// splitKeep splits text on sep, keeping the separator attached to the piece
// it terminates.
func splitKeep(text, sep string) []string {
	var parts []string
	for {
		i := strings.Index(text, sep)
		if i < 0 {
			if text != "" {
				parts = append(parts, text)
			}
			return parts
		}
		parts = append(parts, text[:i+len(sep)])
		text = text[i+len(sep):]
	}
}

// overlapSuffix returns the trailing n runes of s.
func overlapSuffix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

const maxHierarchyPath = 200

func truncatePath(path string) string {
	runes := []rune(path)
	if len(runes) <= maxHierarchyPath {
		return path
	}
	return string(runes[:maxHierarchyPath])
}

func runeLen(s string) int {
	return len([]rune(s))
}
