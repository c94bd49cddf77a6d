//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

// Package parser extracts the structural skeleton of an academic paper:
// title, authors, abstract and a typed section tree. The primary path is a
// single JSON-mode LLM completion; a rule-based parser takes over whenever
// the model path fails.
package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/papermind/papermind/log"
	"github.com/papermind/papermind/model"
)

// Canonical section types.
const (
	SectionAbstract     = "abstract"
	SectionIntroduction = "introduction"
	SectionRelatedWork  = "related_work"
	SectionMethods      = "methods"
	SectionExperiments  = "experiments"
	SectionResults      = "results"
	SectionDiscussion   = "discussion"
	SectionConclusion   = "conclusion"
	SectionReferences   = "references"
	SectionAppendix     = "appendix"
	SectionOther        = "other"
)

var canonicalSectionTypes = map[string]struct{}{
	SectionAbstract:     {},
	SectionIntroduction: {},
	SectionRelatedWork:  {},
	SectionMethods:      {},
	SectionExperiments:  {},
	SectionResults:      {},
	SectionDiscussion:   {},
	SectionConclusion:   {},
	SectionReferences:   {},
	SectionAppendix:     {},
	SectionOther:        {},
}

// Section is one node of the parsed section tree.
type Section struct {
	Type        string    `json:"section_type"`
	Title       string    `json:"section_title"`
	Content     string    `json:"content"`
	Subsections []Section `json:"subsections,omitempty"`
}

// Structure is the parsed skeleton of a paper.
type Structure struct {
	Title           string    `json:"title"`
	Authors         []string  `json:"authors"`
	Abstract        string    `json:"abstract"`
	Sections        []Section `json:"sections"`
	ReferencesCount int       `json:"references_count"`
}

const (
	defaultMaxChars    = 50000
	parseTemperature   = 0.1
	parseMaxTokens     = 8000
	truncationMarker   = "\n\n[text truncated...]"
	structSystemPrompt = `You are an expert academic paper parser. Your task is to extract the structure of a research paper.

Extract the following information in JSON format:
{
    "title": "Paper title",
    "authors": ["Author 1", "Author 2"],
    "abstract": "Full abstract text",
    "sections": [
        {
            "section_type": "introduction|methods|results|discussion|conclusion|related_work|experiments|other",
            "section_title": "Section Title",
            "content": "Section content text",
            "subsections": [
                {
                    "section_type": "...",
                    "section_title": "Subsection Title",
                    "content": "..."
                }
            ]
        }
    ],
    "references_count": 42
}

Rules:
1. section_type must be one of: introduction, related_work, methods, experiments, results, discussion, conclusion, other
2. Keep the full content of each section (don't summarize)
3. Identify subsections when they exist (e.g., "3.1 Data Collection")
4. Extract the abstract completely
5. Count the number of references (approximate is fine)
6. If a section doesn't fit standard categories, use "other"
7. Preserve the original text, don't translate or modify it`
)

// Parser turns raw paper text into a Structure.
type Parser struct {
	model    model.Model
	maxChars int
}

// Option configures the Parser.
type Option func(*Parser)

// WithMaxChars caps how much text is sent to the model.
func WithMaxChars(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxChars = n
		}
	}
}

// New creates a Parser backed by the given model.
func New(m model.Model, opts ...Option) *Parser {
	p := &Parser{model: m, maxChars: defaultMaxChars}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts the paper structure. It never fails hard: on any model or
// decoding error it falls back to the rule-based parser, so downstream
// chunking always has a structure to work with.
func (p *Parser) Parse(ctx context.Context, text string) *Structure {
	structure, err := p.parseWithModel(ctx, text)
	if err != nil {
		log.Warnf("structure parse via model failed, using rule fallback: %v", err)
		return FallbackParse(text)
	}
	return structure
}

func (p *Parser) parseWithModel(ctx context.Context, text string) (*Structure, error) {
	if p.model == nil {
		return nil, fmt.Errorf("no model configured")
	}
	truncated := text
	if len(truncated) > p.maxChars {
		// Back the cut off to a rune boundary so a multi-byte character is
		// never split mid-sequence.
		cut := p.maxChars
		for cut > 0 && !utf8.RuneStart(truncated[cut]) {
			cut--
		}
		truncated = truncated[:cut] + truncationMarker
	}
	userPrompt := fmt.Sprintf(
		"Parse the following academic paper and extract its structure:\n\n---\n%s\n---\n\nReturn ONLY valid JSON, no explanation.",
		truncated,
	)
	req := &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage(structSystemPrompt),
			model.NewUserMessage(userPrompt),
		},
		Temperature:  model.FloatPtr(parseTemperature),
		MaxTokens:    model.IntPtr(parseMaxTokens),
		JSONResponse: true,
	}
	ch, err := p.model.GenerateContent(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	var content string
	for rsp := range ch {
		if rsp.Err != nil {
			return nil, rsp.Err
		}
		if rsp.IsFinal {
			content = rsp.Content
		}
	}
	var structure Structure
	if err := json.Unmarshal([]byte(content), &structure); err != nil {
		return nil, fmt.Errorf("decode structure JSON: %w", err)
	}
	normalize(&structure)
	return &structure, nil
}

// normalize clamps unknown section types to "other" and fills defaults.
func normalize(s *Structure) {
	if s.Title == "" {
		s.Title = "Unknown"
	}
	for i := range s.Sections {
		normalizeSection(&s.Sections[i])
	}
}

func normalizeSection(sec *Section) {
	sec.Type = strings.ToLower(strings.TrimSpace(sec.Type))
	if _, ok := canonicalSectionTypes[sec.Type]; !ok {
		sec.Type = SectionOther
	}
	for i := range sec.Subsections {
		normalizeSection(&sec.Subsections[i])
	}
}
