//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

// Package papers provides the tools that work over the user's indexed
// paper library: listing, content access, semantic search, grounded QA
// and the model-driven analysis tools.
package papers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/papermind/papermind/index"
	"github.com/papermind/papermind/tool"
)

// Catalog exposes the indexed paper library to tools.
type Catalog interface {
	// ListPapers returns the metadata of every indexed paper.
	ListPapers(ctx context.Context) ([]index.PaperMeta, error)
	// PaperContent returns the full extracted text of one paper.
	PaperContent(ctx context.Context, paperID string) (string, error)
}

const defaultContentLength = 10000

// ListTool implements the list_papers tool.
type ListTool struct {
	catalog Catalog
}

var _ tool.Tool = (*ListTool)(nil)

// NewListTool creates the list_papers tool.
func NewListTool(catalog Catalog) *ListTool {
	return &ListTool{catalog: catalog}
}

// Declaration implements tool.Tool.
func (t *ListTool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name: "list_papers",
		Description: "List the papers in the user's library. " +
			"Optionally filter by a keyword matched against title and file name.",
		Parameters: tool.ObjectSchema(map[string]any{
			"query": tool.StringProp("Keyword filter (optional, empty lists everything)"),
		}),
	}
}

// Call implements tool.Tool.
func (t *ListTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	var a struct {
		Query string `json:"query"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("list_papers: bad arguments: %w", err)
		}
	}
	metas, err := t.catalog.ListPapers(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(a.Query))
	papers := make([]map[string]any, 0, len(metas))
	for _, m := range metas {
		if needle != "" &&
			!strings.Contains(strings.ToLower(m.Title), needle) &&
			!strings.Contains(strings.ToLower(m.FileName), needle) {
			continue
		}
		papers = append(papers, map[string]any{
			"paper_id":    m.PaperID,
			"title":       m.Title,
			"file_name":   m.FileName,
			"upload_time": m.UploadTime,
		})
	}
	return map[string]any{
		"query":  a.Query,
		"count":  len(papers),
		"papers": papers,
	}, nil
}

// ContentTool implements the get_paper_content tool.
type ContentTool struct {
	catalog Catalog
}

var _ tool.Tool = (*ContentTool)(nil)

// NewContentTool creates the get_paper_content tool.
func NewContentTool(catalog Catalog) *ContentTool {
	return &ContentTool{catalog: catalog}
}

// Declaration implements tool.Tool.
func (t *ContentTool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name: "get_paper_content",
		Description: "Return the extracted text of one paper from the library. " +
			"Use list_papers first to find the paper id.",
		Parameters: tool.ObjectSchema(map[string]any{
			"paper_id":   tool.StringProp("Paper id from the library"),
			"max_length": tool.IntProp("Maximum characters to return, defaults to 10000"),
		}, "paper_id"),
	}
}

// Call implements tool.Tool.
func (t *ContentTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	var a struct {
		PaperID   string `json:"paper_id"`
		MaxLength int    `json:"max_length"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("get_paper_content: bad arguments: %w", err)
	}
	if a.PaperID == "" {
		return nil, fmt.Errorf("get_paper_content: paper_id is required")
	}
	if a.MaxLength <= 0 {
		a.MaxLength = defaultContentLength
	}
	content, err := t.catalog.PaperContent(ctx, a.PaperID)
	if err != nil {
		return nil, err
	}
	truncated := false
	if runes := []rune(content); len(runes) > a.MaxLength {
		content = string(runes[:a.MaxLength])
		truncated = true
	}
	return map[string]any{
		"paper_id":  a.PaperID,
		"content":   content,
		"truncated": truncated,
	}, nil
}
