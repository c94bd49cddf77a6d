//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package literature

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/papermind/papermind/tool"
)

const abstractPreviewChars = 300

// SearchTool implements the search_literature tool.
type SearchTool struct {
	client *Client
}

var _ tool.Tool = (*SearchTool)(nil)

// NewSearchTool creates the search_literature tool.
func NewSearchTool(client *Client) *SearchTool {
	return &SearchTool{client: client}
}

// Declaration implements tool.Tool.
func (t *SearchTool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name: "search_literature",
		Description: "Search the OpenAlex academic literature database. " +
			"Use it to discover papers on a topic, survey a research area or find related literature. " +
			"Returns a list of works with title, authors, citation count and abstract.",
		Parameters: tool.ObjectSchema(map[string]any{
			"query":       tool.StringProp("Search keywords or phrase"),
			"year_from":   tool.IntProp("Earliest publication year (optional)"),
			"year_to":     tool.IntProp("Latest publication year (optional)"),
			"open_access": tool.BoolProp("Only return open-access works (optional)"),
			"sort": map[string]any{
				"type":        "string",
				"enum":        []string{"relevance", "cited_by_count", "publication_date"},
				"description": "Sort order, defaults to relevance",
			},
			"limit": tool.IntProp("Number of results, defaults to 10"),
		}, "query"),
	}
}

type searchArgs struct {
	Query      string `json:"query"`
	YearFrom   int    `json:"year_from"`
	YearTo     int    `json:"year_to"`
	OpenAccess bool   `json:"open_access"`
	Sort       string `json:"sort"`
	Limit      int    `json:"limit"`
}

// Call implements tool.Tool.
func (t *SearchTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	var a searchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("search_literature: bad arguments: %w", err)
	}
	if a.Query == "" {
		return nil, fmt.Errorf("search_literature: query is required")
	}
	works, total, err := t.client.SearchWorks(ctx, a.Query, SearchFilters{
		YearFrom:       a.YearFrom,
		YearTo:         a.YearTo,
		OpenAccessOnly: a.OpenAccess,
	}, a.Sort, a.Limit)
	if err != nil {
		return nil, err
	}
	results := make([]map[string]any, 0, len(works))
	for _, w := range works {
		results = append(results, condenseWork(w))
	}
	return map[string]any{
		"query":       a.Query,
		"total_count": total,
		"results":     results,
	}, nil
}

// DetailTool implements the get_work_detail tool.
type DetailTool struct {
	client *Client
}

var _ tool.Tool = (*DetailTool)(nil)

// NewDetailTool creates the get_work_detail tool.
func NewDetailTool(client *Client) *DetailTool {
	return &DetailTool{client: client}
}

// Declaration implements tool.Tool.
func (t *DetailTool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name: "get_work_detail",
		Description: "Fetch the full metadata of one work: complete title, all authors, " +
			"venue, DOI, citation count and abstract.",
		Parameters: tool.ObjectSchema(map[string]any{
			"work_id": tool.StringProp("OpenAlex work id (e.g. W2963403868) or full URL"),
		}, "work_id"),
	}
}

// Call implements tool.Tool.
func (t *DetailTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	var a struct {
		WorkID string `json:"work_id"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("get_work_detail: bad arguments: %w", err)
	}
	if a.WorkID == "" {
		return nil, fmt.Errorf("get_work_detail: work_id is required")
	}
	return t.client.GetWork(ctx, a.WorkID)
}

// RelatedTool implements the get_related_works tool.
type RelatedTool struct {
	client *Client
}

var _ tool.Tool = (*RelatedTool)(nil)

// NewRelatedTool creates the get_related_works tool.
func NewRelatedTool(client *Client) *RelatedTool {
	return &RelatedTool{client: client}
}

// Declaration implements tool.Tool.
func (t *RelatedTool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name: "get_related_works",
		Description: "Find works related to a given work through its strongest concepts, " +
			"ordered by citation count.",
		Parameters: tool.ObjectSchema(map[string]any{
			"work_id": tool.StringProp("OpenAlex work id or full URL"),
			"limit":   tool.IntProp("Number of related works, defaults to 10"),
		}, "work_id"),
	}
}

// Call implements tool.Tool.
func (t *RelatedTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	var a struct {
		WorkID string `json:"work_id"`
		Limit  int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("get_related_works: bad arguments: %w", err)
	}
	if a.WorkID == "" {
		return nil, fmt.Errorf("get_related_works: work_id is required")
	}
	works, err := t.client.RelatedWorks(ctx, a.WorkID, a.Limit)
	if err != nil {
		return nil, err
	}
	results := make([]map[string]any, 0, len(works))
	for _, w := range works {
		results = append(results, condenseWork(w))
	}
	return map[string]any{"results": results}, nil
}

// condenseWork keeps the fields worth showing the model, with a bounded
// abstract preview.
func condenseWork(w Work) map[string]any {
	authors := make([]string, 0, 3)
	for i, a := range w.Authors {
		if i == 3 {
			break
		}
		authors = append(authors, a.Name)
	}
	abstract := w.Abstract
	if runes := []rune(abstract); len(runes) > abstractPreviewChars {
		abstract = string(runes[:abstractPreviewChars]) + "..."
	}
	return map[string]any{
		"id":             w.ID,
		"title":          w.Title,
		"authors":        authors,
		"year":           w.PublicationYear,
		"cited_by_count": w.CitedByCount,
		"abstract":       abstract,
		"open_access":    w.OpenAccess,
		"doi":            w.DOI,
	}
}
