//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package papers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/papermind/papermind/model"
	"github.com/papermind/papermind/tool"
)

const (
	analysisInputChars = 30000
	compareInputChars  = 12000
	minComparePapers   = 2
	maxComparePapers   = 5
)

const analyzeSystemPrompt = `You analyze academic papers. Given the paper text, return a JSON object:
{"research_question": "...", "methodology": "...", "key_contributions": ["..."], "limitations": ["..."], "summary": "..."}.
Be specific; quote numbers and technique names from the paper where possible.`

const mindmapSystemPrompt = `You turn an academic paper into a mind map. Return a JSON object:
{"name": "<paper title>", "children": [{"name": "<topic>", "children": [{"name": "<point>"}]}]}.
Two to three levels deep, concise node names, cover the paper's structure and key concepts.`

const compareSystemPrompt = `You compare academic papers. Given numbered paper texts, return a JSON object:
{"comparison": [{"aspect": "...", "per_paper": {"<paper id>": "..."}}], "similarities": ["..."], "differences": ["..."], "summary": "..."}.
Cover the requested aspects, or methodology, dataset, results and contribution when none are given.`

// AnalyzeTool implements the analyze_paper tool.
type AnalyzeTool struct {
	catalog Catalog
	model   model.Model
}

var _ tool.Tool = (*AnalyzeTool)(nil)

// NewAnalyzeTool creates the analyze_paper tool.
func NewAnalyzeTool(catalog Catalog, m model.Model) *AnalyzeTool {
	return &AnalyzeTool{catalog: catalog, model: m}
}

// Declaration implements tool.Tool.
func (t *AnalyzeTool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name: "analyze_paper",
		Description: "Produce a structured analysis of one indexed paper: research question, " +
			"methodology, contributions and limitations. Slow operation, may take a minute.",
		Parameters: tool.ObjectSchema(map[string]any{
			"paper_id": tool.StringProp("Paper id from the library"),
		}, "paper_id"),
	}
}

// Call implements tool.Tool.
func (t *AnalyzeTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	var a struct {
		PaperID string `json:"paper_id"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("analyze_paper: bad arguments: %w", err)
	}
	if a.PaperID == "" {
		return nil, fmt.Errorf("analyze_paper: paper_id is required")
	}
	content, err := t.catalog.PaperContent(ctx, a.PaperID)
	if err != nil {
		return nil, err
	}
	analysis, err := generateJSON(ctx, t.model, analyzeSystemPrompt,
		clip(content, analysisInputChars), 3000)
	if err != nil {
		return nil, fmt.Errorf("analyze_paper: %w", err)
	}
	return map[string]any{
		"paper_id": a.PaperID,
		"analysis": analysis,
	}, nil
}

// MindmapTool implements the generate_mindmap tool.
type MindmapTool struct {
	catalog Catalog
	model   model.Model
}

var _ tool.Tool = (*MindmapTool)(nil)

// NewMindmapTool creates the generate_mindmap tool.
func NewMindmapTool(catalog Catalog, m model.Model) *MindmapTool {
	return &MindmapTool{catalog: catalog, model: m}
}

// Declaration implements tool.Tool.
func (t *MindmapTool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name: "generate_mindmap",
		Description: "Generate a mind map of one indexed paper's structure and key concepts, " +
			"as a tree the frontend can render.",
		Parameters: tool.ObjectSchema(map[string]any{
			"paper_id": tool.StringProp("Paper id from the library"),
		}, "paper_id"),
	}
}

// Call implements tool.Tool.
func (t *MindmapTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	var a struct {
		PaperID string `json:"paper_id"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("generate_mindmap: bad arguments: %w", err)
	}
	if a.PaperID == "" {
		return nil, fmt.Errorf("generate_mindmap: paper_id is required")
	}
	content, err := t.catalog.PaperContent(ctx, a.PaperID)
	if err != nil {
		return nil, err
	}
	mindmap, err := generateJSON(ctx, t.model, mindmapSystemPrompt,
		clip(content, analysisInputChars), 3000)
	if err != nil {
		return nil, fmt.Errorf("generate_mindmap: %w", err)
	}
	return map[string]any{
		"paper_id": a.PaperID,
		"mindmap":  mindmap,
	}, nil
}

// CompareTool implements the compare_papers tool.
type CompareTool struct {
	catalog Catalog
	model   model.Model
}

var _ tool.Tool = (*CompareTool)(nil)

// NewCompareTool creates the compare_papers tool.
func NewCompareTool(catalog Catalog, m model.Model) *CompareTool {
	return &CompareTool{catalog: catalog, model: m}
}

// Declaration implements tool.Tool.
func (t *CompareTool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name: "compare_papers",
		Description: "Compare two to five indexed papers and analyze their similarities " +
			"and differences. Suited for literature review and method comparison.",
		Parameters: tool.ObjectSchema(map[string]any{
			"paper_ids": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Ids of the papers to compare (2-5)",
			},
			"aspects": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "string",
					"enum": []string{"methodology", "dataset", "results", "contribution"},
				},
				"description": "Comparison aspects (optional)",
			},
		}, "paper_ids"),
	}
}

// Call implements tool.Tool.
func (t *CompareTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	var a struct {
		PaperIDs []string `json:"paper_ids"`
		Aspects  []string `json:"aspects"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("compare_papers: bad arguments: %w", err)
	}
	if len(a.PaperIDs) < minComparePapers {
		return nil, fmt.Errorf("compare_papers: at least %d papers required", minComparePapers)
	}
	if len(a.PaperIDs) > maxComparePapers {
		return nil, fmt.Errorf("compare_papers: at most %d papers supported", maxComparePapers)
	}

	var b strings.Builder
	if len(a.Aspects) > 0 {
		fmt.Fprintf(&b, "Aspects to compare: %s\n\n", strings.Join(a.Aspects, ", "))
	}
	for i, paperID := range a.PaperIDs {
		content, err := t.catalog.PaperContent(ctx, paperID)
		if err != nil {
			return nil, fmt.Errorf("compare_papers: paper %s: %w", paperID, err)
		}
		fmt.Fprintf(&b, "Paper %d (%s):\n%s\n\n", i+1, paperID, clip(content, compareInputChars))
	}

	comparison, err := generateJSON(ctx, t.model, compareSystemPrompt, b.String(), 4000)
	if err != nil {
		return nil, fmt.Errorf("compare_papers: %w", err)
	}
	return map[string]any{
		"paper_ids":  a.PaperIDs,
		"comparison": comparison,
	}, nil
}

// generateJSON runs a JSON-mode completion and decodes the object.
func generateJSON(ctx context.Context, m model.Model, system, user string, maxTokens int) (map[string]any, error) {
	ch, err := m.GenerateContent(ctx, &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage(system),
			model.NewUserMessage(user),
		},
		Temperature:  model.FloatPtr(0.2),
		MaxTokens:    model.IntPtr(maxTokens),
		JSONResponse: true,
	})
	if err != nil {
		return nil, err
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
	var out map[string]any
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	return out, nil
}

func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "\n\n[text truncated...]"
}
