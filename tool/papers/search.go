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
	"github.com/papermind/papermind/retrieval"
	"github.com/papermind/papermind/tool"
)

const (
	snippetChars      = 500
	qaHistoryLimit    = 5
	qaContextChunks   = 5
	qaAnswerMaxTokens = 2000
)

// SemanticTool implements the semantic_search tool.
type SemanticTool struct {
	retriever *retrieval.Retriever
}

var _ tool.Tool = (*SemanticTool)(nil)

// NewSemanticTool creates the semantic_search tool.
func NewSemanticTool(r *retrieval.Retriever) *SemanticTool {
	return &SemanticTool{retriever: r}
}

// Declaration implements tool.Tool.
func (t *SemanticTool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name: "semantic_search",
		Description: "Search the indexed papers by meaning rather than keywords. " +
			"Describe what you are looking for in natural language; " +
			"works across all indexed papers or within one paper.",
		Parameters: tool.ObjectSchema(map[string]any{
			"query":    tool.StringProp("Natural-language description of the content to find"),
			"top_k":    tool.IntProp("Number of results, defaults to 5"),
			"paper_id": tool.StringProp("Restrict the search to one paper (optional)"),
		}, "query"),
	}
}

// Call implements tool.Tool.
func (t *SemanticTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	var a struct {
		Query   string `json:"query"`
		TopK    int    `json:"top_k"`
		PaperID string `json:"paper_id"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("semantic_search: bad arguments: %w", err)
	}
	rsp, err := t.retriever.Search(ctx, retrieval.SearchRequest{
		Query:          a.Query,
		TopK:           a.TopK,
		PaperID:        a.PaperID,
		TranslateQuery: true,
	})
	if err != nil {
		return nil, err
	}
	results := make([]map[string]any, 0, len(rsp.Results))
	for _, r := range rsp.Results {
		results = append(results, map[string]any{
			"paper_id":    r.PaperID,
			"title":       r.Title,
			"content":     snippet(r.Content, snippetChars),
			"section":     r.HierarchyPath,
			"chunk_index": r.ChunkIndex,
			"score":       r.RerankScore,
		})
	}
	return map[string]any{
		"query":   a.Query,
		"results": results,
	}, nil
}

const qaSystemPrompt = `You answer questions about academic papers using only the provided excerpts.
Cite the section an answer comes from when the excerpts name one.
If the excerpts do not contain the answer, say so instead of guessing.`

// Reference is one source excerpt backing a QA answer.
type Reference struct {
	PaperID    string  `json:"paper_id"`
	Title      string  `json:"title,omitempty"`
	Section    string  `json:"section,omitempty"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// AskTool implements the ask_paper tool: retrieval-grounded QA over the
// indexed papers.
type AskTool struct {
	retriever *retrieval.Retriever
	model     model.Model
}

var _ tool.Tool = (*AskTool)(nil)

// NewAskTool creates the ask_paper tool.
func NewAskTool(r *retrieval.Retriever, m model.Model) *AskTool {
	return &AskTool{retriever: r, model: m}
}

// Declaration implements tool.Tool.
func (t *AskTool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name: "ask_paper",
		Description: "Ask a question about the indexed papers and get an answer grounded " +
			"in their content, with source excerpts. " +
			"Scope to one paper with paper_id, or search all papers.",
		Parameters: tool.ObjectSchema(map[string]any{
			"question": tool.StringProp("The question to answer"),
			"paper_id": tool.StringProp("Restrict to one paper (optional)"),
		}, "question"),
	}
}

// Call implements tool.Tool.
func (t *AskTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	var a struct {
		Question string `json:"question"`
		PaperID  string `json:"paper_id"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("ask_paper: bad arguments: %w", err)
	}
	answer, refs, err := t.Answer(ctx, a.Question, a.PaperID, nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"question":   a.Question,
		"answer":     answer,
		"references": refs,
	}, nil
}

// Answer runs retrieval-grounded QA. history carries recent conversation
// turns for follow-up questions; only the last few are used.
func (t *AskTool) Answer(ctx context.Context, question, paperID string, history []model.Message) (string, []Reference, error) {
	refs, err := t.Retrieve(ctx, question, paperID)
	if err != nil {
		return "", nil, err
	}
	answer, err := t.AnswerFromRefs(ctx, question, refs, history, nil)
	if err != nil {
		return "", nil, err
	}
	if len(refs) == 0 {
		return answer, nil, nil
	}
	return answer, refs, nil
}

// AnswerFromRefs answers a question grounded in already-retrieved
// excerpts. Streaming callers retrieve first, emit the references, then
// call this with an onDelta callback that receives each token fragment
// as the model produces it; a nil callback runs the model unstreamed.
func (t *AskTool) AnswerFromRefs(ctx context.Context, question string, refs []Reference, history []model.Message, onDelta func(string)) (string, error) {
	if len(refs) == 0 {
		return "No relevant content found in the indexed papers.", nil
	}

	msgs := []model.Message{model.NewSystemMessage(qaSystemPrompt)}
	if len(history) > qaHistoryLimit {
		history = history[len(history)-qaHistoryLimit:]
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, model.NewUserMessage(buildQAPrompt(question, refs)))

	ch, err := t.model.GenerateContent(ctx, &model.Request{
		Messages:    msgs,
		Temperature: model.FloatPtr(0.3),
		MaxTokens:   model.IntPtr(qaAnswerMaxTokens),
		Stream:      onDelta != nil,
	})
	if err != nil {
		return "", fmt.Errorf("ask_paper: %w", err)
	}
	var (
		answer   string
		streamed strings.Builder
	)
	for rsp := range ch {
		if rsp.Err != nil {
			return "", fmt.Errorf("ask_paper: %w", rsp.Err)
		}
		if rsp.Delta != "" {
			streamed.WriteString(rsp.Delta)
			if onDelta != nil {
				onDelta(rsp.Delta)
			}
		}
		if rsp.IsFinal {
			answer = rsp.Content
		}
	}
	if answer == "" {
		answer = streamed.String()
	}
	return strings.TrimSpace(answer), nil
}

// Retrieve returns the grounding excerpts for a question without running
// the answer model. Streaming callers use this to emit references before
// the first token.
func (t *AskTool) Retrieve(ctx context.Context, question, paperID string) ([]Reference, error) {
	rsp, err := t.retriever.Search(ctx, retrieval.SearchRequest{
		Query:          question,
		TopK:           qaContextChunks,
		PaperID:        paperID,
		UseReranker:    true,
		TranslateQuery: true,
	})
	if err != nil {
		return nil, err
	}
	refs := make([]Reference, 0, len(rsp.Results))
	for _, r := range rsp.Results {
		refs = append(refs, Reference{
			PaperID:    r.PaperID,
			Title:      r.Title,
			Section:    r.HierarchyPath,
			ChunkIndex: r.ChunkIndex,
			Content:    snippet(r.Content, snippetChars),
			Score:      r.RerankScore,
		})
	}
	return refs, nil
}

func buildQAPrompt(question string, refs []Reference) string {
	var b strings.Builder
	b.WriteString("Excerpts from the papers:\n\n")
	for i, ref := range refs {
		fmt.Fprintf(&b, "[%d] %s", i+1, ref.Title)
		if ref.Section != "" {
			fmt.Fprintf(&b, " - %s", ref.Section)
		}
		fmt.Fprintf(&b, "\n%s\n\n", ref.Content)
	}
	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}

func snippet(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
