//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package agent

import "fmt"

// Alternative describes how to work around an unavailable tool.
type Alternative struct {
	Alternatives []string
	Description  string
	Hint         string
}

// toolAlternatives maps each tool to its substitutes when its breaker is
// open. Tools with no alternatives degrade to a direct answer.
var toolAlternatives = map[string]Alternative{
	"search_literature": {
		Alternatives: []string{"semantic_search", "list_papers"},
		Description:  "external literature search (OpenAlex)",
		Hint:         "try semantic_search over the user's indexed papers, or list_papers to show what is available locally",
	},
	"get_work_detail": {
		Alternatives: []string{"semantic_search"},
		Description:  "work metadata lookup",
		Hint:         "if the paper is in the user's library, semantic_search can find the relevant content",
	},
	"get_related_works": {
		Alternatives: []string{"search_literature", "semantic_search"},
		Description:  "related-work discovery",
		Hint:         "search_literature can find works on the same topic, or semantic_search locally",
	},
	"semantic_search": {
		Alternatives: []string{"list_papers"},
		Description:  "semantic search",
		Hint:         "list_papers and filter by title instead",
	},
	"ask_paper": {
		Alternatives: []string{"semantic_search"},
		Description:  "paper question answering",
		Hint:         "use semantic_search to find relevant passages and answer from them",
	},
	"generate_mindmap": {
		Alternatives: []string{"analyze_paper"},
		Description:  "mind map generation",
		Hint:         "use analyze_paper and present a textual outline instead of a mind map",
	},
	"analyze_paper": {
		Alternatives: []string{"ask_paper", "semantic_search"},
		Description:  "paper analysis",
		Hint:         "ask_paper can answer targeted questions, or semantic_search can surface key passages",
	},
	"compare_papers": {
		Alternatives: []string{"analyze_paper", "ask_paper"},
		Description:  "paper comparison",
		Hint:         "analyze each paper separately with analyze_paper and synthesize the comparison yourself",
	},
	"list_papers": {
		Alternatives: nil,
		Description:  "paper listing",
		Hint:         "answer directly and tell the user the service is temporarily unavailable",
	},
}

// degradedResult is what the model sees in place of a tool result when the
// breaker rejected the call. No remote call is made.
func degradedResult(toolName string) map[string]any {
	alt, ok := toolAlternatives[toolName]
	if !ok {
		alt = Alternative{
			Hint: "answer from your own knowledge, or tell the user the service is temporarily unavailable",
		}
	}
	return map[string]any{
		"status":       "degraded",
		"tool":         toolName,
		"message":      fmt.Sprintf("tool %q is temporarily unavailable (%s)", toolName, alt.Description),
		"alternatives": alt.Alternatives,
		"hint":         alt.Hint,
		"instruction": "Try the alternative tools first. If none fits, answer from your own knowledge. " +
			"Only tell the user the service is unavailable when you cannot help at all.",
	}
}
