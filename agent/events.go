//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package agent

// Event types emitted on the agent stream, in the order a consumer can
// rely on: conversation always first, done always last and exactly once.
const (
	EventConversation = "conversation"
	EventToken        = "token"
	EventNodeStart    = "node_start"
	EventThinking     = "thinking"
	EventToolCall     = "tool_call"
	EventPapers       = "papers"
	EventReferences   = "references"
	EventAnswer       = "answer"
	EventAnswerEnd    = "answer_end"
	EventDone         = "done"
	EventError        = "error"
)

// Event is one server-sent agent event.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// ConversationData opens every stream.
type ConversationData struct {
	ConversationID string `json:"conversation_id"`
}

// TokenData carries one streamed answer fragment.
type TokenData struct {
	Content string `json:"content"`
}

// NodeStartData announces a graph node beginning work.
type NodeStartData struct {
	Node      string `json:"node"`
	Iteration int    `json:"iteration"`
}

// ThinkingData carries intermediate model reasoning summaries.
type ThinkingData struct {
	Content string `json:"content"`
}

// ToolCallData announces one tool invocation and later its outcome.
type ToolCallData struct {
	Tool       string `json:"tool"`
	Arguments  any    `json:"arguments,omitempty"`
	Status     string `json:"status"` // running, success, error, degraded
	DurationMS int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// PapersData surfaces a tool result recognized as paper search results.
type PapersData struct {
	Query  string `json:"query"`
	Total  int    `json:"total"`
	Papers []any  `json:"papers"`
}

// AnswerData carries the full final answer.
type AnswerData struct {
	Content string `json:"content"`
}

// ErrorData reports a stream-fatal error.
type ErrorData struct {
	Message string `json:"error"`
}

// DoneData closes the stream.
type DoneData struct {
	ConversationID string `json:"conversation_id"`
	Iterations     int    `json:"iterations"`
}
