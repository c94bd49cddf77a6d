//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

// Package model defines the chat-completion and embedding contracts shared
// by every component that talks to a language model provider.
package model

import (
	"context"
	"encoding/json"
)

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry in a conversation transcript.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID links a tool-result message back to the call that produced it.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolName is set on tool-result messages.
	ToolName string `json:"tool_name,omitempty"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolMessage creates a tool-result message for the given call id.
func NewToolMessage(toolCallID, toolName, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID, ToolName: toolName}
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition declares one callable function to the model.
// Parameters holds a JSON schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request carries one chat-completion invocation.
type Request struct {
	Messages    []Message
	Tools       []ToolDefinition
	Temperature *float64
	MaxTokens   *int
	// Stream requests incremental delta responses.
	Stream bool
	// JSONResponse forces the provider's JSON-object response mode.
	JSONResponse bool
}

// Response is one element of the response stream. For non-streaming
// requests a single final response is delivered. For streaming requests
// zero or more delta responses precede the final one.
type Response struct {
	// Delta is the incremental content fragment of a streaming response.
	Delta string
	// Content is the accumulated message content. Set on the final response.
	Content string
	// ToolCalls requested by the model. Set on the final response.
	ToolCalls []ToolCall
	// IsFinal marks the last response of the stream.
	IsFinal bool
	// Err reports a provider or transport failure. When set, IsFinal is true.
	Err error
}

// Info describes a model instance.
type Info struct {
	Name string
}

// Model is the chat-completion interface.
//
// GenerateContent returns a channel that delivers responses until the
// final one, then closes. The channel is closed on context cancellation
// as well.
type Model interface {
	Info() Info
	GenerateContent(ctx context.Context, req *Request) (<-chan *Response, error)
}

// Embedder converts texts into fixed-dimension vectors.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	// Dimensions reports the vector dimension produced by Embed.
	Dimensions() int
}

// FloatPtr returns a pointer to v.
func FloatPtr(v float64) *float64 { return &v }

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
