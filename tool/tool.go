//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

// Package tool defines the agent tool contract and the registry the agent
// selects tools from.
package tool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/papermind/papermind/model"
)

// Declaration describes a tool to the model. Parameters is a JSON-schema
// object.
type Declaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Tool is one callable agent tool.
type Tool interface {
	// Declaration returns the model-facing description.
	Declaration() *Declaration
	// Call executes the tool with JSON arguments.
	Call(ctx context.Context, args json.RawMessage) (any, error)
}

// Result is the uniform envelope every tool execution produces.
type Result struct {
	Success    bool   `json:"success"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	IsDegraded bool   `json:"is_degraded,omitempty"`
}

// Execute runs the tool and wraps the outcome in a Result. Errors are
// folded into the envelope; the caller decides how to surface them.
func Execute(ctx context.Context, t Tool, args json.RawMessage) *Result {
	start := time.Now()
	data, err := t.Call(ctx, args)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return &Result{Success: false, Error: err.Error(), DurationMS: elapsed}
	}
	return &Result{Success: true, Data: data, DurationMS: elapsed}
}

// ToDefinition converts a declaration into the model request shape.
func (d *Declaration) ToDefinition() model.ToolDefinition {
	return model.ToolDefinition{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  d.Parameters,
	}
}

// ObjectSchema builds a JSON-schema object from property definitions.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProp is a shorthand for a string schema property.
func StringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// IntProp is a shorthand for an integer schema property.
func IntProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

// BoolProp is a shorthand for a boolean schema property.
func BoolProp(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}
