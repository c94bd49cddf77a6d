//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package openai

import (
	"context"
	"testing"

	openai "github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papermind/papermind/model"
)

func TestGenerateContentNilRequest(t *testing.T) {
	m := New("gpt-4o-mini", WithAPIKey("test-key"))
	_, err := m.GenerateContent(context.Background(), nil)
	require.ErrorIs(t, err, ErrNilRequest)
}

func TestBuildChatRequest(t *testing.T) {
	m := New("gpt-4o-mini", WithAPIKey("test-key"))
	req := &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage("you are helpful"),
			model.NewUserMessage("hello"),
		},
		Temperature:  model.FloatPtr(0.1),
		MaxTokens:    model.IntPtr(8000),
		JSONResponse: true,
	}
	chatRequest := m.buildChatRequest(req)

	require.Len(t, chatRequest.Messages, 2)
	assert.NotNil(t, chatRequest.Messages[0].OfSystem)
	assert.NotNil(t, chatRequest.Messages[1].OfUser)
	assert.Equal(t, 0.1, chatRequest.Temperature.Value)
	assert.Equal(t, int64(8000), chatRequest.MaxCompletionTokens.Value)
	assert.NotNil(t, chatRequest.ResponseFormat.OfJSONObject)
}

func TestConvertMessagesRoles(t *testing.T) {
	msgs := []model.Message{
		model.NewSystemMessage("s"),
		model.NewUserMessage("u"),
		{
			Role:    model.RoleAssistant,
			Content: "a",
			ToolCalls: []model.ToolCall{
				{ID: "call_1", Name: "semantic_search", Arguments: []byte(`{"query":"x"}`)},
			},
		},
		model.NewToolMessage("call_1", "semantic_search", `{"results":[]}`),
	}
	converted := convertMessages(msgs)
	require.Len(t, converted, 4)
	require.NotNil(t, converted[2].OfAssistant)
	require.Len(t, converted[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "call_1", converted[2].OfAssistant.ToolCalls[0].ID)
	assert.Equal(t, "semantic_search", converted[2].OfAssistant.ToolCalls[0].Function.Name)
	require.NotNil(t, converted[3].OfTool)
	assert.Equal(t, "call_1", converted[3].OfTool.ToolCallID)
}

func TestConvertTools(t *testing.T) {
	tools := []model.ToolDefinition{
		{
			Name:        "ask_paper",
			Description: "answer a question about one paper",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"paper_id": map[string]any{"type": "string"},
					"question": map[string]any{"type": "string"},
				},
				"required": []string{"paper_id", "question"},
			},
		},
	}
	converted := convertTools(tools)
	require.Len(t, converted, 1)
	assert.Equal(t, "ask_paper", converted[0].Function.Name)
	assert.Equal(t, "answer a question about one paper", converted[0].Function.Description.Value)
	assert.Contains(t, converted[0].Function.Parameters, "properties")
}

func TestExtractToolCallsSynthesizesID(t *testing.T) {
	m := New("gpt-4o-mini")
	assert.Equal(t, "gpt-4o-mini", m.Info().Name)

	// Providers sometimes omit tool call ids.
	calls := extractToolCalls([]openai.ChatCompletionMessageToolCall{
		{Function: openai.ChatCompletionMessageToolCallFunction{Name: "list_papers", Arguments: "{}"}},
	})
	require.Len(t, calls, 1)
	assert.Equal(t, "auto_call_0", calls[0].ID)
	assert.Equal(t, "list_papers", calls[0].Name)
}
