//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

// Package openai provides OpenAI-compatible chat-completion and embedding
// implementations of the model interfaces.
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/papermind/papermind/model"
)

// Environment variables consulted when options are not supplied.
const (
	envAPIKey  = "OPENAI_API_KEY"
	envBaseURL = "OPENAI_BASE_URL"
)

const defaultChannelBufferSize = 256

// ErrNilRequest is returned when GenerateContent receives a nil request.
var ErrNilRequest = errors.New("openai: request is nil")

// Model is a chat-completion client for OpenAI-compatible endpoints.
type Model struct {
	name              string
	client            openai.Client
	channelBufferSize int
}

var _ model.Model = (*Model)(nil)

type options struct {
	apiKey            string
	baseURL           string
	channelBufferSize int
	extraOptions      []openaiopt.RequestOption
}

// Option configures the Model.
type Option func(*options)

// WithAPIKey sets the API key. Defaults to $OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL sets the endpoint base URL. Defaults to $OPENAI_BASE_URL.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithChannelBufferSize sets the response channel buffer size.
func WithChannelBufferSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.channelBufferSize = size
		}
	}
}

// WithRequestOptions appends raw client request options.
func WithRequestOptions(opts ...openaiopt.RequestOption) Option {
	return func(o *options) { o.extraOptions = append(o.extraOptions, opts...) }
}

// New creates a Model for the named deployment.
func New(name string, opts ...Option) *Model {
	o := options{
		apiKey:            os.Getenv(envAPIKey),
		baseURL:           os.Getenv(envBaseURL),
		channelBufferSize: defaultChannelBufferSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	var clientOpts []openaiopt.RequestOption
	if o.apiKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.apiKey))
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.baseURL))
	}
	clientOpts = append(clientOpts, o.extraOptions...)
	return &Model{
		name:              name,
		client:            openai.NewClient(clientOpts...),
		channelBufferSize: o.channelBufferSize,
	}
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name}
}

// GenerateContent implements model.Model.
func (m *Model) GenerateContent(ctx context.Context, req *model.Request) (<-chan *model.Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	chatRequest := m.buildChatRequest(req)
	responseChan := make(chan *model.Response, m.channelBufferSize)
	if req.Stream {
		go m.handleStreamingResponse(ctx, chatRequest, responseChan)
	} else {
		go m.handleNonStreamingResponse(ctx, chatRequest, responseChan)
	}
	return responseChan, nil
}

func (m *Model) buildChatRequest(req *model.Request) openai.ChatCompletionNewParams {
	chatRequest := openai.ChatCompletionNewParams{
		Messages: convertMessages(req.Messages),
		Model:    shared.ChatModel(m.name),
	}
	if len(req.Tools) > 0 {
		chatRequest.Tools = convertTools(req.Tools)
	}
	if req.Temperature != nil {
		chatRequest.Temperature = openai.Float(*req.Temperature)
	}
	// MaxTokens is deprecated and not compatible with o-series models.
	if req.MaxTokens != nil {
		chatRequest.MaxCompletionTokens = openai.Int(int64(*req.MaxTokens))
	}
	if req.JSONResponse {
		chatRequest.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	if req.Stream {
		chatRequest.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}
	}
	return chatRequest
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			}
		case model.RoleAssistant:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
					ToolCalls: convertToolCalls(msg.ToolCalls),
				},
			}
		case model.RoleTool:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfTool: &openai.ChatCompletionToolMessageParam{
					Content: openai.ChatCompletionToolMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
					ToolCallID: msg.ToolCallID,
				},
			}
		default:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			}
		}
	}
	return result
}

func convertToolCalls(toolCalls []model.ToolCall) []openai.ChatCompletionMessageToolCallParam {
	var result []openai.ChatCompletionMessageToolCallParam
	for _, toolCall := range toolCalls {
		result = append(result, openai.ChatCompletionMessageToolCallParam{
			ID: toolCall.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      toolCall.Name,
				Arguments: string(toolCall.Arguments),
			},
		})
	}
	return result
}

func convertTools(tools []model.ToolDefinition) []openai.ChatCompletionToolParam {
	result := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		result = append(result, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  shared.FunctionParameters(t.Parameters),
			},
		})
	}
	return result
}

func (m *Model) handleStreamingResponse(
	ctx context.Context,
	chatRequest openai.ChatCompletionNewParams,
	responseChan chan<- *model.Response,
) {
	defer close(responseChan)
	stream := m.client.Chat.Completions.NewStreaming(ctx, chatRequest)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if !emit(ctx, responseChan, &model.Response{Delta: delta}) {
				return
			}
		}
	}
	if err := stream.Err(); err != nil {
		emit(ctx, responseChan, &model.Response{
			IsFinal: true,
			Err:     fmt.Errorf("chat completion stream: %w", err),
		})
		return
	}
	final := &model.Response{IsFinal: true}
	if len(acc.Choices) > 0 {
		final.Content = acc.Choices[0].Message.Content
		final.ToolCalls = extractToolCalls(acc.Choices[0].Message.ToolCalls)
	}
	emit(ctx, responseChan, final)
}

func (m *Model) handleNonStreamingResponse(
	ctx context.Context,
	chatRequest openai.ChatCompletionNewParams,
	responseChan chan<- *model.Response,
) {
	defer close(responseChan)
	chatCompletion, err := m.client.Chat.Completions.New(ctx, chatRequest)
	if err != nil {
		emit(ctx, responseChan, &model.Response{
			IsFinal: true,
			Err:     fmt.Errorf("chat completion: %w", err),
		})
		return
	}
	final := &model.Response{IsFinal: true}
	if len(chatCompletion.Choices) > 0 {
		final.Content = chatCompletion.Choices[0].Message.Content
		final.ToolCalls = extractToolCalls(chatCompletion.Choices[0].Message.ToolCalls)
	}
	emit(ctx, responseChan, final)
}

func extractToolCalls(toolCalls []openai.ChatCompletionMessageToolCall) []model.ToolCall {
	var result []model.ToolCall
	for i, toolCall := range toolCalls {
		id := toolCall.ID
		if id == "" {
			// Synthesize an id for providers that omit it.
			id = "auto_call_" + strconv.Itoa(i)
		}
		result = append(result, model.ToolCall{
			ID:        id,
			Name:      toolCall.Function.Name,
			Arguments: []byte(toolCall.Function.Arguments),
		})
	}
	return result
}

func emit(ctx context.Context, ch chan<- *model.Response, rsp *model.Response) bool {
	select {
	case ch <- rsp:
		return true
	case <-ctx.Done():
		return false
	}
}
