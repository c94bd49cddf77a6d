//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"

	"github.com/papermind/papermind/log"
	"github.com/papermind/papermind/model"
)

const (
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultDimensions     = 1536
)

// retryBackoff is the per-attempt wait schedule for transient embedding
// failures. len(retryBackoff) bounds the retry count.
var retryBackoff = []time.Duration{
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
	800 * time.Millisecond,
}

// ErrEmptyInput is returned when Embed receives no texts.
var ErrEmptyInput = errors.New("openai: no texts to embed")

// Embedder produces embeddings through the OpenAI embeddings API.
type Embedder struct {
	client     openai.Client
	model      string
	dimensions int
}

var _ model.Embedder = (*Embedder)(nil)

// EmbedderOption configures the Embedder.
type EmbedderOption func(*embedderOptions)

type embedderOptions struct {
	apiKey     string
	baseURL    string
	model      string
	dimensions int
}

// WithEmbedderAPIKey sets the API key. Defaults to $OPENAI_API_KEY.
func WithEmbedderAPIKey(key string) EmbedderOption {
	return func(o *embedderOptions) { o.apiKey = key }
}

// WithEmbedderBaseURL sets the endpoint base URL. Defaults to $OPENAI_BASE_URL.
func WithEmbedderBaseURL(url string) EmbedderOption {
	return func(o *embedderOptions) { o.baseURL = url }
}

// WithEmbeddingModel sets the embedding model name.
func WithEmbeddingModel(name string) EmbedderOption {
	return func(o *embedderOptions) { o.model = name }
}

// WithDimensions sets the expected vector dimension.
func WithDimensions(dim int) EmbedderOption {
	return func(o *embedderOptions) {
		if dim > 0 {
			o.dimensions = dim
		}
	}
}

// NewEmbedder creates an Embedder.
func NewEmbedder(opts ...EmbedderOption) *Embedder {
	o := embedderOptions{
		apiKey:     os.Getenv(envAPIKey),
		baseURL:    os.Getenv(envBaseURL),
		model:      defaultEmbeddingModel,
		dimensions: defaultDimensions,
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
	return &Embedder{
		client:     openai.NewClient(clientOpts...),
		model:      o.model,
		dimensions: o.dimensions,
	}
}

// Dimensions implements model.Embedder.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Embed implements model.Embedder. All texts go out in one batched request;
// transient failures are retried with exponential backoff.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	rsp, err := e.createWithRetry(ctx, openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormat("float"),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(rsp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(rsp.Data), len(texts))
	}
	vectors := make([][]float64, len(rsp.Data))
	for i, d := range rsp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

func (e *Embedder) createWithRetry(
	ctx context.Context,
	params openai.EmbeddingNewParams,
) (*openai.CreateEmbeddingResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= len(retryBackoff); attempt++ {
		rsp, err := e.client.Embeddings.New(ctx, params)
		if err == nil {
			return rsp, nil
		}
		lastErr = err
		if attempt == len(retryBackoff) {
			break
		}
		log.Warnf("embedding request failed (attempt %d): %v", attempt+1, err)
		select {
		case <-time.After(retryBackoff[attempt]):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
