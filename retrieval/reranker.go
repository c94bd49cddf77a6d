//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package retrieval

import (
	"context"
	"net/http"
	"os"
	"sort"

	"github.com/papermind/papermind/internal/httpclient"
)

const envRerankerURL = "RERANKER_URL"

// Reranker scores (query, candidate) pairs with a cross-encoder and
// returns the candidates sorted by that score.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []Result) ([]Result, error)
}

// HTTPReranker talks to a self-hosted Infinity/TEI-style rerank endpoint.
type HTTPReranker struct {
	endpoint   string
	apiKey     string
	modelName  string
	httpClient *httpclient.Client
}

var _ Reranker = (*HTTPReranker)(nil)

// RerankerOption configures HTTPReranker.
type RerankerOption func(*HTTPReranker)

// WithRerankerEndpoint sets the endpoint URL. Defaults to $RERANKER_URL.
func WithRerankerEndpoint(endpoint string) RerankerOption {
	return func(r *HTTPReranker) { r.endpoint = endpoint }
}

// WithRerankerAPIKey sets the API key (optional for self-hosted).
func WithRerankerAPIKey(key string) RerankerOption {
	return func(r *HTTPReranker) { r.apiKey = key }
}

// WithRerankerModel sets the model name (optional, depends on server config).
func WithRerankerModel(name string) RerankerOption {
	return func(r *HTTPReranker) { r.modelName = name }
}

// WithRerankerHTTPClient sets a custom HTTP client.
func WithRerankerHTTPClient(client *http.Client) RerankerOption {
	return func(r *HTTPReranker) { r.httpClient = httpclient.NewClient(client) }
}

// NewHTTPReranker creates an HTTPReranker.
func NewHTTPReranker(opts ...RerankerOption) *HTTPReranker {
	r := &HTTPReranker{
		endpoint:   os.Getenv(envRerankerURL),
		httpClient: httpclient.NewClient(nil),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rerank implements Reranker.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, results []Result) ([]Result, error) {
	if len(results) == 0 {
		return results, nil
	}
	docs := make([]string, len(results))
	for i, res := range results {
		docs[i] = res.Content
	}
	scores, err := r.httpClient.Rerank(ctx, r.endpoint, r.apiKey, httpclient.RerankRequest{
		Model:     r.modelName,
		Query:     query,
		Documents: docs,
	})
	if err != nil {
		return nil, err
	}
	reranked := make([]Result, 0, len(scores))
	for _, s := range scores {
		if s.Index < 0 || s.Index >= len(results) {
			continue
		}
		res := results[s.Index]
		res.RerankScore = s.RelevanceScore
		reranked = append(reranked, res)
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].RerankScore > reranked[j].RerankScore
	})
	return reranked, nil
}
