//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

// Package retrieval implements hybrid search over the dual index: query
// translation, concurrent dense and sparse legs, reciprocal rank fusion
// and optional cross-encoder reranking.
package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/papermind/papermind/index"
	"github.com/papermind/papermind/log"
	"github.com/papermind/papermind/model"
)

// Defaults for Search.
const (
	DefaultTopK     = 5
	DefaultInitialK = 20
)

// ErrEmptyQuery is returned when the query is blank.
var ErrEmptyQuery = errors.New("retrieval: query is empty")

const translatePrompt = "You are a translation assistant for academic search queries. " +
	"Translate the user's query into English. " +
	"Return only the translated query, nothing else."

// SearchRequest parameterizes one hybrid search.
type SearchRequest struct {
	Query string
	// TopK bounds the final result count. Defaults to DefaultTopK.
	TopK int
	// PaperID scopes both legs to one paper when non-empty.
	PaperID string
	// UseReranker applies the cross-encoder when a reranker is configured.
	UseReranker bool
	// TranslateQuery renders zh/mixed queries into English before searching.
	TranslateQuery bool
	// InitialK is the per-leg candidate count. Defaults to DefaultInitialK.
	InitialK int
}

// Stats counts candidates at each pipeline stage.
type Stats struct {
	DenseCount  int `json:"dense_count"`
	SparseCount int `json:"sparse_count"`
	FusedCount  int `json:"fused_count"`
	FinalCount  int `json:"final_count"`
}

// SearchResponse is the hybrid search outcome.
type SearchResponse struct {
	Results []Result `json:"results"`
	// TranslatedQuery is set when translation ran and succeeded.
	TranslatedQuery string `json:"translated_query,omitempty"`
	DetectedLang    string `json:"detected_lang"`
	Stats           Stats  `json:"stats"`
}

// Retriever runs the hybrid pipeline.
type Retriever struct {
	dual       *index.DualIndex
	translator model.Model
	reranker   Reranker
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTranslator sets the light model used for query translation.
func WithTranslator(m model.Model) Option {
	return func(r *Retriever) { r.translator = m }
}

// WithReranker sets the cross-encoder reranker.
func WithReranker(rr Reranker) Option {
	return func(r *Retriever) { r.reranker = rr }
}

// New creates a Retriever over the dual index.
func New(dual *index.DualIndex, opts ...Option) *Retriever {
	r := &Retriever{dual: dual}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Search runs translate -> dense -> sparse -> fuse -> rerank -> truncate.
// The dense and sparse legs run concurrently; a failed dense leg degrades
// to sparse-only results rather than failing the search.
func (r *Retriever) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	initialK := req.InitialK
	if initialK <= 0 {
		initialK = DefaultInitialK
	}

	rsp := &SearchResponse{DetectedLang: DetectLanguage(query)}
	searchQuery := query
	if req.TranslateQuery && (rsp.DetectedLang == LangZH || rsp.DetectedLang == LangMixed) {
		if translated, err := r.translate(ctx, query); err != nil {
			log.Warnf("query translation failed, searching with original: %v", err)
		} else if translated != "" {
			searchQuery = translated
			rsp.TranslatedQuery = translated
		}
	}

	var (
		wg       sync.WaitGroup
		dense    []index.SearchResult
		sparse   []index.SearchResult
		denseErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		dense, denseErr = r.dual.DenseSearch(ctx, searchQuery, initialK, req.PaperID)
	}()
	go func() {
		defer wg.Done()
		sparse = r.dual.SparseSearch(searchQuery, initialK, req.PaperID)
	}()
	wg.Wait()
	if denseErr != nil {
		log.Warnf("dense search failed, continuing with sparse only: %v", denseErr)
		dense = nil
	}
	rsp.Stats.DenseCount = len(dense)
	rsp.Stats.SparseCount = len(sparse)

	fused := FuseRRF(RRFK, dense, sparse)
	rsp.Stats.FusedCount = len(fused)

	final := fused
	if req.UseReranker && r.reranker != nil && len(fused) > 0 {
		reranked, err := r.reranker.Rerank(ctx, searchQuery, fused)
		if err != nil {
			log.Warnf("rerank failed, keeping fused order: %v", err)
			final = copyFusedScores(fused)
		} else {
			final = reranked
		}
	} else {
		final = copyFusedScores(fused)
	}

	if len(final) > topK {
		final = final[:topK]
	}
	rsp.Stats.FinalCount = len(final)
	rsp.Results = final
	return rsp, nil
}

// DenseOnly runs the dense leg alone, for callers that want pure vector
// similarity without fusion.
func (r *Retriever) DenseOnly(ctx context.Context, query string, topK int, paperID string) ([]index.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return r.dual.DenseSearch(ctx, query, topK, paperID)
}

// copyFusedScores fills RerankScore with the best upstream score when no
// cross-encoder ran, so callers can sort on one field either way.
func copyFusedScores(fused []Result) []Result {
	out := make([]Result, len(fused))
	for i, r := range fused {
		r.RerankScore = r.RRFScore
		out[i] = r
	}
	return out
}

func (r *Retriever) translate(ctx context.Context, query string) (string, error) {
	if r.translator == nil {
		return "", errors.New("no translator configured")
	}
	ch, err := r.translator.GenerateContent(ctx, &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage(translatePrompt),
			model.NewUserMessage(query),
		},
		Temperature: model.FloatPtr(0.1),
		MaxTokens:   model.IntPtr(100),
	})
	if err != nil {
		return "", err
	}
	var content string
	for rsp := range ch {
		if rsp.Err != nil {
			return "", rsp.Err
		}
		if rsp.IsFinal {
			content = rsp.Content
		}
	}
	return strings.TrimSpace(content), nil
}
