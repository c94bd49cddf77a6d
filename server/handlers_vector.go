//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/papermind/papermind/ingest"
	"github.com/papermind/papermind/log"
	"github.com/papermind/papermind/retrieval"
)

type indexRequest struct {
	PaperID  string `json:"paper_id"`
	Title    string `json:"title"`
	FileName string `json:"filename"`
	// Content is chunked server-side; StructuredChunks bypass the parser
	// and chunker and index as supplied.
	Content          string                   `json:"content"`
	StructuredChunks []ingest.StructuredChunk `json:"structured_chunks"`
	MaxChunkSize     int                      `json:"max_chunk_size"`
	PaperMetadata    map[string]any           `json:"paper_metadata"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PaperID == "" || (req.Content == "" && len(req.StructuredChunks) == 0) {
		writeError(w, http.StatusBadRequest, "paper_id and content or structured_chunks are required")
		return
	}
	result, err := s.pipeline.Ingest(r.Context(), ingest.Paper{
		PaperID:          req.PaperID,
		Title:            req.Title,
		FileName:         req.FileName,
		Text:             req.Content,
		StructuredChunks: req.StructuredChunks,
		MaxChunkSize:     req.MaxChunkSize,
		Metadata:         req.PaperMetadata,
	})
	if err != nil {
		if strings.Contains(err.Error(), "reserved namespace") {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type searchRequest struct {
	Query       string `json:"query"`
	TopK        int    `json:"top_k"`
	PaperID     string `json:"paper_id"`
	UseReranker bool   `json:"use_reranker"`
	Translate   bool   `json:"translate"`
}

// handleSearch serves dense-only search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}
	results, err := s.retriever.DenseOnly(r.Context(), req.Query, topK, req.PaperID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   req.Query,
		"results": results,
	})
}

// handleHybridSearch serves the full hybrid pipeline.
func (s *Server) handleHybridSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rsp, err := s.retriever.Search(r.Context(), retrieval.SearchRequest{
		Query:          req.Query,
		TopK:           req.TopK,
		PaperID:        req.PaperID,
		UseReranker:    req.UseReranker,
		TranslateQuery: req.Translate,
	})
	if errors.Is(err, retrieval.ErrEmptyQuery) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rsp)
}

type qaStreamRequest struct {
	Question string `json:"question"`
	PaperID  string `json:"paper_id"`
}

// handleQAStream answers a question over SSE. The references event is
// always sent before the first answer token, then answer_end and done.
func (s *Server) handleQAStream(w http.ResponseWriter, r *http.Request) {
	if s.askTool == nil {
		writeError(w, http.StatusServiceUnavailable, "qa is not configured")
		return
	}
	var req qaStreamRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	refs, err := s.askTool.Retrieve(r.Context(), req.Question, req.PaperID)
	if err != nil {
		_ = sse.send("error", map[string]string{"error": err.Error()})
		_ = sse.send("done", nil)
		return
	}
	_ = sse.send("references", map[string]any{"references": refs})

	var streamed bool
	answer, err := s.askTool.AnswerFromRefs(r.Context(), req.Question, refs, nil, func(delta string) {
		streamed = true
		_ = sse.send("token", map[string]string{"content": delta})
	})
	if err != nil {
		_ = sse.send("error", map[string]string{"error": err.Error()})
		_ = sse.send("done", nil)
		return
	}
	// Non-streaming answers (e.g. the no-results message) still get one
	// token event so consumers see the text before answer_end.
	if !streamed && answer != "" {
		_ = sse.send("token", map[string]string{"content": answer})
	}
	_ = sse.send("answer_end", nil)
	_ = sse.send("done", nil)
}

func (s *Server) handleDeletePaper(w http.ResponseWriter, r *http.Request) {
	paperID := mux.Vars(r)["paper_id"]
	if strings.HasPrefix(paperID, "memory:") {
		writeError(w, http.StatusBadRequest, "reserved namespace")
		return
	}
	if err := s.pipeline.Delete(r.Context(), paperID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Infof("deleted paper %s", paperID)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": paperID})
}
