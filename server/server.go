//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

// Package server exposes the agent and vector pipelines over HTTP: the
// /agent surface (chat, conversations, tools, breakers) and the /vector
// surface (ingestion, search, streaming QA).
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/papermind/papermind/agent"
	"github.com/papermind/papermind/ingest"
	"github.com/papermind/papermind/log"
	"github.com/papermind/papermind/memory"
	"github.com/papermind/papermind/retrieval"
	"github.com/papermind/papermind/tool"
	"github.com/papermind/papermind/tool/papers"
)

// Server wires the application into an HTTP handler.
type Server struct {
	agent     *agent.Agent
	executor  *agent.Executor
	registry  *tool.Registry
	pipeline  *ingest.Pipeline
	retriever *retrieval.Retriever
	askTool   *papers.AskTool
	store     memory.Store
	memoryMgr *memory.Manager
	jwtSecret []byte

	httpServer *http.Server
}

// Option configures the Server.
type Option func(*Server)

// WithJWTSecret enables bearer-token auth with the given HMAC secret.
// Without it the server runs unauthenticated.
func WithJWTSecret(secret []byte) Option {
	return func(s *Server) { s.jwtSecret = secret }
}

// WithStore sets the conversation store backing the /agent/conversations
// endpoints.
func WithStore(store memory.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithMemoryManager lets thread deletion invalidate derived memory state.
func WithMemoryManager(m *memory.Manager) Option {
	return func(s *Server) { s.memoryMgr = m }
}

// WithAskTool sets the QA tool behind /vector/qa-stream.
func WithAskTool(at *papers.AskTool) Option {
	return func(s *Server) { s.askTool = at }
}

// New creates a Server.
func New(a *agent.Agent, executor *agent.Executor, registry *tool.Registry,
	pipeline *ingest.Pipeline, retriever *retrieval.Retriever, opts ...Option) *Server {
	s := &Server{
		agent:     a,
		executor:  executor,
		registry:  registry,
		pipeline:  pipeline,
		retriever: retriever,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	ag := r.PathPrefix("/agent").Subrouter()
	ag.Use(s.authMiddleware)
	ag.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	ag.HandleFunc("/conversations", s.handleListConversations).Methods(http.MethodGet)
	ag.HandleFunc("/conversations/{id}", s.handleGetConversation).Methods(http.MethodGet)
	ag.HandleFunc("/conversations/{id}", s.handleDeleteConversation).Methods(http.MethodDelete)
	ag.HandleFunc("/tools", s.handleListTools).Methods(http.MethodGet)
	ag.HandleFunc("/tools/{name}/execute", s.handleExecuteTool).Methods(http.MethodPost)
	ag.HandleFunc("/circuit-breakers", s.handleBreakerStatus).Methods(http.MethodGet)
	ag.HandleFunc("/circuit-breakers/{name}/reset", s.handleBreakerReset).Methods(http.MethodPost)

	vec := r.PathPrefix("/vector").Subrouter()
	vec.Use(s.authMiddleware)
	vec.HandleFunc("/index", s.handleIndex).Methods(http.MethodPost)
	vec.HandleFunc("/search", s.handleSearch).Methods(http.MethodPost)
	vec.HandleFunc("/hybrid-search", s.handleHybridSearch).Methods(http.MethodPost)
	vec.HandleFunc("/qa-stream", s.handleQAStream).Methods(http.MethodPost)
	vec.HandleFunc("/delete/{paper_id}", s.handleDeletePaper).Methods(http.MethodDelete)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(r)
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Infof("http server listening on %s", addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
