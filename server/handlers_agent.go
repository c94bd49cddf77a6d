//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/papermind/papermind/agent"
	"github.com/papermind/papermind/log"
	"github.com/papermind/papermind/memory"
)

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	Stream         bool   `json:"stream"`
}

type chatResponse struct {
	Answer         string   `json:"answer"`
	Thoughts       []string `json:"thoughts,omitempty"`
	ConversationID string   `json:"conversation_id"`
}

// handleChat runs one agent turn, as SSE when stream is requested and as
// a single JSON response otherwise.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	events, err := s.agent.Run(r.Context(), agent.Request{
		UserInput: req.Message,
		UserID:    userID(r),
		ThreadID:  req.ConversationID,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Stream {
		s.streamChat(w, events)
		return
	}

	rsp := chatResponse{ConversationID: req.ConversationID}
	for ev := range events {
		switch ev.Type {
		case agent.EventConversation:
			rsp.ConversationID = ev.Data.(agent.ConversationData).ConversationID
		case agent.EventThinking:
			rsp.Thoughts = append(rsp.Thoughts, ev.Data.(agent.ThinkingData).Content)
		case agent.EventAnswer:
			rsp.Answer = ev.Data.(agent.AnswerData).Content
		case agent.EventError:
			writeError(w, http.StatusInternalServerError, ev.Data.(agent.ErrorData).Message)
			return
		}
	}
	writeJSON(w, http.StatusOK, rsp)
}

func (s *Server) streamChat(w http.ResponseWriter, events <-chan agent.Event) {
	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for ev := range events {
		if err := sse.send(ev.Type, ev.Data); err != nil {
			log.Debugf("sse client gone: %v", err)
			// Keep draining so the agent finishes and persists the turn.
			for range events {
			}
			return
		}
	}
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, map[string]any{"conversations": []any{}})
		return
	}
	threads, err := s.store.ListThreads(r.Context(), userID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": threads})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "conversation store not configured")
		return
	}
	threadID := mux.Vars(r)["id"]
	info, err := s.store.GetThread(r.Context(), threadID)
	if errors.Is(err, memory.ErrThreadNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Threads belong to one user; anyone else sees them as missing.
	if info.UserID != userID(r) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	msgs, err := s.store.GetMessages(r.Context(), threadID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation": info,
		"messages":     msgs,
	})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "conversation store not configured")
		return
	}
	threadID := mux.Vars(r)["id"]
	info, err := s.store.GetThread(r.Context(), threadID)
	if errors.Is(err, memory.ErrThreadNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if info.UserID != userID(r) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err := s.store.DeleteThread(r.Context(), threadID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.memoryMgr != nil {
		s.memoryMgr.Invalidate(r.Context(), threadID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": threadID})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.registry.Declarations()})
}

func (s *Server) handleExecuteTool(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if s.registry.Get(name) == nil {
		writeError(w, http.StatusNotFound, "unknown tool: "+name)
		return
	}
	var args json.RawMessage
	if !decodeBody(w, r, &args) {
		return
	}
	result := s.executor.Execute(r.Context(), name, args)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBreakerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"breakers": s.agent.Breakers().Status(),
		"open":     s.agent.Breakers().OpenBreakers(),
	})
}

func (s *Server) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if !s.agent.Breakers().Reset(name) {
		writeError(w, http.StatusNotFound, "no breaker for tool: "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": name})
}
