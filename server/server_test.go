//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papermind/papermind/agent"
	"github.com/papermind/papermind/chunking"
	"github.com/papermind/papermind/index"
	"github.com/papermind/papermind/index/bm25"
	"github.com/papermind/papermind/ingest"
	"github.com/papermind/papermind/memory"
	"github.com/papermind/papermind/model"
	"github.com/papermind/papermind/parser"
	"github.com/papermind/papermind/retrieval"
	"github.com/papermind/papermind/tool"
	"github.com/papermind/papermind/tool/papers"
)

// scriptedModel plays back one canned response per call, streaming a
// single delta first for plain-content responses.
type scriptedModel struct {
	mu        sync.Mutex
	responses []*model.Response
	calls     int
}

func (m *scriptedModel) Info() model.Info { return model.Info{Name: "scripted"} }

func (m *scriptedModel) GenerateContent(ctx context.Context, _ *model.Request) (<-chan *model.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls >= len(m.responses) {
		return nil, errors.New("no scripted response left")
	}
	rsp := m.responses[m.calls]
	m.calls++
	ch := make(chan *model.Response, 2)
	if rsp.Content != "" && len(rsp.ToolCalls) == 0 {
		ch <- &model.Response{Delta: rsp.Content}
	}
	ch <- rsp
	close(ch)
	return ch, nil
}

func answerOnly(content string) *scriptedModel {
	return &scriptedModel{responses: []*model.Response{{Content: content, IsFinal: true}}}
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0, 0}
	}
	return out, nil
}

func (fakeEmbedder) Dimensions() int { return 3 }

type fakeDense struct {
	mu   sync.Mutex
	rows map[string][]index.SearchResult
}

func newFakeDense() *fakeDense {
	return &fakeDense{rows: make(map[string][]index.SearchResult)}
}

func (d *fakeDense) EnsureCollection(context.Context) error { return nil }

func (d *fakeDense) Insert(_ context.Context, meta index.PaperMeta, chunks []chunking.Chunk, _ [][]float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range chunks {
		d.rows[meta.PaperID] = append(d.rows[meta.PaperID], index.SearchResult{
			PaperID:       meta.PaperID,
			ChunkID:       ch.ChunkID,
			ChunkIndex:    ch.Index,
			Content:       ch.Content,
			Title:         meta.Title,
			FileName:      meta.FileName,
			HierarchyPath: ch.HierarchyPath,
			SectionType:   ch.SectionType,
			Score:         0.9,
		})
	}
	return nil
}

func (d *fakeDense) Search(_ context.Context, _ []float64, k int, paperID string) ([]index.SearchResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []index.SearchResult
	for id, rows := range d.rows {
		if paperID != "" && id != paperID {
			continue
		}
		if paperID == "" && index.IsMemoryPaperID(id) {
			continue
		}
		out = append(out, rows...)
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (d *fakeDense) DeleteByPaper(_ context.Context, paperID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.rows, paperID)
	return nil
}

func (d *fakeDense) Stats(context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int64
	for _, rows := range d.rows {
		n += int64(len(rows))
	}
	return n, nil
}

type echoTool struct{}

func (echoTool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name:        "echo",
		Description: "Echo the arguments back.",
		Parameters: tool.ObjectSchema(map[string]any{
			"text": tool.StringProp("Text to echo"),
		}, "text"),
	}
}

func (echoTool) Call(_ context.Context, args json.RawMessage) (any, error) {
	var a map[string]any
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return a, nil
}

type fixture struct {
	handler   http.Handler
	store     *memory.InMemoryStore
	retriever *retrieval.Retriever
	pipeline  *ingest.Pipeline
}

func newFixture(t *testing.T, agentModel model.Model, opts ...Option) *fixture {
	t.Helper()
	dual := index.NewDual(newFakeDense(), bm25.New(), fakeEmbedder{})
	pipeline, err := ingest.NewPipeline(parser.New(nil), dual, ingest.NewCatalog())
	require.NoError(t, err)
	t.Cleanup(pipeline.Close)

	retriever := retrieval.New(dual)
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(echoTool{}))
	executor := agent.NewExecutor(registry, agent.NewBreakerManager())
	store := memory.NewInMemoryStore()
	ag := agent.New(agentModel, executor, agent.WithHistory(store))

	opts = append(opts, WithStore(store))
	srv := New(ag, executor, registry, pipeline, retriever, opts...)
	return &fixture{
		handler:   srv.Handler(),
		store:     store,
		retriever: retriever,
		pipeline:  pipeline,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

const paperText = `Attention Is All You Need

Abstract: The dominant sequence transduction models are based on recurrent networks.

1. Introduction
Recurrent neural networks have long dominated sequence modeling. Attention
mechanisms let models draw global dependencies between input and output.

2. Methods
The transformer relies entirely on self-attention to compute representations
of its input and output without using recurrence.`

func TestHealthz(t *testing.T) {
	f := newFixture(t, answerOnly("ok"))
	w := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeMap(t, w)["status"])
}

func signToken(t *testing.T, secret []byte, claims *Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return s
}

func TestAuthMiddleware(t *testing.T) {
	secret := []byte("test-secret")
	f := newFixture(t, answerOnly("ok"), WithJWTSecret(secret))

	w := f.do(t, http.MethodGet, "/agent/tools", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "missing token")

	w = f.do(t, http.MethodGet, "/agent/tools", nil, "Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "malformed token")

	wrong := signToken(t, []byte("other-secret"), &Claims{UserID: "u1", IsActive: true})
	w = f.do(t, http.MethodGet, "/agent/tools", nil, "Authorization", "Bearer "+wrong)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "wrong secret")

	inactive := signToken(t, secret, &Claims{UserID: "u1", IsActive: false})
	w = f.do(t, http.MethodGet, "/agent/tools", nil, "Authorization", "Bearer "+inactive)
	assert.Equal(t, http.StatusForbidden, w.Code, "inactive account")

	active := signToken(t, secret, &Claims{
		UserID:   "u1",
		IsActive: true,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	w = f.do(t, http.MethodGet, "/agent/tools", nil, "Authorization", "Bearer "+active)
	assert.Equal(t, http.StatusOK, w.Code, "valid token")
}

func TestAuthDisabledPassesThrough(t *testing.T) {
	f := newFixture(t, answerOnly("ok"))
	w := f.do(t, http.MethodGet, "/agent/tools", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChatNonStream(t *testing.T) {
	f := newFixture(t, answerOnly("hello there"))
	w := f.do(t, http.MethodPost, "/agent/chat", map[string]any{"message": "hi"})
	require.Equal(t, http.StatusOK, w.Code)

	var rsp chatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rsp))
	assert.Equal(t, "hello there", rsp.Answer)
	assert.NotEmpty(t, rsp.ConversationID)
}

func TestChatPersistsConversation(t *testing.T) {
	f := newFixture(t, answerOnly("a weighting mechanism"))

	w := f.do(t, http.MethodPost, "/agent/chat", map[string]any{"message": "what is attention?"})
	require.Equal(t, http.StatusOK, w.Code)
	var rsp chatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rsp))
	require.NotEmpty(t, rsp.ConversationID)

	// The turn created its own thread: it lists and reads back without any
	// prior setup.
	w = f.do(t, http.MethodGet, "/agent/conversations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), rsp.ConversationID)

	w = f.do(t, http.MethodGet, "/agent/conversations/"+rsp.ConversationID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	msgs, ok := decodeMap(t, w)["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestChatEmptyMessage(t *testing.T) {
	f := newFixture(t, answerOnly("unused"))
	w := f.do(t, http.MethodPost, "/agent/chat", map[string]any{"message": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatStreamSSE(t *testing.T) {
	f := newFixture(t, answerOnly("streamed answer"))
	w := f.do(t, http.MethodPost, "/agent/chat", map[string]any{
		"message": "hi",
		"stream":  true,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "event: conversation")
	assert.Contains(t, body, "event: token")
	assert.Contains(t, body, "streamed answer")
	assert.Contains(t, body, "event: answer_end")
	assert.Contains(t, body, "event: done")
	// conversation first, done last.
	assert.Less(t, strings.Index(body, "event: conversation"), strings.Index(body, "event: token"))
	assert.Equal(t, 1, strings.Count(body, "event: done"))
}

func TestConversationsCRUD(t *testing.T) {
	f := newFixture(t, answerOnly("unused"))
	ctx := context.Background()
	require.NoError(t, f.store.CreateThread(ctx, "", "t1"))
	require.NoError(t, f.store.AppendMessages(ctx, "t1", []model.Message{
		model.NewUserMessage("what is attention?"),
		model.NewAssistantMessage("a weighting mechanism"),
	}))

	w := f.do(t, http.MethodGet, "/agent/conversations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "t1")

	w = f.do(t, http.MethodGet, "/agent/conversations/t1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeMap(t, w)
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)

	w = f.do(t, http.MethodGet, "/agent/conversations/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodDelete, "/agent/conversations/t1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/agent/conversations/t1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodDelete, "/agent/conversations/t1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConversationOwnership(t *testing.T) {
	secret := []byte("test-secret")
	f := newFixture(t, answerOnly("unused"), WithJWTSecret(secret))
	require.NoError(t, f.store.CreateThread(context.Background(), "alice", "tA"))

	expiry := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	alice := signToken(t, secret, &Claims{UserID: "alice", IsActive: true, RegisteredClaims: expiry})
	bob := signToken(t, secret, &Claims{UserID: "bob", IsActive: true, RegisteredClaims: expiry})

	// Another user's thread reads and deletes as missing.
	w := f.do(t, http.MethodGet, "/agent/conversations/tA", nil, "Authorization", "Bearer "+bob)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(t, http.MethodDelete, "/agent/conversations/tA", nil, "Authorization", "Bearer "+bob)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/agent/conversations/tA", nil, "Authorization", "Bearer "+alice)
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodDelete, "/agent/conversations/tA", nil, "Authorization", "Bearer "+alice)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListAndExecuteTools(t *testing.T) {
	f := newFixture(t, answerOnly("unused"))

	w := f.do(t, http.MethodGet, "/agent/tools", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"echo"`)

	w = f.do(t, http.MethodPost, "/agent/tools/echo/execute", map[string]any{"text": "ping"})
	require.Equal(t, http.StatusOK, w.Code)
	var result tool.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, map[string]any{"text": "ping"}, result.Data)

	w = f.do(t, http.MethodPost, "/agent/tools/nope/execute", map[string]any{})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBreakerEndpoints(t *testing.T) {
	f := newFixture(t, answerOnly("unused"))

	// Executing a tool lazily creates its breaker.
	w := f.do(t, http.MethodPost, "/agent/tools/echo/execute", map[string]any{"text": "x"})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/agent/circuit-breakers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"echo"`)

	w = f.do(t, http.MethodPost, "/agent/circuit-breakers/echo/reset", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/agent/circuit-breakers/unknown/reset", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVectorIndexSearchDelete(t *testing.T) {
	f := newFixture(t, answerOnly("unused"))

	w := f.do(t, http.MethodPost, "/vector/index", map[string]any{
		"paper_id": "p1",
		"title":    "Attention Is All You Need",
		"content":  paperText,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var result ingest.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "p1", result.PaperID)
	assert.Greater(t, result.ChunkCount, 0)

	w = f.do(t, http.MethodPost, "/vector/index", map[string]any{
		"paper_id": "memory:u1",
		"content":  "not allowed",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/vector/index", map[string]any{"paper_id": "p2"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing content")

	w = f.do(t, http.MethodPost, "/vector/search", map[string]any{"query": "attention"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "p1")

	w = f.do(t, http.MethodPost, "/vector/search", map[string]any{"query": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/vector/hybrid-search", map[string]any{"query": "self-attention"})
	require.Equal(t, http.StatusOK, w.Code)
	hybrid := decodeMap(t, w)
	assert.Contains(t, hybrid, "results")
	assert.Contains(t, hybrid, "stats")

	w = f.do(t, http.MethodPost, "/vector/hybrid-search", map[string]any{"query": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodDelete, "/vector/delete/p1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, "/vector/delete/memory:u1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/vector/search", map[string]any{"query": "attention"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"paper_id":"p1"`)
}

func TestVectorIndexStructuredChunks(t *testing.T) {
	f := newFixture(t, answerOnly("unused"))

	w := f.do(t, http.MethodPost, "/vector/index", map[string]any{
		"paper_id": "p1",
		"title":    "Attention Is All You Need",
		"structured_chunks": []map[string]any{
			{"content": "We propose the Transformer.", "section_type": "abstract", "hierarchy_path": "Abstract"},
			{"content": "Attention weights value vectors.", "section_type": "methods", "hierarchy_path": "Methods"},
			{"content": "Multi-head attention details.", "section_type": "methods", "hierarchy_path": "Methods > Multi-Head"},
		},
		"paper_metadata": map[string]any{"venue": "NeurIPS"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"section_types"`)
	assert.Contains(t, body, `"chunks_created"`)

	var result ingest.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 3, result.ChunkCount)
	assert.True(t, result.Structured)
	assert.Equal(t, map[string]int{"abstract": 1, "methods": 2}, result.SectionTypes)

	// The supplied chunks are searchable as indexed.
	w = f.do(t, http.MethodPost, "/vector/search", map[string]any{"query": "attention"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "p1")
}

// tokenModel streams its answer in fixed fragments before the final
// response.
type tokenModel struct {
	deltas []string
}

func (m *tokenModel) Info() model.Info { return model.Info{Name: "tokens"} }

func (m *tokenModel) GenerateContent(ctx context.Context, _ *model.Request) (<-chan *model.Response, error) {
	ch := make(chan *model.Response, len(m.deltas)+1)
	var full strings.Builder
	for _, d := range m.deltas {
		full.WriteString(d)
		ch <- &model.Response{Delta: d}
	}
	ch <- &model.Response{Content: full.String(), IsFinal: true}
	close(ch)
	return ch, nil
}

func TestQAStream(t *testing.T) {
	qaModel := &tokenModel{deltas: []string{
		"Self-attention relates ", "positions of ", "a single sequence.",
	}}
	f := newFixture(t, answerOnly("unused"))
	// The fixture does not thread options through to the ask tool, so
	// build a second server sharing the same pipeline and retriever.
	ask := papers.NewAskTool(f.retriever, qaModel)
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(echoTool{}))
	executor := agent.NewExecutor(registry, agent.NewBreakerManager())
	ag := agent.New(answerOnly("unused"), executor)
	srv := New(ag, executor, registry, f.pipeline, f.retriever, WithAskTool(ask))
	handler := srv.Handler()

	w := f.do(t, http.MethodPost, "/vector/index", map[string]any{
		"paper_id": "p1",
		"title":    "Attention Is All You Need",
		"content":  paperText,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(map[string]any{"question": "what is self-attention?"}))
	req := httptest.NewRequest(http.MethodPost, "/vector/qa-stream", &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: references")
	// One token event per model delta, not one for the whole answer.
	assert.Equal(t, 3, strings.Count(body, "event: token"))
	assert.Contains(t, body, "Self-attention relates ")
	assert.Contains(t, body, "event: answer_end")
	assert.Contains(t, body, "event: done")
	assert.Less(t, strings.Index(body, "event: references"), strings.Index(body, "event: token"),
		"references must precede the first token")
}

func TestQAStreamValidation(t *testing.T) {
	f := newFixture(t, answerOnly("unused"))
	w := f.do(t, http.MethodPost, "/vector/qa-stream", map[string]any{"question": "anything"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "no ask tool configured")
}
