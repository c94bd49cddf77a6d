//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

// Package agent implements the tool-using research agent: an iterative
// reason/execute loop with circuit-breaker-protected tools, memory-backed
// context and a typed event stream.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/papermind/papermind/log"
	"github.com/papermind/papermind/memory"
	"github.com/papermind/papermind/model"
)

// MaxIterations bounds the reason/execute loop per turn.
const MaxIterations = 10

const exhaustedAnswer = "I could not finish working on this request within the allowed number of steps. " +
	"Here is what I found so far; please try a more specific question."

const baseSystemPrompt = `You are a research assistant with access to the user's paper library and external literature search.
Use tools when they help answer the question; answer directly when they do not.
Ground claims about papers in tool results and mention the source section when available.
Answer in the language the user writes in.`

// Request is one agent turn.
type Request struct {
	UserInput string
	UserID    string
	ThreadID  string
}

// History loads and persists thread transcripts. CreateThread is
// idempotent; the agent calls it at the start of every turn so appends
// always land on an owned thread.
type History interface {
	CreateThread(ctx context.Context, userID, threadID string) error
	GetMessages(ctx context.Context, threadID string) ([]model.Message, error)
	AppendMessages(ctx context.Context, threadID string, msgs []model.Message) error
}

// Agent runs the reason/execute loop.
type Agent struct {
	model       model.Model
	executor    *Executor
	history     History
	memory      *memory.Manager
	checkpoints memory.CheckpointSaver
}

// Option configures the Agent.
type Option func(*Agent)

// WithHistory sets the transcript store.
func WithHistory(h History) Option {
	return func(a *Agent) { a.history = h }
}

// WithMemoryManager sets the memory stack.
func WithMemoryManager(m *memory.Manager) Option {
	return func(a *Agent) { a.memory = m }
}

// WithCheckpointSaver enables per-iteration state checkpoints.
func WithCheckpointSaver(s memory.CheckpointSaver) Option {
	return func(a *Agent) { a.checkpoints = s }
}

// New creates an Agent.
func New(m model.Model, executor *Executor, opts ...Option) *Agent {
	a := &Agent{model: m, executor: executor}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Breakers exposes breaker status for the HTTP surface.
func (a *Agent) Breakers() *BreakerManager { return a.executor.Breakers() }

// Run executes one turn and streams events. The channel always opens with
// a conversation event and closes after exactly one done (or error) event.
// Post-turn memory extraction runs even if the consumer goes away.
func (a *Agent) Run(ctx context.Context, req Request) (<-chan Event, error) {
	if strings.TrimSpace(req.UserInput) == "" {
		return nil, fmt.Errorf("agent: empty user input")
	}
	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	ch := make(chan Event, 64)
	go a.run(ctx, req, threadID, ch)
	return ch, nil
}

type turnState struct {
	messages  []model.Message
	newMsgs   []model.Message
	iteration int
	answer    string
}

func (a *Agent) run(ctx context.Context, req Request, threadID string, ch chan<- Event) {
	defer close(ch)
	emit := func(ev Event) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	emit(Event{Type: EventConversation, Data: ConversationData{ConversationID: threadID}})

	if a.history != nil {
		if err := a.history.CreateThread(ctx, req.UserID, threadID); err != nil {
			log.Warnf("create thread %s failed: %v", threadID, err)
		}
	}

	state := &turnState{}
	history := a.loadHistory(ctx, threadID)
	prepared := a.prepareContext(ctx, threadID, req, history)

	state.messages = append(state.messages, model.NewSystemMessage(a.systemPrompt(prepared)))
	state.messages = append(state.messages, prepared.Messages...)
	userMsg := model.NewUserMessage(req.UserInput)
	state.messages = append(state.messages, userMsg)
	state.newMsgs = append(state.newMsgs, userMsg)

	for state.iteration = 0; state.iteration < MaxIterations; state.iteration++ {
		emit(Event{Type: EventNodeStart, Data: NodeStartData{Node: "reason", Iteration: state.iteration}})

		content, deltas, toolCalls, err := a.generate(ctx, state.messages)
		if err != nil {
			emit(Event{Type: EventError, Data: ErrorData{Message: err.Error()}})
			emit(Event{Type: EventDone, Data: DoneData{ConversationID: threadID, Iterations: state.iteration}})
			return
		}

		if len(toolCalls) == 0 {
			state.answer = content
			for _, delta := range deltas {
				emit(Event{Type: EventToken, Data: TokenData{Content: delta}})
			}
			break
		}

		if content != "" {
			emit(Event{Type: EventThinking, Data: ThinkingData{Content: content}})
		}
		assistantMsg := model.NewAssistantMessage(content)
		assistantMsg.ToolCalls = toolCalls
		state.messages = append(state.messages, assistantMsg)
		state.newMsgs = append(state.newMsgs, assistantMsg)

		emit(Event{Type: EventNodeStart, Data: NodeStartData{Node: "execute_tools", Iteration: state.iteration}})
		for _, tc := range toolCalls {
			a.executeCall(ctx, state, tc, emit)
		}
		a.checkpoint(ctx, threadID, state)
	}

	if state.answer == "" {
		state.answer = exhaustedAnswer
		emit(Event{Type: EventToken, Data: TokenData{Content: state.answer}})
	}
	emit(Event{Type: EventAnswer, Data: AnswerData{Content: state.answer}})
	emit(Event{Type: EventAnswerEnd})

	answerMsg := model.NewAssistantMessage(state.answer)
	state.newMsgs = append(state.newMsgs, answerMsg)
	a.persistTurn(threadID, req.UserID, state)

	emit(Event{Type: EventDone, Data: DoneData{ConversationID: threadID, Iterations: state.iteration}})
}

func (a *Agent) loadHistory(ctx context.Context, threadID string) []model.Message {
	if a.history == nil {
		return nil
	}
	msgs, err := a.history.GetMessages(ctx, threadID)
	if err != nil {
		return nil
	}
	return msgs
}

func (a *Agent) prepareContext(ctx context.Context, threadID string, req Request, history []model.Message) *memory.PreparedContext {
	if a.memory == nil {
		return &memory.PreparedContext{Messages: history}
	}
	return a.memory.PrepareContext(ctx, threadID, req.UserID, req.UserInput, history)
}

func (a *Agent) systemPrompt(prepared *memory.PreparedContext) string {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)
	if decls := a.executor.registry.Declarations(); len(decls) > 0 {
		b.WriteString("\n\nAvailable tools:\n")
		for _, d := range decls {
			fmt.Fprintf(&b, "- %s: %s\n", d.Name, firstSentence(d.Description))
		}
	}
	if open := a.executor.Breakers().OpenBreakers(); len(open) > 0 {
		fmt.Fprintf(&b, "\nCurrently unavailable tools (do not call them): %s\n",
			strings.Join(open, ", "))
	}
	if prepared.Summary != "" {
		fmt.Fprintf(&b, "\nConversation so far: %s\n", prepared.Summary)
	}
	if prepared.UserContext != "" {
		fmt.Fprintf(&b, "\n%s\n", prepared.UserContext)
	}
	return b.String()
}

// generate runs one model call and gathers the streamed deltas, final
// content and requested tool calls.
func (a *Agent) generate(ctx context.Context, msgs []model.Message) (string, []string, []model.ToolCall, error) {
	rspCh, err := a.model.GenerateContent(ctx, &model.Request{
		Messages: msgs,
		Tools:    a.executor.registry.Definitions(),
		Stream:   true,
	})
	if err != nil {
		return "", nil, nil, fmt.Errorf("agent: model call: %w", err)
	}
	var (
		deltas    []string
		content   string
		toolCalls []model.ToolCall
	)
	for rsp := range rspCh {
		if rsp.Err != nil {
			return "", nil, nil, fmt.Errorf("agent: model response: %w", rsp.Err)
		}
		if rsp.Delta != "" {
			deltas = append(deltas, rsp.Delta)
		}
		if rsp.IsFinal {
			content = rsp.Content
			toolCalls = rsp.ToolCalls
		}
	}
	return content, deltas, toolCalls, nil
}

func (a *Agent) executeCall(ctx context.Context, state *turnState, tc model.ToolCall, emit func(Event) bool) {
	var args any
	_ = json.Unmarshal(tc.Arguments, &args)
	emit(Event{Type: EventToolCall, Data: ToolCallData{Tool: tc.Name, Arguments: args, Status: "running"}})

	result := a.executor.Execute(ctx, tc.Name, tc.Arguments)

	status := "success"
	switch {
	case result.IsDegraded:
		status = "degraded"
	case !result.Success:
		status = "error"
	}
	emit(Event{Type: EventToolCall, Data: ToolCallData{
		Tool:       tc.Name,
		Status:     status,
		DurationMS: result.DurationMS,
		Error:      result.Error,
	}})
	if papers := papersFromResult(result.Data); papers != nil {
		emit(Event{Type: EventPapers, Data: *papers})
	}
	if refs := referencesFromResult(result.Data); refs != nil {
		emit(Event{Type: EventReferences, Data: refs})
	}

	payload, err := json.Marshal(result)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"success": false, "error": %q}`, err.Error()))
	}
	toolMsg := model.NewToolMessage(tc.ID, tc.Name, string(payload))
	state.messages = append(state.messages, toolMsg)
	state.newMsgs = append(state.newMsgs, toolMsg)
}

func (a *Agent) checkpoint(ctx context.Context, threadID string, state *turnState) {
	if a.checkpoints == nil {
		return
	}
	snapshot, err := json.Marshal(map[string]any{
		"iteration":     state.iteration,
		"message_count": len(state.messages),
	})
	if err != nil {
		return
	}
	ckpt := &memory.Checkpoint{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		State:     snapshot,
		CreatedAt: time.Now(),
	}
	meta := &memory.CheckpointMetadata{Source: "loop", Step: state.iteration}
	if err := a.checkpoints.Put(ctx, ckpt, meta); err != nil {
		log.Warnf("checkpoint for thread %s failed: %v", threadID, err)
	}
}

// persistTurn appends the turn transcript and kicks off memory extraction.
// Both run detached from the stream context so a dropped consumer does
// not lose the turn.
func (a *Agent) persistTurn(threadID, userID string, state *turnState) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if a.history != nil {
		if err := a.history.AppendMessages(ctx, threadID, state.newMsgs); err != nil {
			log.Errorf("append transcript for thread %s failed: %v", threadID, err)
		}
	}
	if a.memory != nil {
		msgs := state.newMsgs
		go func() {
			defer cancel()
			a.memory.ExtractMemories(ctx, userID, msgs)
		}()
		return
	}
	cancel()
}

// papersFromResult recognizes literature-style results: a results array
// whose first element carries a title. The query and total count come
// from the surrounding result map when present.
func papersFromResult(data any) *PapersData {
	m, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	papers := titledResults(m["results"])
	if papers == nil {
		return nil
	}
	pd := &PapersData{Papers: papers, Total: len(papers)}
	if q, ok := m["query"].(string); ok {
		pd.Query = q
	}
	switch total := m["total_count"].(type) {
	case int:
		pd.Total = total
	case int64:
		pd.Total = int(total)
	case float64:
		pd.Total = int(total)
	}
	return pd
}

func titledResults(v any) []any {
	switch results := v.(type) {
	case []any:
		if len(results) == 0 {
			return nil
		}
		first, ok := results[0].(map[string]any)
		if !ok {
			return nil
		}
		if _, has := first["title"]; !has {
			return nil
		}
		return results
	case []map[string]any:
		if len(results) == 0 {
			return nil
		}
		if _, has := results[0]["title"]; !has {
			return nil
		}
		out := make([]any, len(results))
		for i, r := range results {
			out[i] = r
		}
		return out
	}
	return nil
}

// referencesFromResult surfaces QA grounding excerpts to the stream.
func referencesFromResult(data any) any {
	m, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	refs, ok := m["references"]
	if !ok {
		return nil
	}
	return refs
}

func firstSentence(s string) string {
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		return s[:idx+1]
	}
	return s
}
