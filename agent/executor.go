//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package agent

import (
	"context"
	"encoding/json"

	"github.com/papermind/papermind/log"
	"github.com/papermind/papermind/tool"
)

// Executor runs tool calls behind per-tool circuit breakers.
type Executor struct {
	registry *tool.Registry
	breakers *BreakerManager
}

// NewExecutor creates an Executor.
func NewExecutor(registry *tool.Registry, breakers *BreakerManager) *Executor {
	return &Executor{registry: registry, breakers: breakers}
}

// Execute runs one tool call. When the breaker rejects the call the model
// receives a degraded result naming alternatives, without any remote
// contact; degraded calls are not counted against the breaker.
func (e *Executor) Execute(ctx context.Context, name string, args json.RawMessage) *tool.Result {
	t := e.registry.Get(name)
	if t == nil {
		return &tool.Result{Success: false, Error: "unknown tool: " + name}
	}
	breaker := e.breakers.Get(name)
	if !breaker.Allow() {
		log.Warnf("tool %s degraded, breaker open", name)
		return &tool.Result{
			Success:    true,
			Data:       degradedResult(name),
			IsDegraded: true,
		}
	}
	result := tool.Execute(ctx, t, args)
	if result.Success {
		breaker.RecordSuccess()
	} else {
		breaker.RecordFailure()
	}
	return result
}

// Breakers exposes the breaker manager for status endpoints.
func (e *Executor) Breakers() *BreakerManager { return e.breakers }
