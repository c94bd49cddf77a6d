//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package tool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/papermind/papermind/model"
)

// Registry holds the tools available to the agent.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering an existing name replaces it.
func (r *Registry) Register(t Tool) error {
	decl := t.Declaration()
	if decl == nil || decl.Name == "" {
		return fmt.Errorf("tool: declaration missing a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[decl.Name] = t
	return nil
}

// Get returns the named tool, or nil when unknown.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Declarations returns every declaration, sorted by name.
func (r *Registry) Declarations() []*Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	decls := make([]*Declaration, 0, len(r.tools))
	for _, t := range r.tools {
		decls = append(decls, t.Declaration())
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })
	return decls
}

// Definitions returns the declarations in model request shape.
func (r *Registry) Definitions() []model.ToolDefinition {
	decls := r.Declarations()
	defs := make([]model.ToolDefinition, len(decls))
	for i, d := range decls {
		defs[i] = d.ToDefinition()
	}
	return defs
}
