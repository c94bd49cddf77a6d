//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package agent

import (
	"sync"
	"time"

	"github.com/papermind/papermind/log"
)

// Breaker states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

// BreakerConfig tunes one circuit breaker.
type BreakerConfig struct {
	// FailThreshold is the consecutive-failure count that opens the breaker.
	FailThreshold int `json:"fail_threshold"`
	// ResetTimeout is how long an open breaker waits before probing.
	ResetTimeout time.Duration `json:"reset_timeout"`
	// HalfOpenMaxCalls bounds concurrent probes in half-open state.
	HalfOpenMaxCalls int `json:"half_open_max_calls"`
	// SuccessThreshold closes a half-open breaker after this many successes.
	SuccessThreshold int `json:"success_threshold"`
}

// DefaultBreakerConfig is used for tools without a specific config.
var DefaultBreakerConfig = BreakerConfig{
	FailThreshold:    5,
	ResetTimeout:     30 * time.Second,
	HalfOpenMaxCalls: 3,
	SuccessThreshold: 2,
}

// toolBreakerConfigs overrides the default for tools with flakier
// dependencies: the OpenAlex tools trip earlier and recover slower, the
// long-running analysis tools get a longer reset window.
var toolBreakerConfigs = map[string]BreakerConfig{
	"search_literature": {FailThreshold: 3, ResetTimeout: 60 * time.Second, HalfOpenMaxCalls: 3, SuccessThreshold: 2},
	"get_work_detail":   {FailThreshold: 3, ResetTimeout: 60 * time.Second, HalfOpenMaxCalls: 3, SuccessThreshold: 2},
	"get_related_works": {FailThreshold: 3, ResetTimeout: 60 * time.Second, HalfOpenMaxCalls: 3, SuccessThreshold: 2},
	"analyze_paper":     {FailThreshold: 5, ResetTimeout: 45 * time.Second, HalfOpenMaxCalls: 3, SuccessThreshold: 2},
	"generate_mindmap":  {FailThreshold: 5, ResetTimeout: 45 * time.Second, HalfOpenMaxCalls: 3, SuccessThreshold: 2},
}

// BreakerStats counts the calls a breaker has seen.
type BreakerStats struct {
	TotalCalls          int     `json:"total_calls"`
	SuccessCalls        int     `json:"success_calls"`
	FailureCalls        int     `json:"failure_calls"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	SuccessRate         float64 `json:"success_rate"`
}

// BreakerStatus is the externally visible breaker snapshot.
type BreakerStatus struct {
	Name   string        `json:"name"`
	State  string        `json:"state"`
	Stats  BreakerStats  `json:"stats"`
	Config BreakerConfig `json:"config"`
}

// Breaker is a per-tool circuit breaker.
//
// State transitions:
//
//	closed --(N consecutive failures)--> open
//	open --(reset timeout elapsed)--> half_open
//	half_open --(enough successes)--> closed
//	half_open --(any failure)--> open
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu                sync.Mutex
	state             string
	stats             BreakerStats
	openedAt          time.Time
	halfOpenCalls     int
	halfOpenSuccesses int

	now func() time.Time // overridable in tests
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	return &Breaker{name: name, cfg: cfg, state: StateClosed, now: time.Now}
}

// Allow reports whether a call may proceed. Open breakers transition to
// half-open once the reset timeout has elapsed; half-open breakers admit
// a bounded number of probe calls.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
			log.Infof("circuit breaker %s: open -> half_open", b.name)
			b.state = StateHalfOpen
			b.halfOpenCalls = 1
			b.halfOpenSuccesses = 0
			return true
		}
		return false
	default: // half-open
		if b.halfOpenCalls < b.cfg.HalfOpenMaxCalls {
			b.halfOpenCalls++
			return true
		}
		return false
	}
}

// RecordSuccess notes a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.TotalCalls++
	b.stats.SuccessCalls++
	b.stats.ConsecutiveFailures = 0
	if b.state == StateHalfOpen {
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.SuccessThreshold {
			log.Infof("circuit breaker %s: half_open -> closed", b.name)
			b.reset()
		}
	}
}

// RecordFailure notes a failed call, opening the breaker when warranted.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.TotalCalls++
	b.stats.FailureCalls++
	b.stats.ConsecutiveFailures++
	switch b.state {
	case StateHalfOpen:
		b.open()
	case StateClosed:
		if b.stats.ConsecutiveFailures >= b.cfg.FailThreshold {
			b.open()
		}
	}
}

// Reset forces the breaker closed and clears the failure streak.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	log.Infof("circuit breaker %s: manual reset", b.name)
	b.reset()
}

// IsOpen reports whether calls are currently rejected outright.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateOpen
}

// Status returns a snapshot.
func (b *Breaker) Status() BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	stats := b.stats
	if stats.TotalCalls > 0 {
		stats.SuccessRate = float64(stats.SuccessCalls) / float64(stats.TotalCalls) * 100
	} else {
		stats.SuccessRate = 100
	}
	return BreakerStatus{Name: b.name, State: b.state, Stats: stats, Config: b.cfg}
}

func (b *Breaker) open() {
	log.Warnf("circuit breaker %s opened after %d consecutive failures, retry in %s",
		b.name, b.stats.ConsecutiveFailures, b.cfg.ResetTimeout)
	b.state = StateOpen
	b.openedAt = b.now()
}

func (b *Breaker) reset() {
	b.state = StateClosed
	b.stats.ConsecutiveFailures = 0
	b.halfOpenCalls = 0
	b.halfOpenSuccesses = 0
}

// BreakerManager holds the per-tool breakers, creating them lazily.
type BreakerManager struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakerManager creates an empty manager.
func NewBreakerManager() *BreakerManager {
	return &BreakerManager{breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for a tool, creating it with the tool-specific
// config (or the default) on first use.
func (m *BreakerManager) Get(toolName string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[toolName]; ok {
		return b
	}
	cfg, ok := toolBreakerConfigs[toolName]
	if !ok {
		cfg = DefaultBreakerConfig
	}
	b := NewBreaker(toolName, cfg)
	m.breakers[toolName] = b
	return b
}

// Status returns a snapshot of every breaker, keyed by tool name.
func (m *BreakerManager) Status() map[string]BreakerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]BreakerStatus, len(m.breakers))
	for name, b := range m.breakers {
		out[name] = b.Status()
	}
	return out
}

// OpenBreakers lists the tools whose breakers are currently open.
func (m *BreakerManager) OpenBreakers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var open []string
	for name, b := range m.breakers {
		if b.IsOpen() {
			open = append(open, name)
		}
	}
	return open
}

// Reset closes the named breaker. Returns false when it does not exist.
func (m *BreakerManager) Reset(toolName string) bool {
	m.mu.Lock()
	b, ok := m.breakers[toolName]
	m.mu.Unlock()
	if !ok {
		return false
	}
	b.Reset()
	return true
}
