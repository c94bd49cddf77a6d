//
// Copyright (C) 2026 papermind authors. All rights reserved.
//
// papermind is licensed under the Apache License Version 2.0.
//
//

package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker("search_literature", toolBreakerConfigs["search_literature"])

	for i := 0; i < 3; i++ {
		require.True(t, b.Allow())
		b.RecordFailure()
	}
	assert.True(t, b.IsOpen())
	assert.False(t, b.Allow())
	assert.Equal(t, StateOpen, b.Status().State)
}

func TestBreakerSuccessResetsStreak(t *testing.T) {
	b := NewBreaker("t", DefaultBreakerConfig)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	// Nine failures total but never five consecutive.
	assert.False(t, b.IsOpen())
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker("t", BreakerConfig{
		FailThreshold:    2,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 3,
		SuccessThreshold: 2,
	})
	now := time.Now()
	b.now = func() time.Time { return now }

	b.RecordFailure()
	b.RecordFailure()
	require.True(t, b.IsOpen())
	assert.False(t, b.Allow())

	// After the reset timeout the breaker probes.
	now = now.Add(31 * time.Second)
	require.True(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.Status().State)

	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.Status().State)
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.Status().State)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker("t", BreakerConfig{
		FailThreshold:    1,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 3,
		SuccessThreshold: 2,
	})
	now := time.Now()
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(31 * time.Second)
	require.True(t, b.Allow())
	b.RecordFailure()
	assert.True(t, b.IsOpen())
}

func TestBreakerHalfOpenCallLimit(t *testing.T) {
	b := NewBreaker("t", BreakerConfig{
		FailThreshold:    1,
		ResetTimeout:     time.Second,
		HalfOpenMaxCalls: 2,
		SuccessThreshold: 5,
	})
	now := time.Now()
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(2 * time.Second)
	// Transition consumes the first probe slot.
	require.True(t, b.Allow())
	require.True(t, b.Allow())
	assert.False(t, b.Allow())
}

func TestBreakerManualReset(t *testing.T) {
	m := NewBreakerManager()
	b := m.Get("search_literature")
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.True(t, b.IsOpen())
	assert.Equal(t, []string{"search_literature"}, m.OpenBreakers())

	require.True(t, m.Reset("search_literature"))
	assert.False(t, b.IsOpen())
	assert.False(t, m.Reset("never_seen"))
}

func TestBreakerManagerConfigSelection(t *testing.T) {
	m := NewBreakerManager()
	assert.Equal(t, 3, m.Get("get_work_detail").cfg.FailThreshold)
	assert.Equal(t, 45*time.Second, m.Get("analyze_paper").cfg.ResetTimeout)
	assert.Equal(t, DefaultBreakerConfig, m.Get("list_papers").cfg)
}

func TestBreakerStatusSuccessRate(t *testing.T) {
	b := NewBreaker("t", DefaultBreakerConfig)
	assert.Equal(t, float64(100), b.Status().Stats.SuccessRate)
	b.RecordSuccess()
	b.RecordFailure()
	assert.Equal(t, float64(50), b.Status().Stats.SuccessRate)
}
