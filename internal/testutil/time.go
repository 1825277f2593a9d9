// Package testutil holds deterministic stand-ins used across package tests:
// a settable host clock, a constant flow token and an in-memory store.
package testutil

import "sync"

// ManualTime is a settable host clock in unix seconds. It satisfies
// engine.TimeSource.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualTime struct {
	mu  sync.Mutex
	now uint64
}

// NewManualTime creates a clock reading start.
func NewManualTime(start uint64) *ManualTime {
	return &ManualTime{now: start}
}

// Now returns the current reading.
func (m *ManualTime) Now() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t. Moving backwards is allowed; vesting math must
// tolerate it.
func (m *ManualTime) Set(t uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves the clock forward by d seconds.
func (m *ManualTime) Advance(d uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += d
}
