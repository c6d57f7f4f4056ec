package observability

import (
	"sync"
)

// Metrics provides basic in-memory counters for interaction handling.
type Metrics struct {
	mu               sync.Mutex
	interactionCount map[string]int64
	errorCount       map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		interactionCount: make(map[string]int64),
		errorCount:       make(map[string]int64),
	}
}

// RecordInteraction increments the counter for a handled interaction kind.
func (m *Metrics) RecordInteraction(kind string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactionCount[kind]++
}

// RecordError increments the error counter for an interaction kind/code.
func (m *Metrics) RecordError(kind, code string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[kind+"|"+code]++
}

// InteractionCount returns the current count for an interaction kind.
func (m *Metrics) InteractionCount(kind string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interactionCount[kind]
}

// ErrorCount returns the current count for an interaction kind/code pair.
func (m *Metrics) ErrorCount(kind, code string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errorCount[kind+"|"+code]
}
