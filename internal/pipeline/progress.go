package pipeline

import "sync"

// Progress tracks advisory (current, total) row counters for in-flight
// records. Counters are telemetry, not state: they live in memory only and
// vanish on restart while states stay in the registry.
type Progress struct {
	mu       sync.RWMutex
	counters map[string]counter
}

type counter struct {
	current int
	total   int
}

// NewProgress creates an empty tracker.
func NewProgress() *Progress {
	return &Progress{counters: make(map[string]counter)}
}

// Report records the latest counters for a record.
func (p *Progress) Report(logicalID string, current, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counters[logicalID] = counter{current: current, total: total}
}

// Get returns the counters for a record, if any were reported.
func (p *Progress) Get(logicalID string) (current, total int, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.counters[logicalID]
	return c.current, c.total, ok
}

// Clear drops the counters for a record once it reaches a terminal state.
func (p *Progress) Clear(logicalID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.counters, logicalID)
}
