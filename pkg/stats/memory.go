package stats

import (
	"context"
	"sync"
)

// MemoryRecorder keeps totals and the most recent summaries in memory.
// Useful for tests and single-process deployments; nothing expires.
type MemoryRecorder struct {
	mu     sync.Mutex
	totals map[string]Totals
	recent []Summary
	keep   int
}

// MemoryOption configures a MemoryRecorder.
type MemoryOption func(*MemoryRecorder)

// WithKeepRecent sets how many summaries Recent can return (default 100).
func WithKeepRecent(n int) MemoryOption {
	return func(m *MemoryRecorder) {
		if n > 0 {
			m.keep = n
		}
	}
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder(opts ...MemoryOption) *MemoryRecorder {
	m := &MemoryRecorder{
		totals: make(map[string]Totals),
		keep:   100,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record adds s to the totals of its name and policy.
func (m *MemoryRecorder) Record(_ context.Context, s Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := totalsKey(s.Name, s.Policy)
	t := m.totals[key]
	t.add(s)
	m.totals[key] = t

	m.recent = append(m.recent, s)
	if len(m.recent) > m.keep {
		m.recent = m.recent[len(m.recent)-m.keep:]
	}
	return nil
}

// Totals returns the accumulated totals for name and policy.
func (m *MemoryRecorder) Totals(name, policy string) Totals {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[totalsKey(name, policy)]
}

// Recent returns up to n summaries, newest first.
func (m *MemoryRecorder) Recent(n int) []Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || n > len(m.recent) {
		n = len(m.recent)
	}
	out := make([]Summary, 0, n)
	for i := len(m.recent) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.recent[i])
	}
	return out
}

func totalsKey(name, policy string) string {
	return name + ":" + policy
}
