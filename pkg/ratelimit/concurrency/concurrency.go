package concurrency

import (
	"context"
)

// Acquire blocks until a slot is available or ctx ends. The returned slot
// must be released exactly once; deferring Release right after a successful
// Acquire covers every exit path.
func (g *Gate) Acquire(ctx context.Context) (*Slot, error) {
	// Check if context is already canceled
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()

	// Fast path: free slot and nobody queued ahead of us
	if g.inUse < g.capacity && len(g.waiters) == 0 {
		g.inUse++
		g.mu.Unlock()
		return &Slot{gate: g}, nil
	}

	// Slow path: queue up
	w := &waiter{ready: make(chan struct{})}
	g.waiters = append(g.waiters, w)
	g.mu.Unlock()

	select {
	case <-w.ready:
		return &Slot{gate: g}, nil
	case <-ctx.Done():
		g.mu.Lock()
		removed := g.removeWaiter(w)
		g.mu.Unlock()

		if !removed {
			// A slot was handed over while we were giving up; pass it on.
			g.release()
		}
		return nil, ctx.Err()
	}
}

// TryAcquire takes a slot without blocking.
func (g *Gate) TryAcquire() (*Slot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inUse < g.capacity && len(g.waiters) == 0 {
		g.inUse++
		return &Slot{gate: g}, true
	}
	return nil, false
}

// Release returns the slot to its gate. Only the first call has an effect,
// so a cancellation path racing a normal completion cannot release twice.
func (s *Slot) Release() {
	if s == nil {
		return
	}
	s.once.Do(s.gate.release)
}

// Capacity returns the maximum number of concurrent holders.
func (g *Gate) Capacity() int {
	return g.capacity
}

// InUse returns the number of slots currently held.
func (g *Gate) InUse() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inUse
}

// Available returns the number of free slots.
func (g *Gate) Available() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.capacity - g.inUse
}

// Waiting returns the number of goroutines queued in Acquire.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}

// release hands the slot to the oldest waiter, or frees it.
func (g *Gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inUse <= 0 {
		panic("concurrency: released more slots than acquired")
	}

	if len(g.waiters) > 0 {
		w := g.waiters[0]
		g.waiters[0] = nil
		g.waiters = g.waiters[1:]
		close(w.ready)
		return
	}
	g.inUse--
}

// removeWaiter drops w from the queue. It reports false if w was already
// handed a slot. Must be called with g.mu held.
func (g *Gate) removeWaiter(w *waiter) bool {
	for i, candidate := range g.waiters {
		if candidate == w {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			return true
		}
	}
	return false
}
