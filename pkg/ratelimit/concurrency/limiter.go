package concurrency

import (
	"sync"

	"github.com/vnykmshr/fanflow/pkg/common/validation"
)

// Gate bounds the number of operations in flight at once. Holders receive a
// *Slot from Acquire and give it back with Slot.Release.
//
// Waiters are served strictly in arrival order: a released slot is handed
// directly to the oldest waiter, and newcomers never overtake a queue.
type Gate struct {
	mu       sync.Mutex
	capacity int
	inUse    int
	waiters  []*waiter
}

// waiter represents a goroutine queued for a slot
type waiter struct {
	ready chan struct{} // closed when a slot has been handed over
}

// Slot is one unit of concurrency held by a single operation.
type Slot struct {
	gate *Gate
	once sync.Once
}

// Config holds configuration options for creating a Gate.
type Config struct {
	// MaxConcurrent is the maximum number of slots held at once.
	MaxConcurrent int
}

// New creates a Gate admitting at most maxConcurrent holders.
func New(maxConcurrent int) (*Gate, error) {
	return NewWithConfig(Config{MaxConcurrent: maxConcurrent})
}

// NewWithConfig creates a Gate from config. A non-positive MaxConcurrent is
// rejected with a validation error.
func NewWithConfig(config Config) (*Gate, error) {
	if err := validation.ValidatePositive("concurrency", "maxConcurrent", config.MaxConcurrent); err != nil {
		return nil, err
	}

	return &Gate{
		capacity: config.MaxConcurrent,
		waiters:  make([]*waiter, 0),
	}, nil
}
