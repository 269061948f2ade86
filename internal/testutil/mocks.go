package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockClock implements Clock interface for testing with controllable time.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock creates a new MockClock starting at the given time.
// If zero time is provided, uses current time.
func NewMockClock(start time.Time) *MockClock {
	if start.IsZero() {
		start = time.Now()
	}
	return &MockClock{now: start}
}

// Now returns the current mock time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock clock forward by the given duration.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock clock to a specific time.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Step scripts how a ScriptedCollaborator answers one request.
type Step struct {
	// Delay is how long the call takes before answering.
	Delay time.Duration

	// Err, when set, is returned after Delay instead of a response.
	Err error

	// Panic, when set, is raised synchronously at the start of the call.
	Panic interface{}

	// IgnoreCancel makes the call sleep through context cancellation.
	IgnoreCancel bool
}

// ScriptedCollaborator is a fake remote service keyed by request string.
// Unscripted requests answer immediately. It records which calls completed,
// which observed cancellation, and the peak number of concurrent calls.
type ScriptedCollaborator struct {
	mu          sync.Mutex
	steps       map[string]Step
	started     []string
	completed   map[string]bool
	cancelled   map[string]bool
	inFlight    int
	maxInFlight int
}

// NewScriptedCollaborator creates a collaborator with the given script.
func NewScriptedCollaborator(steps map[string]Step) *ScriptedCollaborator {
	if steps == nil {
		steps = make(map[string]Step)
	}
	return &ScriptedCollaborator{
		steps:     steps,
		completed: make(map[string]bool),
		cancelled: make(map[string]bool),
	}
}

// Issue answers req according to its Step. The response is "resp:<req>".
func (s *ScriptedCollaborator) Issue(ctx context.Context, req string) (string, error) {
	s.mu.Lock()
	step := s.steps[req]
	s.started = append(s.started, req)
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if step.Panic != nil {
		panic(step.Panic)
	}

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()

		if step.IgnoreCancel {
			<-timer.C
		} else {
			select {
			case <-timer.C:
			case <-ctx.Done():
				s.mu.Lock()
				s.cancelled[req] = true
				s.mu.Unlock()
				return "", ctx.Err()
			}
		}
	}

	s.mu.Lock()
	s.completed[req] = true
	s.mu.Unlock()

	if step.Err != nil {
		return "", step.Err
	}
	return fmt.Sprintf("resp:%s", req), nil
}

// Started returns the requests in the order their calls began.
func (s *ScriptedCollaborator) Started() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.started))
	copy(out, s.started)
	return out
}

// Completed reports whether the call for req ran to its scripted end.
func (s *ScriptedCollaborator) Completed(req string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed[req]
}

// Cancelled reports whether the call for req observed context cancellation.
func (s *ScriptedCollaborator) Cancelled(req string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled[req]
}

// InFlight returns the number of calls currently running.
func (s *ScriptedCollaborator) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// MaxInFlight returns the peak number of concurrent calls observed.
func (s *ScriptedCollaborator) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}
