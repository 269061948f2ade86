package fanout

import (
	"context"
	"iter"
	"sync"
)

// Progress delivers the outcomes of a progressive batch in completion
// order. It is finite and cannot be restarted. Next and All are meant for a
// single consumer; Stop may be called from any goroutine.
type Progress[Resp any] struct {
	mu       sync.Mutex
	c        *collector[Resp]
	stopped  chan struct{}
	stopOnce sync.Once
}

// RunProgressive starts every operation and returns a Progress that yields
// outcomes as they complete. Stopping early, with Stop or by breaking out
// of All, cancels the operations still running. Callers that may abandon
// the Progress before draining it should defer Stop.
func (o *Orchestrator[Req, Resp]) RunProgressive(ctx context.Context, ops []Descriptor[Req], opts ...RunOption) *Progress[Resp] {
	r := o.launch(ctx, PolicyProgressive, ops, opts)
	return &Progress[Resp]{
		c:       r.collector,
		stopped: make(chan struct{}),
	}
}

// Next blocks until the next operation finishes and returns its outcome.
// It returns false once every outcome has been delivered, after Stop, or
// when ctx ends. Ending ctx does not stop the batch.
func (p *Progress[Resp]) Next(ctx context.Context) (Outcome[Resp], bool) {
	p.mu.Lock()
	if p.c.done() {
		p.c.finish()
		p.mu.Unlock()
		return Outcome[Resp]{}, false
	}
	p.mu.Unlock()

	select {
	case <-p.stopped:
		return Outcome[Resp]{}, false
	default:
	}

	select {
	case ev := <-p.c.events:
		p.mu.Lock()
		defer p.mu.Unlock()
		out := p.c.settle(ev)
		if p.c.done() {
			p.c.finish()
		}
		return out, true
	case <-p.stopped:
		return Outcome[Resp]{}, false
	case <-ctx.Done():
		return Outcome[Resp]{}, false
	}
}

// All returns an iterator over the remaining outcomes. Breaking out of the
// loop stops the batch.
func (p *Progress[Resp]) All() iter.Seq[Outcome[Resp]] {
	return func(yield func(Outcome[Resp]) bool) {
		for {
			out, ok := p.Next(context.Background())
			if !ok {
				return
			}
			if !yield(out) {
				p.Stop()
				return
			}
		}
	}
}

// Stop cancels every operation still running, waits for them to leave the
// coordinator and settles their outcomes as Cancelled. It is a no-op once
// the batch is complete.
func (p *Progress[Resp]) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		if !p.c.done() {
			p.c.abort(nil)
		}
		close(p.stopped)
		p.mu.Unlock()

		p.c.wg.Wait()

		p.mu.Lock()
		defer p.mu.Unlock()
		for !p.c.done() {
			select {
			case ev := <-p.c.events:
				p.c.settle(ev)
			default:
				// A concurrent Next holds the last event and finishes the batch.
				return
			}
		}
		p.c.finish()
	})
}

// Counts returns the tallies of the outcomes settled so far.
func (p *Progress[Resp]) Counts() Counts {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.c.batch.Counts
}

// Batch returns a positional snapshot of the batch. It is complete once
// Next has returned false or Stop has returned.
func (p *Progress[Resp]) Batch() *Batch[Resp] {
	p.mu.Lock()
	defer p.mu.Unlock()

	b := *p.c.batch
	b.Outcomes = append([]Outcome[Resp](nil), p.c.batch.Outcomes...)
	b.Pending = append([]string(nil), p.c.batch.Pending...)
	return &b
}
