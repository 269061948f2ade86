package fanout

import (
	"context"
	"errors"
	"time"

	gferrors "github.com/vnykmshr/fanflow/pkg/common/errors"
)

// Descriptor is one operation of a batch. ID names the operation in logs and
// outcomes; an empty ID is replaced with a generated UUID.
type Descriptor[Req any] struct {
	ID      string
	Request Req
}

// Kind classifies how an operation ended.
type Kind int

const (
	// Unfinished marks an operation whose outcome has not been delivered yet.
	Unfinished Kind = iota
	// Succeeded means the collaborator returned a response.
	Succeeded
	// Failed means the collaborator returned an error.
	Failed
	// TimedOut means the per-operation timeout fired first.
	TimedOut
	// Cancelled means the operation was abandoned by its policy or caller.
	Cancelled
)

// String returns the kind's metric label.
func (k Kind) String() string {
	switch k {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	default:
		return "unfinished"
	}
}

// KindOf classifies an operation error.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return Succeeded
	case errors.Is(err, gferrors.ErrTimeout):
		return TimedOut
	case errors.Is(err, gferrors.ErrCancelled), errors.Is(err, context.Canceled):
		return Cancelled
	default:
		return Failed
	}
}

// Outcome is the result of one operation.
type Outcome[Resp any] struct {
	// Index is the operation's position in the submitted batch
	Index int
	ID    string

	// Value holds the response when Kind is Succeeded
	Value Resp

	// Err is the collaborator's error unchanged for Failed, and wraps
	// ErrTimeout or ErrCancelled otherwise
	Err  error
	Kind Kind

	// Wait is the admission wait; Duration is the time spent running
	Wait     time.Duration
	Duration time.Duration
}

// Counts tallies outcomes by kind. Completed counts successes.
type Counts struct {
	Completed int
	Failed    int
	Cancelled int
	TimedOut  int
}

// Total returns the number of finished operations.
func (c Counts) Total() int {
	return c.Completed + c.Failed + c.Cancelled + c.TimedOut
}

func (c *Counts) add(k Kind) {
	switch k {
	case Succeeded:
		c.Completed++
	case Failed:
		c.Failed++
	case TimedOut:
		c.TimedOut++
	case Cancelled:
		c.Cancelled++
	}
}

// Policy names a completion policy.
type Policy string

const (
	PolicyAll               Policy = "run_all"
	PolicyFirst             Policy = "run_first"
	PolicyProgressive       Policy = "run_progressive"
	PolicyUntil             Policy = "run_until"
	PolicyUntilFirstFailure Policy = "run_until_first_failure"
)

// Batch is the positional result of one policy run: Outcomes[i] belongs to
// the i-th submitted descriptor.
type Batch[Resp any] struct {
	ID       string
	Policy   Policy
	Outcomes []Outcome[Resp]
	Counts   Counts

	// Aborted is set when the policy cut the batch short; Trigger is the
	// outcome that caused it and Pending lists the IDs that were cancelled.
	Aborted bool
	Trigger *Outcome[Resp]
	Pending []string

	Elapsed time.Duration
}

// Throughput returns successful operations per second of batch time.
func (b *Batch[Resp]) Throughput() float64 {
	if b.Elapsed <= 0 {
		return 0
	}
	return float64(b.Counts.Completed) / b.Elapsed.Seconds()
}

// AdmissionWait sums the admission wait of every operation.
func (b *Batch[Resp]) AdmissionWait() time.Duration {
	var total time.Duration
	for _, o := range b.Outcomes {
		total += o.Wait
	}
	return total
}

// Values returns the responses of the successful operations in input order.
func (b *Batch[Resp]) Values() []Resp {
	out := make([]Resp, 0, b.Counts.Completed)
	for _, o := range b.Outcomes {
		if o.Kind == Succeeded {
			out = append(out, o.Value)
		}
	}
	return out
}
