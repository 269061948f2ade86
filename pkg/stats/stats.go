package stats

import (
	"context"
	"time"
)

// Summary describes one finished batch.
type Summary struct {
	BatchID string `json:"batch_id"`
	Name    string `json:"name"`
	Policy  string `json:"policy"`
	Total   int    `json:"total"`
	Counts  Counts `json:"counts"`
	Aborted bool   `json:"aborted"`
	Trigger string `json:"trigger,omitempty"`

	// AdmissionWait sums the admission wait of every operation.
	AdmissionWait time.Duration `json:"admission_wait"`
	Elapsed       time.Duration `json:"elapsed"`
	FinishedAt    time.Time     `json:"finished_at"`
}

// Counts tallies operations by outcome.
type Counts struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	TimedOut  int `json:"timed_out"`
}

// Totals accumulates summaries of one name and policy.
type Totals struct {
	Batches   int64
	Aborted   int64
	Completed int64
	Failed    int64
	Cancelled int64
	TimedOut  int64
	Elapsed   time.Duration
}

// AverageElapsed returns the mean batch duration.
func (t Totals) AverageElapsed() time.Duration {
	if t.Batches == 0 {
		return 0
	}
	return t.Elapsed / time.Duration(t.Batches)
}

// Recorder persists batch summaries. Recording is best-effort: callers log
// a failed Record and carry on.
type Recorder interface {
	Record(ctx context.Context, s Summary) error
}

func (t *Totals) add(s Summary) {
	t.Batches++
	if s.Aborted {
		t.Aborted++
	}
	t.Completed += int64(s.Counts.Completed)
	t.Failed += int64(s.Counts.Failed)
	t.Cancelled += int64(s.Counts.Cancelled)
	t.TimedOut += int64(s.Counts.TimedOut)
	t.Elapsed += s.Elapsed
}
