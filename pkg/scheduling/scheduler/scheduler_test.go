package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/fanflow/internal/testutil"
	gferrors "github.com/vnykmshr/fanflow/pkg/common/errors"
	"github.com/vnykmshr/fanflow/pkg/coordinator"
	"github.com/vnykmshr/fanflow/pkg/fanout"
)

func counting(n *int32) coordinator.Task {
	return coordinator.TaskFunc(func(context.Context) error {
		atomic.AddInt32(n, 1)
		return nil
	})
}

func startScheduler(t *testing.T) Scheduler {
	t.Helper()
	s := NewWithConfig(Config{TickInterval: 10 * time.Millisecond})
	require.NoError(t, s.Start())
	t.Cleanup(func() { <-s.Stop() })
	return s
}

func TestBasicScheduling(t *testing.T) {
	s := startScheduler(t)

	var runs int32
	require.NoError(t, s.ScheduleAfter("once", counting(&runs), 30*time.Millisecond))

	testutil.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs), "one-time job ran again")
	assert.Empty(t, s.List(), "one-time job should be removed after it runs")
}

func TestRepeatingJob(t *testing.T) {
	s := startScheduler(t)

	var runs int32
	require.NoError(t, s.ScheduleRepeating("tick", counting(&runs), 20*time.Millisecond))

	testutil.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 3 }, 2*time.Second, 5*time.Millisecond)

	jobs := s.List()
	require.Len(t, jobs, 1)
	assert.Equal(t, "tick", jobs[0].ID)
	assert.Equal(t, 20*time.Millisecond, jobs[0].Interval)
	assert.GreaterOrEqual(t, jobs[0].Runs, int64(3))
	assert.False(t, jobs[0].LastRun.IsZero())
}

func TestCronScheduling(t *testing.T) {
	s := startScheduler(t)

	var runs int32
	require.NoError(t, s.ScheduleCron("every-second", "* * * * * *", counting(&runs)))

	jobs := s.List()
	require.Len(t, jobs, 1)
	assert.Equal(t, "* * * * * *", jobs[0].Cron)

	testutil.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestSkipsOverlappingRuns(t *testing.T) {
	s := startScheduler(t)

	var active, maxActive, runs int32
	slow := coordinator.TaskFunc(func(ctx context.Context) error {
		n := atomic.AddInt32(&active, 1)
		defer atomic.AddInt32(&active, -1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		atomic.AddInt32(&runs, 1)
		select {
		case <-time.After(80 * time.Millisecond):
		case <-ctx.Done():
		}
		return nil
	})
	require.NoError(t, s.ScheduleRepeating("slow", slow, 10*time.Millisecond))

	testutil.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
}

func TestJobManagement(t *testing.T) {
	s := New()
	noop := coordinator.TaskFunc(func(context.Context) error { return nil })

	require.NoError(t, s.ScheduleAfter("a", noop, time.Hour))
	require.NoError(t, s.ScheduleAfter("b", noop, time.Minute))

	err := s.ScheduleAfter("a", noop, time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	jobs := s.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, "b", jobs[0].ID, "List is ordered by next run")

	assert.True(t, s.Cancel("a"))
	assert.False(t, s.Cancel("a"))
	assert.Len(t, s.List(), 1)

	s.CancelAll()
	assert.Empty(t, s.List())
}

func TestMaxJobs(t *testing.T) {
	s := NewWithConfig(Config{MaxJobs: 1})
	noop := coordinator.TaskFunc(func(context.Context) error { return nil })

	require.NoError(t, s.ScheduleAfter("a", noop, time.Hour))
	err := s.ScheduleAfter("b", noop, time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum number of jobs")
}

func TestInputValidation(t *testing.T) {
	s := New()
	noop := coordinator.TaskFunc(func(context.Context) error { return nil })

	tests := []struct {
		name string
		err  error
	}{
		{"empty id", s.Schedule("", noop, time.Now())},
		{"long id", s.Schedule(string(make([]byte, 256)), noop, time.Now())},
		{"nil task", s.Schedule("x", nil, time.Now())},
		{"zero time", s.Schedule("x", noop, time.Time{})},
		{"zero interval", s.ScheduleRepeating("x", noop, 0)},
		{"negative interval", s.ScheduleRepeating("x", noop, -time.Second)},
		{"empty cron", s.ScheduleCron("x", "", noop)},
		{"bad cron", s.ScheduleCron("x", "not a cron", noop)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.err)
		})
	}
	assert.Empty(t, s.List())
}

func TestValidateCron(t *testing.T) {
	for _, expr := range []string{"* * * * *", "*/5 * * * * *", "@hourly", "@every 30s"} {
		assert.NoError(t, ValidateCron(expr), expr)
	}
	for _, expr := range []string{"", "* * *", "61 * * * *"} {
		assert.Error(t, ValidateCron(expr), expr)
	}
}

func TestStartTwice(t *testing.T) {
	s := startScheduler(t)
	assert.Error(t, s.Start())
}

func TestStopCancelsRunningJobs(t *testing.T) {
	s := NewWithConfig(Config{TickInterval: 10 * time.Millisecond})
	require.NoError(t, s.Start())

	started := make(chan struct{})
	var cancelled atomic.Bool
	block := coordinator.TaskFunc(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	})
	require.NoError(t, s.ScheduleAfter("block", block, 0))

	<-started
	select {
	case <-s.Stop():
	case <-time.After(time.Second):
		t.Fatal("Stop did not wait for the running job")
	}
	assert.True(t, cancelled.Load())
}

func TestStopBeforeStart(t *testing.T) {
	s := New()
	select {
	case <-s.Stop():
	case <-time.After(time.Second):
		t.Fatal("Stop on a scheduler that never started should return at once")
	}
}

func TestRestart(t *testing.T) {
	s := NewWithConfig(Config{TickInterval: 10 * time.Millisecond})

	var runs int32
	require.NoError(t, s.ScheduleRepeating("tick", counting(&runs), 20*time.Millisecond))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Start())
		want := atomic.LoadInt32(&runs) + 1
		testutil.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= want }, time.Second, 5*time.Millisecond)
		<-s.Stop()
	}

	// A Stop from an earlier run must not wait on jobs of a later one.
	require.NoError(t, s.Start())
	first := s.Stop()
	require.NoError(t, s.Start())

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.ScheduleAfter("block", coordinator.TaskFunc(func(context.Context) error {
		close(started)
		<-release
		return nil
	}), 0))
	<-started

	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("Stop of the first run waited on the second run's job")
	}

	close(release)
	<-s.Stop()
}

func TestJobErrorsAndPanicsRecorded(t *testing.T) {
	s := startScheduler(t)

	boom := errors.New("boom")
	require.NoError(t, s.ScheduleRepeating("fails", coordinator.TaskFunc(func(context.Context) error { return boom }), 20*time.Millisecond))
	require.NoError(t, s.ScheduleRepeating("panics", coordinator.TaskFunc(func(context.Context) error { panic("kaboom") }), 20*time.Millisecond))

	lastErr := func(id string) error {
		for _, j := range s.List() {
			if j.ID == id {
				return j.LastErr
			}
		}
		return nil
	}

	testutil.Eventually(t, func() bool {
		return lastErr("fails") != nil && lastErr("panics") != nil
	}, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, lastErr("fails"), boom)
	assert.ErrorIs(t, lastErr("panics"), gferrors.ErrPanicked)
}

func TestBatchJob(t *testing.T) {
	orch := fanout.New[string, string](fanout.IssueFunc[string, string](func(_ context.Context, req string) (string, error) {
		if req == "bad" {
			return "", errors.New("bad request")
		}
		return "ok:" + req, nil
	}))

	var reported []*fanout.Batch[string]
	report := func(b *fanout.Batch[string], err error) {
		require.NoError(t, err)
		reported = append(reported, b)
	}

	ops := []fanout.Descriptor[string]{{ID: "a", Request: "a"}, {ID: "b", Request: "b"}}
	job := BatchJob(orch.RunAll, func() []fanout.Descriptor[string] { return ops }, report)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	require.NoError(t, job.Execute(ctx))
	require.Len(t, reported, 1)
	assert.Equal(t, []string{"ok:a", "ok:b"}, reported[0].Values())

	ops = append(ops, fanout.Descriptor[string]{ID: "c", Request: "bad"})
	err := job.Execute(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 operations failed")
	assert.Len(t, reported, 2)
}

func TestBatchJobScheduled(t *testing.T) {
	collab := testutil.NewScriptedCollaborator(map[string]testutil.Step{
		"x": {Delay: 5 * time.Millisecond},
	})
	orch := fanout.New[string, string](collab)

	var batches int32
	job := BatchJob(orch.RunAll,
		func() []fanout.Descriptor[string] { return []fanout.Descriptor[string]{{Request: "x"}} },
		func(*fanout.Batch[string], error) { atomic.AddInt32(&batches, 1) },
	)

	s := startScheduler(t)
	require.NoError(t, s.ScheduleRepeating("refresh", job, 20*time.Millisecond))

	testutil.Eventually(t, func() bool { return atomic.LoadInt32(&batches) >= 2 }, 2*time.Second, 5*time.Millisecond)
}
