package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/vnykmshr/fanflow/pkg/common/errors"
	"github.com/vnykmshr/fanflow/pkg/coordinator"
)

// Job describes a scheduled job.
type Job struct {
	ID       string
	NextRun  time.Time
	Interval time.Duration // Zero for one-time and cron jobs
	Cron     string        // Empty unless scheduled with ScheduleCron
	Created  time.Time

	Runs    int64
	LastRun time.Time
	LastErr error
}

// Scheduler runs tasks, typically fan-out batches, at set times, at fixed
// intervals or on cron schedules.
type Scheduler interface {
	// Basic scheduling
	Schedule(id string, task coordinator.Task, runAt time.Time) error
	ScheduleAfter(id string, task coordinator.Task, delay time.Duration) error
	ScheduleRepeating(id string, task coordinator.Task, interval time.Duration) error

	// Cron scheduling
	ScheduleCron(id string, cronExpr string, task coordinator.Task) error

	// Job management
	Cancel(id string) bool
	CancelAll()
	List() []Job

	// Lifecycle
	Start() error
	Stop() <-chan struct{}
}

// Config holds scheduler configuration.
type Config struct {
	Location     *time.Location // For cron scheduling
	TickInterval time.Duration  // How often to check for ready jobs (default: 50ms)
	MaxJobs      int            // Maximum number of scheduled jobs (default: 1000)
	Logger       zerolog.Logger
}

type scheduledJob struct {
	id           string
	task         coordinator.Task
	runAt        time.Time
	interval     time.Duration
	cronExpr     string
	cronSchedule cron.Schedule
	created      time.Time

	running bool
	runs    int64
	lastRun time.Time
	lastErr error
}

type scheduler struct {
	location     *time.Location
	tickInterval time.Duration
	maxJobs      int
	cronParser   cron.Parser
	logger       zerolog.Logger

	mu      sync.RWMutex
	jobs    map[string]*scheduledJob
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	wg      *conc.WaitGroup
}

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCron reports whether cronExpr is a valid schedule. Both five and
// six field (with seconds) expressions are accepted, as are descriptors such
// as "@hourly" and "@every 30s".
func ValidateCron(cronExpr string) error {
	if cronExpr == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// New creates a scheduler with default configuration.
func New() Scheduler {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a scheduler with custom configuration.
func NewWithConfig(cfg Config) Scheduler {
	location := cfg.Location
	if location == nil {
		location = time.Local
	}

	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = 50 * time.Millisecond
	}

	maxJobs := cfg.MaxJobs
	if maxJobs <= 0 {
		maxJobs = 1000
	}

	return &scheduler{
		location:     location,
		tickInterval: tickInterval,
		maxJobs:      maxJobs,
		cronParser:   cronParser,
		logger:       cfg.Logger,
		jobs:         make(map[string]*scheduledJob),
	}
}

func validateJob(id string, task coordinator.Task) error {
	if id == "" {
		return fmt.Errorf("job ID cannot be empty")
	}
	if len(id) > 255 {
		return fmt.Errorf("job ID too long (max 255 characters)")
	}
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	return nil
}

// add registers job. Must be called with s.mu held.
func (s *scheduler) add(job *scheduledJob) error {
	if _, exists := s.jobs[job.id]; exists {
		return fmt.Errorf("job with ID %q already exists, use a different ID or cancel the existing job first", job.id)
	}
	if len(s.jobs) >= s.maxJobs {
		return fmt.Errorf("cannot schedule job: maximum number of jobs (%d) reached", s.maxJobs)
	}
	job.created = time.Now()
	s.jobs[job.id] = job
	return nil
}

func (s *scheduler) Schedule(id string, task coordinator.Task, runAt time.Time) error {
	if err := validateJob(id, task); err != nil {
		return err
	}
	if runAt.IsZero() {
		return fmt.Errorf("job run time cannot be zero")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(&scheduledJob{id: id, task: task, runAt: runAt})
}

func (s *scheduler) ScheduleAfter(id string, task coordinator.Task, delay time.Duration) error {
	return s.Schedule(id, task, time.Now().Add(delay))
}

func (s *scheduler) ScheduleRepeating(id string, task coordinator.Task, interval time.Duration) error {
	if err := validateJob(id, task); err != nil {
		return err
	}
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(&scheduledJob{id: id, task: task, runAt: time.Now(), interval: interval})
}

func (s *scheduler) ScheduleCron(id string, cronExpr string, task coordinator.Task) error {
	if err := validateJob(id, task); err != nil {
		return err
	}
	if err := ValidateCron(cronExpr); err != nil {
		return err
	}
	schedule, _ := s.cronParser.Parse(cronExpr)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(&scheduledJob{
		id:           id,
		task:         task,
		runAt:        schedule.Next(time.Now().In(s.location)),
		cronExpr:     cronExpr,
		cronSchedule: schedule,
	})
}

func (s *scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; exists {
		delete(s.jobs, id)
		return true
	}
	return false
}

func (s *scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs = make(map[string]*scheduledJob)
}

func (s *scheduler) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, Job{
			ID:       j.id,
			NextRun:  j.runAt,
			Interval: j.interval,
			Cron:     j.cronExpr,
			Created:  j.created,
			Runs:     j.runs,
			LastRun:  j.lastRun,
			LastErr:  j.lastErr,
		})
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].NextRun.Before(jobs[j].NextRun)
	})

	return jobs
}

func (s *scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running, call Stop() first")
	}

	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.done = make(chan struct{})

	// Each run gets its own group so a Stop from an earlier run never
	// waits on jobs started after a restart.
	wg := &conc.WaitGroup{}
	s.wg = wg

	ticker := time.NewTicker(s.tickInterval)
	done := s.done
	wg.Go(func() { s.run(ticker, done, wg) })
	return nil
}

// Stop halts scheduling and cancels running jobs. The returned channel
// closes once the scheduling loop and every running job have returned.
func (s *scheduler) Stop() <-chan struct{} {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.done)
		s.cancel()
	}
	wg := s.wg
	s.mu.Unlock()

	stopped := make(chan struct{})
	if wg == nil {
		close(stopped)
		return stopped
	}
	go func() {
		defer close(stopped)
		wg.Wait()
	}()
	return stopped
}

func (s *scheduler) run(ticker *time.Ticker, done chan struct{}, wg *conc.WaitGroup) {
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.processReadyJobs(done, wg)
		}
	}
}

func (s *scheduler) processReadyJobs(done chan struct{}, wg *conc.WaitGroup) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	// A loop from an earlier run may tick once more after a restart.
	if !s.running || s.done != done {
		return
	}

	for id, job := range s.jobs {
		if now.Before(job.runAt) {
			continue
		}

		switch {
		case job.interval > 0:
			job.runAt = now.Add(job.interval)
		case job.cronSchedule != nil:
			job.runAt = job.cronSchedule.Next(now.In(s.location))
		default:
			delete(s.jobs, id)
		}

		if job.running {
			s.logger.Debug().Str("job", id).Msg("previous run still in progress, skipping")
			continue
		}
		job.running = true

		ctx := s.ctx
		wg.Go(func() {
			s.execute(ctx, job)
		})
	}
}

func (s *scheduler) execute(ctx context.Context, job *scheduledJob) {
	start := time.Now()
	err := runTask(ctx, job.task)

	s.mu.Lock()
	job.running = false
	job.runs++
	job.lastRun = start
	job.lastErr = err
	s.mu.Unlock()

	ev := s.logger.Debug()
	if err != nil {
		ev = s.logger.Warn().Err(err)
	}
	ev.Str("job", job.id).Dur("elapsed", time.Since(start)).Msg("job finished")
}

// runTask executes task, reporting a panic as an error.
func runTask(ctx context.Context, task coordinator.Task) error {
	var (
		pc  panics.Catcher
		err error
	)
	pc.Try(func() { err = task.Execute(ctx) })
	if r := pc.Recovered(); r != nil {
		return fmt.Errorf("%w: %v", errors.ErrPanicked, r.Value)
	}
	return err
}
