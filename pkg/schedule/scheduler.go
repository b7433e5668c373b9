package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/pulse/pkg/telemetry/logging"
)

// Job is a periodic task of the pipeline.
type Job struct {
	// Name identifies the job in logs, e.g. "failover.probe".
	Name string

	// Every runs the job at a fixed interval. Cron rounds it to whole
	// seconds with a one second minimum.
	Every time.Duration

	// Spec is a cron expression used when Every is zero.
	Spec string

	// Run performs one execution.
	Run func(ctx context.Context) error
}

// ErrUnknownJob is returned by Trigger for names that were never added.
var ErrUnknownJob = errors.New("unknown job")

// Scheduler runs the pipeline's background jobs on cron schedules.
// A job never overlaps with itself: a tick arriving while the previous run
// is still active is skipped.
type Scheduler struct {
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
	ctx     context.Context
	jobs    map[string]entry
}

type entry struct {
	id  cron.EntryID
	job Job
}

// New creates a scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger{logger}),
			cron.WithChain(cron.Recover(cronLogger{logger})),
		),
		logger: logger,
		ctx:    context.Background(),
		jobs:   make(map[string]entry),
	}
}

// Add registers a job. Jobs may be added before or after Start.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" {
		return errors.New("job name is required")
	}
	if job.Run == nil {
		return fmt.Errorf("job %q has no run function", job.Name)
	}

	var sched cron.Schedule
	switch {
	case job.Every > 0:
		sched = cron.Every(job.Every)
	case job.Spec != "":
		parsed, err := cron.ParseStandard(job.Spec)
		if err != nil {
			return fmt.Errorf("invalid cron schedule %q for job %q: %w", job.Spec, job.Name, err)
		}
		sched = parsed
	default:
		return fmt.Errorf("job %q needs an interval or a cron schedule", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("job %q already scheduled", job.Name)
	}

	wrapped := cron.NewChain(cron.SkipIfStillRunning(cronLogger{s.logger})).
		Then(cron.FuncJob(func() { s.run(job) }))
	id := s.cron.Schedule(sched, wrapped)
	s.jobs[job.Name] = entry{id: id, job: job}

	s.logger.Debug("job scheduled", "job", job.Name, "every", job.Every, "spec", job.Spec)
	return nil
}

// Start begins running jobs. The scheduler stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.ctx = ctx
	s.cron.Start()
	s.running = true

	s.logger.Info("scheduler started", "jobs", len(s.jobs))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop stops the scheduler and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Trigger runs the named job once, synchronously, outside its schedule.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return e.job.Run(logging.WithJob(ctx, name))
}

func (s *Scheduler) run(job Job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	if err := job.Run(logging.WithJob(ctx, job.Name)); err != nil {
		s.logger.Warn("job failed", "job", job.Name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Debug("job completed", "job", job.Name, "duration", time.Since(start))
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// Jobs returns the sorted names of the scheduled jobs.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextRun returns the next scheduled run of the named job, or nil.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()

	if !ok {
		return nil
	}
	next := s.cron.Entry(e.id).Next
	if next.IsZero() {
		return nil
	}
	return &next
}

// cronLogger adapts slog to the cron logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
