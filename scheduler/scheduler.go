// Package scheduler drives time-based publishing: cron time broadcasts
// per project, sunrise/sunset countdown topics, and one-shot countdown
// timers started from rules or external callers.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowkit/topicflow/errors"
	"github.com/flowkit/topicflow/types"
)

// cronParser accepts an optional seconds field so jobs can fire more
// often than once a minute.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// sunSchedule fires the sunrise/sunset job at the top of every minute.
const sunSchedule = "0 * * * * *"

// Scheduler owns the cron runner, the sun job, and active countdowns.
type Scheduler struct {
	publisher types.Publisher
	jobs      types.CronJobRepository
	settings  types.SettingsRepository

	cron   *cron.Cron
	logger *slog.Logger

	countdownInterval time.Duration
	now               func() time.Time

	mu         sync.Mutex
	entries    map[int64]cron.EntryID // cron job ID -> scheduled entry
	countdowns map[string]*countdown
	started    bool
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCountdownInterval overrides the countdown tick interval. Tests use
// this to avoid real-time waits.
func WithCountdownInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.countdownInterval = interval
		}
	}
}

// WithClock overrides the time source used by the sun job.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a scheduler publishing through the given publisher.
func New(publisher types.Publisher, jobs types.CronJobRepository,
	settings types.SettingsRepository, options ...Option) *Scheduler {

	s := &Scheduler{
		publisher:         publisher,
		jobs:              jobs,
		settings:          settings,
		cron:              cron.New(cron.WithParser(cronParser)),
		logger:            slog.Default().With("component", "scheduler"),
		countdownInterval: time.Second,
		now:               time.Now,
		entries:           make(map[int64]cron.EntryID),
		countdowns:        make(map[string]*countdown),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Start loads enabled cron jobs, registers the sun job, and starts the
// runner. The context bounds all publishes the scheduler makes.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "scheduler", "Start", "check scheduler state")
	}

	s.baseCtx, s.cancelBase = context.WithCancel(ctx)

	if _, err := s.cron.AddFunc(sunSchedule, func() { s.runSunJob(s.baseCtx) }); err != nil {
		return errors.Wrap(err, "scheduler", "Start", "schedule sun job")
	}

	allJobs, err := s.jobs.List(ctx)
	if err != nil {
		return errors.WrapTransient(err, "scheduler", "Start", "load cron jobs")
	}
	for _, job := range allJobs {
		if !job.Enabled {
			continue
		}
		if err := s.scheduleJobLocked(job); err != nil {
			s.logger.Warn("Skipping cron job with bad schedule",
				"job_id", job.ID, "schedule", job.CronExpression, "error", err)
		}
	}

	s.cron.Start()
	s.started = true
	s.logger.Info("Scheduler started", "job_count", len(s.entries))
	return nil
}

// Stop halts the runner and cancels all active countdowns.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.cancelBase()
	for _, cd := range s.countdowns {
		cd.cancel()
	}
	s.countdowns = make(map[string]*countdown)
	s.entries = make(map[int64]cron.EntryID)
	s.mu.Unlock()

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(timeout):
		s.logger.Warn("Scheduler stop timeout, jobs may still be running", "timeout", timeout)
	}

	s.logger.Info("Scheduler stopped")
	return nil
}

// StartProjectJobs schedules the enabled cron jobs of one project.
// Already-scheduled jobs are left alone.
func (s *Scheduler) StartProjectJobs(ctx context.Context, project string) error {
	jobs, err := s.jobs.ListByProject(ctx, project)
	if err != nil {
		return errors.WrapTransient(err, "scheduler", "StartProjectJobs", "load project cron jobs")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range jobs {
		if !job.Enabled {
			continue
		}
		if _, exists := s.entries[job.ID]; exists {
			continue
		}
		if err := s.scheduleJobLocked(job); err != nil {
			s.logger.Warn("Skipping cron job with bad schedule",
				"job_id", job.ID, "schedule", job.CronExpression, "error", err)
		}
	}
	return nil
}

// StopProjectJobs deregisters every scheduled job of one project.
func (s *Scheduler) StopProjectJobs(ctx context.Context, project string) error {
	jobs, err := s.jobs.ListByProject(ctx, project)
	if err != nil {
		return errors.WrapTransient(err, "scheduler", "StopProjectJobs", "load project cron jobs")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range jobs {
		if entryID, exists := s.entries[job.ID]; exists {
			s.cron.Remove(entryID)
			delete(s.entries, job.ID)
		}
	}
	return nil
}

// scheduleJobLocked registers one time-broadcast job. Caller holds s.mu.
func (s *Scheduler) scheduleJobLocked(job types.CronJob) error {
	entryID, err := s.cron.AddFunc(job.CronExpression, func() {
		s.publishTimeBroadcast(s.baseCtx, job)
	})
	if err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %q: %v", errors.ErrInvalidSchedule, job.CronExpression, err),
			"scheduler", "scheduleJob", "parse cron expression")
	}
	s.entries[job.ID] = entryID
	return nil
}

// publishTimeBroadcast sends the current time to the job's topic.
func (s *Scheduler) publishTimeBroadcast(ctx context.Context, job types.CronJob) {
	payload, err := json.Marshal(types.NewTimeBroadcast(s.now()))
	if err != nil {
		s.logger.Error("Failed to encode time broadcast", "error", err)
		return
	}
	entry := types.TopicEntry{
		Topic:   types.JoinTopic(job.Project, job.Topic),
		Payload: string(payload),
		Project: job.Project,
	}
	if err := s.publisher.PublishEntry(ctx, &entry, 0); err != nil {
		s.logger.Warn("Time broadcast publish failed", "topic", entry.Topic, "error", err)
	}
}

// publish sends one scheduler-originated payload, logging failures.
func (s *Scheduler) publish(ctx context.Context, project, leaf, payload string) {
	entry := types.TopicEntry{
		Topic:   types.JoinTopic(project, leaf),
		Payload: payload,
		Project: project,
	}
	if err := s.publisher.PublishEntry(ctx, &entry, 0); err != nil {
		s.logger.Warn("Scheduler publish failed", "topic", entry.Topic, "error", err)
	}
}
