// Package schedule asks configured questions on cron schedules.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/kayz/quorum/internal/logger"
	"github.com/kayz/quorum/internal/pipeline"
)

// Runner answers one question. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, question string, observers ...pipeline.Observer) (*pipeline.Result, error)
}

// Sink receives every finished scheduled run, e.g. to write it to disk.
type Sink func(job *Job, res *pipeline.Result) error

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// cronLogger routes robfig/cron's own messages through our logger.
type cronLogger struct{}

func (cronLogger) Printf(format string, v ...interface{}) {
	logger.Debug("[SCHEDULE] cron: "+format, v...)
}

// Scheduler manages scheduled questions
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	sink   Sink
	jobs   map[string]*Job
	mu     sync.RWMutex
	now    func() time.Time
}

// NewScheduler creates a new scheduler. A run still in progress when its
// next tick fires is not started twice.
func NewScheduler(runner Runner, sink Sink) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(cronLogger{}))),
		),
		runner: runner,
		sink:   sink,
		jobs:   make(map[string]*Job),
		now:    time.Now,
	}
}

// normalizeCron prepends "0 " to standard 5-field cron expressions
// so they work with the 6-field (with seconds) parser.
func normalizeCron(schedule string) string {
	schedule = strings.TrimSpace(schedule)
	if len(strings.Fields(schedule)) == 5 {
		return "0 " + schedule
	}
	return schedule
}

// ValidateSpec reports whether spec is a usable schedule.
func ValidateSpec(spec string) error {
	if _, err := parser.Parse(normalizeCron(spec)); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}

// Next returns the first activation of spec after t.
func Next(spec string, t time.Time) (time.Time, bool) {
	sched, err := parser.Parse(normalizeCron(spec))
	if err != nil {
		return time.Time{}, false
	}
	return sched.Next(t), true
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	total, enabled := s.count()
	logger.Info("[SCHEDULE] scheduler started with %d jobs (%d enabled)", total, enabled)
}

// Stop stops the scheduler and waits for running questions to finish or ctx
// to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		logger.Info("[SCHEDULE] scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// AddJob validates and schedules a question.
func (s *Scheduler) AddJob(name, schedule, question string) (*Job, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("job %q has no question", name)
	}
	job := &Job{
		ID:        uuid.New().String(),
		Name:      name,
		Schedule:  normalizeCron(schedule),
		Question:  question,
		Enabled:   true,
		CreatedAt: s.now(),
	}
	if job.Name == "" {
		job.Name = pipeline.ShortID(job.ID)
	}
	if err := ValidateSpec(job.Schedule); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.scheduleJob(job); err != nil {
		return nil, fmt.Errorf("failed to schedule job: %w", err)
	}
	s.jobs[job.ID] = job

	logger.Info("[SCHEDULE] job created: %s (%s) - schedule: %s", job.ID, job.Name, job.Schedule)
	return job.Clone(), nil
}

// RemoveJob removes a job from the scheduler
func (s *Scheduler) RemoveJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	if job.EntryID != 0 {
		s.cron.Remove(job.EntryID)
	}
	delete(s.jobs, id)

	logger.Info("[SCHEDULE] job removed: %s (%s)", job.ID, job.Name)
	return nil
}

// PauseJob pauses a job
func (s *Scheduler) PauseJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	if !job.Enabled {
		return fmt.Errorf("job is already paused")
	}
	if job.EntryID != 0 {
		s.cron.Remove(job.EntryID)
		job.EntryID = 0
	}
	job.Enabled = false

	logger.Info("[SCHEDULE] job paused: %s (%s)", job.ID, job.Name)
	return nil
}

// ResumeJob resumes a paused job
func (s *Scheduler) ResumeJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	if job.Enabled {
		return fmt.Errorf("job is already running")
	}
	if err := s.scheduleJob(job); err != nil {
		return fmt.Errorf("failed to schedule job: %w", err)
	}
	job.Enabled = true

	logger.Info("[SCHEDULE] job resumed: %s (%s)", job.ID, job.Name)
	return nil
}

// ListJobs returns all jobs sorted by name, with their next run time.
func (s *Scheduler) ListJobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		clone := job.Clone()
		if job.EntryID != 0 {
			if next := s.cron.Entry(job.EntryID).Next; !next.IsZero() {
				clone.NextRun = &next
			}
		}
		jobs = append(jobs, clone)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].Name != jobs[j].Name {
			return jobs[i].Name < jobs[j].Name
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs
}

// RunNow asks a job's question immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, id string) error {
	s.mu.RLock()
	job, exists := s.jobs[id]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	return s.executeJob(ctx, job)
}

// scheduleJob must be called with s.mu held.
func (s *Scheduler) scheduleJob(job *Job) error {
	entryID, err := s.cron.AddFunc(job.Schedule, func() {
		_ = s.executeJob(context.Background(), job)
	})
	if err != nil {
		return err
	}
	job.EntryID = entryID
	return nil
}

func (s *Scheduler) executeJob(ctx context.Context, job *Job) error {
	now := s.now()
	s.mu.Lock()
	job.LastRun = &now
	job.Runs++
	snapshot := job.Clone()
	s.mu.Unlock()

	logger.Info("[SCHEDULE] running job %s (%s): %q", pipeline.ShortID(job.ID), job.Name, snapshot.Question)
	res, err := s.runner.Run(ctx, snapshot.Question)
	if err == nil && s.sink != nil {
		if sinkErr := s.sink(snapshot, res); sinkErr != nil {
			err = fmt.Errorf("failed to store run: %w", sinkErr)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if res != nil {
		job.LastRunID = res.ID
		job.LastOutcome = string(res.Report.Outcome)
	}
	if err != nil {
		job.LastError = err.Error()
		logger.Warn("[SCHEDULE] job %s (%s) failed: %v", pipeline.ShortID(job.ID), job.Name, err)
		return err
	}
	job.LastError = ""
	logger.Info("[SCHEDULE] job %s (%s) completed: %s", pipeline.ShortID(job.ID), job.Name, job.LastOutcome)
	return nil
}

func (s *Scheduler) count() (total, enabled int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.Enabled {
			enabled++
		}
	}
	return len(s.jobs), enabled
}
