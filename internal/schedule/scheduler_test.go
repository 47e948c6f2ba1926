package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kayz/quorum/internal/aggregate"
	"github.com/kayz/quorum/internal/pipeline"
)

type fakeRunner struct {
	questions []string
	err       error
}

func (f *fakeRunner) Run(_ context.Context, question string, _ ...pipeline.Observer) (*pipeline.Result, error) {
	f.questions = append(f.questions, question)
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.Result{ID: "run-1", Question: question, Report: aggregate.Report{Outcome: aggregate.OutcomeSynthesized}}, nil
}

func TestNormalizeCron(t *testing.T) {
	if got := normalizeCron("*/5 * * * *"); got != "0 */5 * * * *" {
		t.Fatalf("5-field spec not normalized: %q", got)
	}
	if got := normalizeCron(" 30 0 9 * * 1-5 "); got != "30 0 9 * * 1-5" {
		t.Fatalf("6-field spec changed: %q", got)
	}
	if got := normalizeCron("@daily"); got != "@daily" {
		t.Fatalf("descriptor changed: %q", got)
	}
}

func TestNext(t *testing.T) {
	from := time.Date(2026, 3, 14, 8, 30, 0, 0, time.UTC)
	got, ok := Next("0 9 * * *", from)
	if !ok || !got.Equal(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("Next = %v, %v", got, ok)
	}
	if _, ok := Next("nope", from); ok {
		t.Fatal("expected invalid spec")
	}
}

func TestAddJobValidates(t *testing.T) {
	s := NewScheduler(&fakeRunner{}, nil)

	if _, err := s.AddJob("bad", "not a cron", "q"); err == nil {
		t.Fatal("expected invalid cron error")
	}
	if _, err := s.AddJob("empty", "@hourly", "  "); err == nil {
		t.Fatal("expected empty question error")
	}

	job, err := s.AddJob("", "0 9 * * *", "daily news?")
	if err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}
	if job.ID == "" || job.Name == "" || !job.Enabled || job.Schedule != "0 0 9 * * *" {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestRunNowCallsRunnerAndSink(t *testing.T) {
	runner := &fakeRunner{}
	var sunk []string
	s := NewScheduler(runner, func(job *Job, res *pipeline.Result) error {
		sunk = append(sunk, job.Name+":"+res.ID)
		return nil
	})

	job, err := s.AddJob("news", "@daily", "what happened today?")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RunNow(context.Background(), job.ID); err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}

	if len(runner.questions) != 1 || runner.questions[0] != "what happened today?" {
		t.Fatalf("runner not called as expected: %v", runner.questions)
	}
	if len(sunk) != 1 || sunk[0] != "news:run-1" {
		t.Fatalf("sink not called as expected: %v", sunk)
	}

	jobs := s.ListJobs()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].Runs != 1 || jobs[0].LastRun == nil || jobs[0].LastRunID != "run-1" || jobs[0].LastOutcome != "synthesized" {
		t.Fatalf("job state not updated: %+v", jobs[0])
	}
}

func TestRunNowRecordsErrors(t *testing.T) {
	s := NewScheduler(&fakeRunner{err: errors.New("boom")}, nil)
	job, _ := s.AddJob("x", "@hourly", "q")

	if err := s.RunNow(context.Background(), job.ID); err == nil {
		t.Fatal("expected runner error")
	}
	if got := s.ListJobs()[0].LastError; got != "boom" {
		t.Fatalf("LastError = %q", got)
	}

	sinkFails := NewScheduler(&fakeRunner{}, func(*Job, *pipeline.Result) error { return errors.New("disk full") })
	job, _ = sinkFails.AddJob("y", "@hourly", "q")
	if err := sinkFails.RunNow(context.Background(), job.ID); err == nil {
		t.Fatal("expected sink error")
	}

	if err := s.RunNow(context.Background(), "missing"); err == nil {
		t.Fatal("expected not found")
	}
}

func TestPauseResumeRemove(t *testing.T) {
	s := NewScheduler(&fakeRunner{}, nil)
	s.Start()
	defer s.Stop(context.Background())

	job, err := s.AddJob("b", "@every 1h", "q")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddJob("a", "@every 2h", "q2"); err != nil {
		t.Fatal(err)
	}

	jobs := s.ListJobs()
	if jobs[0].Name != "a" || jobs[1].Name != "b" {
		t.Fatalf("jobs not sorted by name: %s, %s", jobs[0].Name, jobs[1].Name)
	}
	if jobs[1].NextRun == nil {
		t.Fatal("expected next run for a started scheduler")
	}

	if err := s.PauseJob(job.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.PauseJob(job.ID); err == nil {
		t.Fatal("pausing twice should fail")
	}
	if s.ListJobs()[1].NextRun != nil {
		t.Fatal("paused job should have no next run")
	}
	if err := s.ResumeJob(job.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.ResumeJob(job.ID); err == nil {
		t.Fatal("resuming a running job should fail")
	}
	if err := s.RemoveJob(job.ID); err != nil {
		t.Fatal(err)
	}
	if len(s.ListJobs()) != 1 {
		t.Fatal("job not removed")
	}
}
