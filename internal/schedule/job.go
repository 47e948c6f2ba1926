package schedule

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a question asked on a cron schedule.
type Job struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Schedule    string     `json:"schedule"` // normalized 6-field cron expression
	Question    string     `json:"question"`
	Enabled     bool       `json:"enabled"`
	CreatedAt   time.Time  `json:"created_at"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	LastRunID   string     `json:"last_run_id,omitempty"`
	LastOutcome string     `json:"last_outcome,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	Runs        int        `json:"runs"`
	NextRun     *time.Time `json:"next_run,omitempty"`

	// Runtime fields (not persisted)
	EntryID cron.EntryID `json:"-"`
}

// Clone creates a copy of the job
func (j *Job) Clone() *Job {
	clone := *j
	if j.LastRun != nil {
		lastRun := *j.LastRun
		clone.LastRun = &lastRun
	}
	if j.NextRun != nil {
		next := *j.NextRun
		clone.NextRun = &next
	}
	return &clone
}
