package runner

import (
	"time"

	"furlat/internal/job"
)

const DefaultCapacity = 5

// Config controls the runner. Capacity bounds both the worker pool and the
// submission queue and is fixed for the runner's lifetime.
type Config struct {
	Capacity int
}

func (c Config) withDefaults() Config {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	return c
}

// Completion is produced exactly once per accepted job, in finish order.
type Completion struct {
	Job      job.Job
	Results  job.Results
	Err      error // *TaskFailure or nil
	Started  time.Time
	Duration time.Duration
}

func (c Completion) OK() bool { return c.Err == nil }

// JobEvent is the payload of the job.* events on the bus.
type JobEvent struct {
	ID         string        `json:"id"`
	Category   string        `json:"category"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Results    int           `json:"results"`
	Error      string        `json:"error,omitempty"`
}

// Snapshot is a point-in-time view for diagnostics.
type Snapshot struct {
	Capacity  int
	Running   int
	Queued    int
	Pending   int // completions not yet handed to the consumer
	Submitted uint64
	Completed uint64
	Failed    uint64
	Saturated uint64
	Closed    bool
}

type queued struct {
	job        job.Job
	enqueuedAt time.Time
}
