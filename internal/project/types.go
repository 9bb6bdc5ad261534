package project

import (
	"context"
	"errors"
	"time"

	"furlat/internal/job"
	"furlat/internal/task/runner"
)

// ErrNoEligibleCategory means every category is backing off or already has
// a job in flight. The loop idles for the tick; it is never reported as a
// failure.
var ErrNoEligibleCategory = errors.New("no eligible category")

const (
	DefaultSubmitTimeout    = 250 * time.Millisecond
	DefaultDrainPollTimeout = 250 * time.Millisecond
)

// Sink receives the results of every successful job that found something.
type Sink interface {
	OnResult(ctx context.Context, j job.Job, results job.Results) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, j job.Job, results job.Results) error

func (f SinkFunc) OnResult(ctx context.Context, j job.Job, results job.Results) error {
	return f(ctx, j, results)
}

// StopSignal is polled once per tick by the loop.
type StopSignal interface {
	Requested() bool
}

// StopFunc adapts a function to StopSignal.
type StopFunc func() bool

func (f StopFunc) Requested() bool { return f() }

// ParamSource supplies the parameters of the next job.
type ParamSource interface {
	Next(ctx context.Context) (job.Params, error)
}

// AdmissionGate limits in-flight jobs per category.
type AdmissionGate interface {
	TryAcquire(c job.Category) bool
	Release(c job.Category)
}

// FailureClock decides when a failing category may run again.
type FailureClock interface {
	Eligible(c job.Category, now time.Time) bool
	RecordFailure(c job.Category) time.Duration
	RecordSuccess(c job.Category)
}

// Executor runs submitted jobs and reports their completions.
type Executor interface {
	Submit(j job.Job, timeout time.Duration) error
	Stop()
	Join(ctx context.Context) error
	Completions() <-chan runner.Completion
}

type State int32

const (
	StateIdle State = iota
	StateStaging
	StateSubmitting
	StateRunning
	StateDraining
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStaging:
		return "staging"
	case StateSubmitting:
		return "submitting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type Config struct {
	// Name labels log lines, normally the shortener domain.
	Name string
	// Categories restricts the loop to a subset of the registry. Empty means
	// every registered category.
	Categories []job.Category

	SubmitTimeout    time.Duration
	DrainPollTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = DefaultSubmitTimeout
	}
	if c.DrainPollTimeout <= 0 {
		c.DrainPollTimeout = DefaultDrainPollTimeout
	}
	return c
}

// Stats are cumulative counters for reporting.
type Stats struct {
	State       State
	Staged      uint64
	StagingErrs uint64
	Submitted   uint64
	Saturated   uint64
	Succeeded   uint64
	Failed      uint64
	Results     uint64
	SinkErrs    uint64
	StartedAt   time.Time
}

// StateEvent is published on every state change.
type StateEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// BackoffEvent is published when a category fails.
type BackoffEvent struct {
	Category string        `json:"category"`
	Wait     time.Duration `json:"wait"`
	Error    string        `json:"error"`
}
