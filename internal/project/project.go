// Package project runs the control loop: pick an eligible category, build a
// job, hand it to the runner and turn completions into backoff updates and
// stored results.
package project

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"furlat/internal/eventbus"
	"furlat/internal/job"
	"furlat/internal/task/runner"
	logx "furlat/pkg/logx"
)

// Deps are the collaborators of a Project. Registry and Runner are
// required; nil optional fields fall back to inert defaults.
type Deps struct {
	Registry  *Registry
	Runner    Executor
	Admission AdmissionGate
	Clock     FailureClock
	Params    ParamSource
	Sink      Sink
	Stop      StopSignal
	// Resources is closed once the runner has drained, e.g. the HTTP
	// session pool used by the task bodies.
	Resources io.Closer
	Log       logx.Logger
	Bus       eventbus.Bus
	Now       func() time.Time
}

type Project struct {
	cfg        Config
	categories []job.Category

	registry  *Registry
	runner    Executor
	admission AdmissionGate
	clock     FailureClock
	params    ParamSource
	sink      Sink
	stopSig   StopSignal
	resources io.Closer
	log       logx.Logger
	bus       eventbus.Bus
	now       func() time.Time

	state   atomic.Int32
	stopReq atomic.Bool
	runOnce sync.Once
	done    chan struct{}

	// owned by the loop goroutine
	staged   *job.Job
	inflight int

	startedAt   atomic.Int64
	stagedCount atomic.Uint64
	stagingErrs atomic.Uint64
	submitted   atomic.Uint64
	saturated   atomic.Uint64
	succeeded   atomic.Uint64
	failed      atomic.Uint64
	results     atomic.Uint64
	sinkErrs    atomic.Uint64
}

func New(cfg Config, deps Deps) (*Project, error) {
	cfg = cfg.withDefaults()
	if deps.Registry == nil {
		return nil, errors.New("project: registry is required")
	}
	if deps.Runner == nil {
		return nil, errors.New("project: runner is required")
	}
	if deps.Admission == nil || deps.Clock == nil {
		return nil, errors.New("project: admission gate and failure clock are required")
	}

	cats := cfg.Categories
	if len(cats) == 0 {
		cats = deps.Registry.Categories()
	}
	if len(cats) == 0 {
		return nil, errors.New("project: no categories")
	}
	for _, c := range cats {
		if _, ok := deps.Registry.Lookup(c); !ok {
			return nil, fmt.Errorf("project: unknown category %q", c)
		}
	}

	p := &Project{
		cfg:        cfg,
		categories: append([]job.Category(nil), cats...),
		registry:   deps.Registry,
		runner:     deps.Runner,
		admission:  deps.Admission,
		clock:      deps.Clock,
		params:     deps.Params,
		sink:       deps.Sink,
		stopSig:    deps.Stop,
		resources:  deps.Resources,
		log:        deps.Log.With(logx.String("comp", "project"), logx.String("project", cfg.Name)),
		bus:        deps.Bus,
		now:        deps.Now,
		done:       make(chan struct{}),
	}
	if p.bus == nil {
		p.bus = eventbus.Nop()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.params == nil {
		p.params = staticParams{}
	}
	return p, nil
}

func (p *Project) State() State { return State(p.state.Load()) }

func (p *Project) Categories() []job.Category {
	return append([]job.Category(nil), p.categories...)
}

// Done is closed when the project reaches StateTerminated.
func (p *Project) Done() <-chan struct{} { return p.done }

// Stop asks the loop to shut down at the next iteration boundary.
func (p *Project) Stop() {
	if p.stopReq.CompareAndSwap(false, true) {
		p.log.Debug("stop requested")
	}
}

func (p *Project) Stats() Stats {
	var started time.Time
	if ns := p.startedAt.Load(); ns != 0 {
		started = time.Unix(0, ns)
	}
	return Stats{
		State:       p.State(),
		Staged:      p.stagedCount.Load(),
		StagingErrs: p.stagingErrs.Load(),
		Submitted:   p.submitted.Load(),
		Saturated:   p.saturated.Load(),
		Succeeded:   p.succeeded.Load(),
		Failed:      p.failed.Load(),
		Results:     p.results.Load(),
		SinkErrs:    p.sinkErrs.Load(),
		StartedAt:   started,
	}
}

// Run drives the loop until Stop, the stop signal or ctx ends it, then
// drains the runner and closes the resources. Calling Run a second time
// only waits for the first run to finish.
func (p *Project) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	first := false
	p.runOnce.Do(func() { first = true })
	if !first {
		<-p.done
		return nil
	}
	defer close(p.done)

	p.startedAt.Store(p.now().UnixNano())
	p.log.Info("project started", logx.Int("categories", len(p.categories)))

	for !p.shouldStop(ctx) {
		p.tick(ctx)
	}
	return p.shutdown(ctx)
}

func (p *Project) shouldStop(ctx context.Context) bool {
	if p.stopReq.Load() {
		return true
	}
	if ctx.Err() != nil {
		p.log.Info("context canceled, stopping")
		return true
	}
	if p.stopSig != nil && p.stopSig.Requested() {
		p.log.Info("stop signal received")
		p.stopReq.Store(true)
		return true
	}
	return false
}

func (p *Project) tick(ctx context.Context) {
	if p.staged == nil {
		p.setState(StateStaging)
		j, err := p.stage(ctx)
		switch {
		case err == nil:
			p.staged = &j
		case errors.Is(err, ErrNoEligibleCategory):
		default:
			p.log.Warn("staging failed", logx.Err(err))
		}
	}

	if p.staged != nil {
		p.setState(StateSubmitting)
		p.submit()
		if p.stopReq.Load() {
			return
		}
	}

	p.setState(StateDraining)
	p.drain(ctx)

	if p.inflight > 0 {
		p.setState(StateRunning)
	} else {
		p.setState(StateIdle)
	}
}

// stage picks the first eligible category in random order, takes its
// admission slot and builds the job. On failure the slot is returned and
// the category backs off.
func (p *Project) stage(ctx context.Context) (job.Job, error) {
	cats := p.Categories()
	rand.Shuffle(len(cats), func(i, j int) { cats[i], cats[j] = cats[j], cats[i] })

	now := p.now()
	for _, c := range cats {
		if !p.clock.Eligible(c, now) {
			continue
		}
		if !p.admission.TryAcquire(c) {
			continue
		}

		params, err := p.params.Next(ctx)
		if err == nil {
			var task job.Task
			task, err = p.registry.Build(c, params)
			if err == nil {
				j := job.New(c, params, task)
				p.stagedCount.Add(1)
				p.log.Debug("job staged", logx.Stringer("job", j.ID), logx.String("category", c.String()), logx.String("query", params.Query))
				return j, nil
			}
		}

		p.admission.Release(c)
		p.stagingErrs.Add(1)
		wait := p.clock.RecordFailure(c)
		p.publishBackoff(c, wait, err)
		return job.Job{}, fmt.Errorf("stage %s: %w", c, err)
	}
	return job.Job{}, ErrNoEligibleCategory
}

func (p *Project) submit() {
	j := *p.staged
	err := p.runner.Submit(j, p.cfg.SubmitTimeout)
	switch {
	case err == nil:
		p.staged = nil
		p.inflight++
		p.submitted.Add(1)
		p.log.Info("job started", logx.Stringer("job", j.ID), logx.String("category", j.Category.String()))
	case errors.Is(err, runner.ErrSaturated):
		p.saturated.Add(1)
		p.log.Trace("runner saturated, job stays staged", logx.Stringer("job", j.ID))
	case errors.Is(err, runner.ErrClosed):
		p.log.Warn("runner closed, shutting down", logx.Stringer("job", j.ID))
		p.releaseStaged()
		p.stopReq.Store(true)
	default:
		p.log.Error("submit rejected job", logx.Stringer("job", j.ID), logx.Err(err))
		p.releaseStaged()
		wait := p.clock.RecordFailure(j.Category)
		p.publishBackoff(j.Category, wait, err)
	}
}

func (p *Project) releaseStaged() {
	if p.staged == nil {
		return
	}
	p.admission.Release(p.staged.Category)
	p.staged = nil
}

// drain consumes completions until none arrives within the poll timeout.
func (p *Project) drain(ctx context.Context) {
	t := time.NewTimer(p.cfg.DrainPollTimeout)
	defer t.Stop()
	for {
		select {
		case c, ok := <-p.runner.Completions():
			if !ok {
				// The runner was stopped elsewhere; nothing more can run.
				if !p.stopReq.Swap(true) {
					p.log.Warn("runner closed, stopping")
				}
				return
			}
			p.accept(ctx, c)
			t.Reset(p.cfg.DrainPollTimeout)
		case <-t.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Project) accept(ctx context.Context, c runner.Completion) {
	j := c.Job
	cat := j.Category
	p.admission.Release(cat)
	if p.inflight > 0 {
		p.inflight--
	}
	log := p.log.With(logx.Stringer("job", j.ID), logx.String("category", cat.String()))

	if c.Err != nil {
		p.failed.Add(1)
		wait := p.clock.RecordFailure(cat)
		log.Warn("job finished with errors", logx.Err(c.Err), logx.Duration("dur", c.Duration), logx.Duration("backoff", wait))
		p.publishBackoff(cat, wait, c.Err)
		return
	}

	p.succeeded.Add(1)
	p.clock.RecordSuccess(cat)
	log.Info("job finished", logx.Int("results", len(c.Results)), logx.Duration("dur", c.Duration))

	if len(c.Results) == 0 {
		log.Debug("no results, nothing stored")
		return
	}
	if p.sink == nil {
		return
	}
	if err := p.sink.OnResult(ctx, j, c.Results); err != nil {
		p.sinkErrs.Add(1)
		log.Error("storing results failed", logx.Err(err))
		return
	}
	p.results.Add(uint64(len(c.Results)))
	p.bus.Publish(eventbus.Event{Type: eventbus.ResultStored, Data: runner.JobEvent{
		ID: j.ID.String(), Category: cat.String(), Results: len(c.Results),
	}})
}

func (p *Project) shutdown(ctx context.Context) error {
	p.setState(StateShuttingDown)
	p.log.Info("project stopping")

	p.releaseStaged()
	p.runner.Stop()

	// Task bodies are not interrupted; wait for them regardless of ctx.
	joinErr := p.runner.Join(context.Background())

	// Results found by the last jobs are stored even when ctx is done.
	final := context.WithoutCancel(ctx)
	for c := range p.runner.Completions() {
		p.accept(final, c)
	}

	var closeErr error
	if p.resources != nil {
		if closeErr = p.resources.Close(); closeErr != nil {
			p.log.Warn("closing resources failed", logx.Err(closeErr))
		}
	}

	p.setState(StateTerminated)
	st := p.Stats()
	p.log.Info("project exited",
		logx.Uint64("succeeded", st.Succeeded),
		logx.Uint64("failed", st.Failed),
		logx.Uint64("results", st.Results),
	)
	return errors.Join(joinErr, closeErr)
}

func (p *Project) setState(s State) {
	prev := State(p.state.Swap(int32(s)))
	if prev == s {
		return
	}
	p.log.Trace("state", logx.Stringer("from", prev), logx.Stringer("to", s))
	p.bus.Publish(eventbus.Event{Type: eventbus.ProjectState, Data: StateEvent{From: prev.String(), To: s.String()}})
}

func (p *Project) publishBackoff(c job.Category, wait time.Duration, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	p.bus.Publish(eventbus.Event{Type: eventbus.CategoryBackoff, Data: BackoffEvent{Category: c.String(), Wait: wait, Error: msg}})
}

type staticParams struct{}

func (staticParams) Next(context.Context) (job.Params, error) { return job.Params{}, nil }
