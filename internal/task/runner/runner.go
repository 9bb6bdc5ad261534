// Package runner executes jobs on a fixed pool of workers behind a bounded
// queue and reports one Completion per job.
package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"furlat/internal/eventbus"
	"furlat/internal/job"
	rtsup "furlat/internal/runtime/supervisor"
	logx "furlat/pkg/logx"
)

type Runner struct {
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	queue chan queued
	sup   *rtsup.Supervisor
	box   *mailbox
	out   chan Completion

	mu         sync.Mutex
	closed     bool
	submitters sync.WaitGroup
	stopOnce   sync.Once
	stopCh     chan struct{}
	drained    chan struct{}

	running   atomic.Int32
	pending   atomic.Int64
	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	saturated atomic.Uint64
}

// New starts cfg.Capacity workers. bus may be nil.
func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Runner {
	cfg = cfg.withDefaults()
	if bus == nil {
		bus = eventbus.Nop()
	}
	log = log.With(logx.String("comp", "runner"))
	r := &Runner{
		cfg:     cfg,
		log:     log,
		bus:     bus,
		queue:   make(chan queued, cfg.Capacity),
		box:     newMailbox(),
		out:     make(chan Completion),
		stopCh:  make(chan struct{}),
		drained: make(chan struct{}),
	}
	// Task bodies are never interrupted, so the supervisor context is only
	// canceled by a worker panic escaping execOne.
	r.sup = rtsup.New(context.Background(), rtsup.WithLogger(log))
	for i := 0; i < cfg.Capacity; i++ {
		r.sup.Go0(fmt.Sprintf("worker.%d", i), r.worker)
	}
	go r.box.forward(r.out, func() { r.pending.Add(-1) })

	r.log.Debug("runner started", logx.Int("capacity", cfg.Capacity))
	return r
}

func (r *Runner) Capacity() int { return r.cfg.Capacity }

// Submit queues j, waiting up to timeout for a free queue slot. It returns
// ErrSaturated when the queue stays full and ErrClosed after Stop.
func (r *Runner) Submit(j job.Job, timeout time.Duration) error {
	if j.Task == nil {
		return ErrNilTask
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.submitters.Add(1)
	r.mu.Unlock()
	defer r.submitters.Done()

	item := queued{job: j, enqueuedAt: time.Now()}

	select {
	case r.queue <- item:
		r.accepted(j)
		return nil
	default:
	}
	if timeout <= 0 {
		r.saturated.Add(1)
		return ErrSaturated
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case r.queue <- item:
		r.accepted(j)
		return nil
	case <-r.stopCh:
		return ErrClosed
	case <-t.C:
		r.saturated.Add(1)
		return ErrSaturated
	}
}

func (r *Runner) accepted(j job.Job) {
	r.submitted.Add(1)
	r.bus.Publish(eventbus.Event{Type: eventbus.JobSubmitted, Data: JobEvent{ID: j.ID.String(), Category: j.Category.String()}})
}

// Stop refuses new submissions. Queued and running jobs still complete and
// are reported. Calling Stop again has no effect.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.stopCh)

		go func() {
			// No submitter can be mid-send once this returns, so closing the
			// queue is safe; workers drain what is left and exit.
			r.submitters.Wait()
			close(r.queue)
			_ = r.sup.Wait(context.Background())
			r.box.close()
			close(r.drained)
			r.log.Debug("runner drained")
		}()
		r.log.Debug("runner stopping")
	})
}

// Join waits until every job accepted before Stop has run and all workers
// have exited. It returns ctx.Err() if ctx ends first. Join before Stop
// waits for Stop.
func (r *Runner) Join(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-r.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the runner has fully drained after Stop.
func (r *Runner) Done() <-chan struct{} { return r.drained }

// Completions delivers one record per accepted job. The channel is closed
// after Stop once every record has been delivered.
func (r *Runner) Completions() <-chan Completion { return r.out }

func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	return Snapshot{
		Capacity:  r.cfg.Capacity,
		Running:   int(r.running.Load()),
		Queued:    len(r.queue),
		Pending:   int(r.pending.Load()),
		Submitted: r.submitted.Load(),
		Completed: r.completed.Load(),
		Failed:    r.failed.Load(),
		Saturated: r.saturated.Load(),
		Closed:    closed,
	}
}
