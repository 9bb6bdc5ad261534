package runner

import (
	"context"
	"runtime/debug"
	"time"

	"furlat/internal/eventbus"
	"furlat/internal/job"
	logx "furlat/pkg/logx"
)

func (r *Runner) worker(ctx context.Context) {
	for item := range r.queue {
		r.running.Add(1)
		c := r.execOne(ctx, item)
		r.running.Add(-1)

		r.pending.Add(1)
		r.box.put(c)
	}
}

func (r *Runner) execOne(ctx context.Context, item queued) Completion {
	j := item.job
	start := time.Now()
	queueDelay := start.Sub(item.enqueuedAt)
	if queueDelay < 0 {
		queueDelay = 0
	}
	log := r.log.With(logx.Stringer("job", j.ID), logx.String("category", j.Category.String()))

	log.Debug("job.started", logx.Duration("queue_delay", queueDelay))
	r.bus.Publish(eventbus.Event{Type: eventbus.JobStarted, Time: start, Data: JobEvent{
		ID: j.ID.String(), Category: j.Category.String(), Started: start, QueueDelay: queueDelay,
	}})

	results, err := r.call(ctx, j, log)
	dur := time.Since(start)

	ev := JobEvent{
		ID: j.ID.String(), Category: j.Category.String(), Started: start,
		QueueDelay: queueDelay, Duration: dur, Results: len(results),
	}
	if err != nil {
		r.failed.Add(1)
		ev.Error = err.Error()
		log.Debug("job.failed", logx.Err(err), logx.Duration("dur", dur))
		r.bus.Publish(eventbus.Event{Type: eventbus.JobFailed, Data: ev})
	} else {
		r.completed.Add(1)
		log.Debug("job.finished", logx.Int("results", len(results)), logx.Duration("dur", dur))
		r.bus.Publish(eventbus.Event{Type: eventbus.JobFinished, Data: ev})
	}
	return Completion{Job: j, Results: results, Err: err, Started: start, Duration: dur}
}

// call runs the task body, turning an error or a panic into a *TaskFailure.
func (r *Runner) call(ctx context.Context, j job.Job, log logx.Logger) (results job.Results, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("job.panic", logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
			results = nil
			err = &TaskFailure{JobID: j.ID, Category: j.Category, Panic: p}
		}
	}()
	results, err = j.Task.Execute(ctx)
	if err != nil {
		return nil, &TaskFailure{JobID: j.ID, Category: j.Category, Err: err}
	}
	return results, nil
}
