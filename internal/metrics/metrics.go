// Package metrics exports job and project counters in Prometheus format.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"furlat/internal/eventbus"
	"furlat/internal/project"
	"furlat/internal/task/runner"
)

const namespace = "furlat"

// Collector owns a private registry so several instances can coexist in
// one process (tests, embedded use).
type Collector struct {
	reg *prometheus.Registry

	submitted  *prometheus.CounterVec
	finished   *prometheus.CounterVec
	stored     *prometheus.CounterVec
	backoffs   *prometheus.CounterVec
	backoffSec *prometheus.GaugeVec
	duration   *prometheus.HistogramVec
	queueDelay prometheus.Histogram
	state      *prometheus.GaugeVec
}

func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Jobs accepted by the runner.",
		}, []string{"category"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Jobs that finished, by outcome.",
		}, []string{"category", "outcome"}),
		stored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "URLs handed to the result sink.",
		}, []string{"category"}),
		backoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "category_backoffs_total",
			Help:      "Failures that pushed a category into backoff.",
		}, []string{"category"}),
		backoffSec: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "category_backoff_seconds",
			Help:      "Most recent backoff wait per category.",
		}, []string{"category"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Task execution time.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"category"}),
		queueDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_queue_delay_seconds",
			Help:      "Time between submit and start.",
			Buckets:   prometheus.DefBuckets,
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "project_state",
			Help:      "1 for the current project state, 0 otherwise.",
		}, []string{"state"}),
	}
	c.reg.MustRegister(
		c.submitted, c.finished, c.stored, c.backoffs, c.backoffSec,
		c.duration, c.queueDelay, c.state,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.setState(project.StateIdle.String())
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// WatchRunner exports the runner's live counts as gauges.
func (c *Collector) WatchRunner(snap func() runner.Snapshot) {
	gauge := func(name, help string, fn func(runner.Snapshot) int) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(fn(snap())) })
	}
	c.reg.MustRegister(
		gauge("capacity", "Maximum concurrent tasks.", func(s runner.Snapshot) int { return s.Capacity }),
		gauge("running", "Tasks executing now.", func(s runner.Snapshot) int { return s.Running }),
		gauge("queued", "Jobs waiting for a worker.", func(s runner.Snapshot) int { return s.Queued }),
		gauge("pending_completions", "Completions not yet drained.", func(s runner.Snapshot) int { return s.Pending }),
	)
}

// Observe updates the metrics from one bus event.
func (c *Collector) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.JobSubmitted:
		if ev, ok := e.Data.(runner.JobEvent); ok {
			c.submitted.WithLabelValues(ev.Category).Inc()
		}
	case eventbus.JobStarted:
		if ev, ok := e.Data.(runner.JobEvent); ok {
			c.queueDelay.Observe(ev.QueueDelay.Seconds())
		}
	case eventbus.JobFinished, eventbus.JobFailed:
		ev, ok := e.Data.(runner.JobEvent)
		if !ok {
			return
		}
		outcome := "ok"
		if e.Type == eventbus.JobFailed {
			outcome = "error"
		}
		c.finished.WithLabelValues(ev.Category, outcome).Inc()
		c.duration.WithLabelValues(ev.Category).Observe(ev.Duration.Seconds())
	case eventbus.ResultStored:
		if ev, ok := e.Data.(runner.JobEvent); ok {
			c.stored.WithLabelValues(ev.Category).Add(float64(ev.Results))
		}
	case eventbus.CategoryBackoff:
		if ev, ok := e.Data.(project.BackoffEvent); ok {
			c.backoffs.WithLabelValues(ev.Category).Inc()
			c.backoffSec.WithLabelValues(ev.Category).Set(ev.Wait.Seconds())
		}
	case eventbus.ProjectState:
		if ev, ok := e.Data.(project.StateEvent); ok {
			c.setState(ev.To)
		}
	}
}

func (c *Collector) setState(cur string) {
	for s := project.StateIdle; s <= project.StateTerminated; s++ {
		v := 0.0
		if s.String() == cur {
			v = 1
		}
		c.state.WithLabelValues(s.String()).Set(v)
	}
}

// Consume feeds bus events into Observe until ctx is done.
func (c *Collector) Consume(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			c.Observe(e)
		}
	}
}
