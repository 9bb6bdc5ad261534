package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"furlat/internal/eventbus"
	"furlat/internal/project"
	"furlat/internal/task/runner"
)

func value(t *testing.T, c *Collector, name string, labels map[string]string) float64 {
	t.Helper()
	v, ok := lookup(t, c, name, labels)
	if !ok {
		t.Fatalf("metric %s%v not found", name, labels)
	}
	return v
}

// lookup returns the first sample of name whose labels include every pair
// in labels. Histograms report their sample count.
func lookup(t *testing.T, c *Collector, name string, labels map[string]string) (float64, bool) {
	t.Helper()
	mfs, err := c.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue next
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue(), true
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue(), true
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount()), true
			}
		}
	}
	return 0, false
}

func TestObserve(t *testing.T) {
	t.Parallel()
	c := New()
	ev := runner.JobEvent{Category: "google", Duration: time.Second, Results: 3}

	c.Observe(eventbus.Event{Type: eventbus.JobSubmitted, Data: ev})
	c.Observe(eventbus.Event{Type: eventbus.JobSubmitted, Data: ev})
	c.Observe(eventbus.Event{Type: eventbus.JobFinished, Data: ev})
	c.Observe(eventbus.Event{Type: eventbus.JobFailed, Data: ev})
	c.Observe(eventbus.Event{Type: eventbus.ResultStored, Data: ev})
	c.Observe(eventbus.Event{Type: eventbus.CategoryBackoff, Data: project.BackoffEvent{Category: "google", Wait: 4 * time.Second}})
	c.Observe(eventbus.Event{Type: eventbus.ProjectState, Data: project.StateEvent{From: "idle", To: "running"}})
	c.Observe(eventbus.Event{Type: "unrelated", Data: 42})

	cases := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"furlat_jobs_submitted_total", map[string]string{"category": "google"}, 2},
		{"furlat_jobs_finished_total", map[string]string{"category": "google", "outcome": "ok"}, 1},
		{"furlat_jobs_finished_total", map[string]string{"category": "google", "outcome": "error"}, 1},
		{"furlat_job_duration_seconds", map[string]string{"category": "google"}, 2},
		{"furlat_results_total", map[string]string{"category": "google"}, 3},
		{"furlat_category_backoffs_total", map[string]string{"category": "google"}, 1},
		{"furlat_category_backoff_seconds", map[string]string{"category": "google"}, 4},
		{"furlat_project_state", map[string]string{"state": "running"}, 1},
		{"furlat_project_state", map[string]string{"state": "idle"}, 0},
	}
	for _, tc := range cases {
		if got := value(t, c, tc.name, tc.labels); got != tc.want {
			t.Fatalf("%s%v = %v, want %v", tc.name, tc.labels, got, tc.want)
		}
	}
}

func TestWatchRunnerAndHandler(t *testing.T) {
	t.Parallel()
	c := New()
	c.WatchRunner(func() runner.Snapshot { return runner.Snapshot{Capacity: 5, Running: 2, Queued: 1} })

	if got := value(t, c, "furlat_runner_running", nil); got != 2 {
		t.Fatalf("running = %v", got)
	}

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"furlat_runner_capacity 5", "furlat_runner_queued 1", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("scrape output missing %q", want)
		}
	}
}

func TestConsume(t *testing.T) {
	t.Parallel()
	c := New()
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Consume(ctx, bus)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if v, _ := lookup(t, c, "furlat_jobs_submitted_total", nil); v > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("event not consumed")
		}
		bus.Publish(eventbus.Event{Type: eventbus.JobSubmitted, Data: runner.JobEvent{Category: "bing"}})
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
}
