package report

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"furlat/internal/job"
	"furlat/internal/project"
	"furlat/internal/task/limit"
	"furlat/internal/task/runner"
	kit "furlat/internal/transport"
	logx "furlat/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 5, 1, 10, 7, 0, 0, time.UTC)
	cases := []struct {
		in   string
		next time.Time
		err  bool
	}{
		{in: "*/15 * * * *", next: time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC)},
		{in: "@hourly", next: time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)},
		{in: "cron:0 12 * * *", next: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{in: "10m", next: base.Add(10 * time.Minute)},
		{in: "01:30", next: base.Add(90 * time.Minute)},
		{in: "every:45s", next: base.Add(45 * time.Second)},
		{in: "", err: true},
		{in: "cron:", err: true},
		{in: "0:00", err: true},
		{in: "01:75", err: true},
		{in: "-5m", err: true},
		{in: "soon", err: true},
		{in: "* * *", err: true},
	}
	for _, tc := range cases {
		sched, err := ParseSchedule(tc.in)
		if tc.err {
			if err == nil {
				t.Fatalf("ParseSchedule(%q) should fail", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseSchedule(%q): %v", tc.in, err)
		}
		if got := sched.Next(base); !got.Equal(tc.next) {
			t.Fatalf("ParseSchedule(%q).Next = %v, want %v", tc.in, got, tc.next)
		}
	}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	to   []kit.ChatTarget
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	f.to = append(f.to, to)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func testSources(now time.Time) Sources {
	return Sources{
		RunID: "run-1",
		Now:   func() time.Time { return now },
		Project: func() project.Stats {
			return project.Stats{State: project.StateRunning, Submitted: 7, Succeeded: 5, Failed: 1, Results: 12, StartedAt: now.Add(-90 * time.Second)}
		},
		Runner: func() runner.Snapshot { return runner.Snapshot{Capacity: 5, Running: 2, Queued: 1} },
		InFlight: func() []limit.CategoryCount {
			return []limit.CategoryCount{{Category: "bing", InFlight: 1}, {Category: "google"}}
		},
		Backoff: func() []limit.CategoryBackoff {
			return []limit.CategoryBackoff{
				{Category: job.Category("yahoo"), Interval: 8 * time.Second, EligibleAt: now.Add(4 * time.Second)},
				{Category: job.Category("google"), EligibleAt: now.Add(-time.Second)},
			}
		},
	}
}

func TestRender(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	got := Render(testSources(now).collect())
	want := strings.Join([]string{
		"furlat status 2024-05-01T10:00:00Z",
		"run: run-1",
		"state: running (up 1m30s)",
		"jobs: 7 submitted, 5 ok, 1 failed, 0 saturated",
		"results: 12 (sink errors 0)",
		"runner: 2/5 running, 1 queued",
		"- bing in flight",
		"- yahoo backing off for 4s",
	}, "\n")
	if got != want {
		t.Fatalf("Render:\n%s\nwant:\n%s", got, want)
	}
}

func TestEmitSends(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	fs := &fakeSender{}
	r, err := New(Config{Schedule: "1h", ChatID: 42, ThreadID: 3}, testSources(now), fs, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	st := r.Emit(context.Background())
	if st.Project.Results != 12 {
		t.Fatalf("status = %+v", st)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.sent) != 1 || fs.to[0] != (kit.ChatTarget{ChatID: 42, ThreadID: 3}) {
		t.Fatalf("sent %d to %v", len(fs.sent), fs.to)
	}

	quiet, _ := New(Config{Schedule: "1h"}, testSources(now), fs, logx.Nop())
	quiet.Emit(context.Background())
	if len(fs.sent) != 1 {
		t.Fatal("zero chat id should not send")
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Schedule: "nope"}, Sources{}, nil, logx.Nop()); err == nil {
		t.Fatal("bad schedule should fail")
	}
	r, err := New(Config{Schedule: "@every 1h"}, Sources{}, nil, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	r.Start(context.Background())
	r.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Stop(ctx)
	r.Stop(ctx)
	if ctx.Err() != nil {
		t.Fatal("Stop should not wait for the timeout")
	}
}
