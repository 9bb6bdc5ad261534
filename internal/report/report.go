// Package report emits a periodic status summary of a running project to
// the log and, when configured, to a Telegram chat.
package report

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"furlat/internal/project"
	"furlat/internal/task/limit"
	"furlat/internal/task/runner"
	kit "furlat/internal/transport"
	logx "furlat/pkg/logx"
)

// Status is one point-in-time summary.
type Status struct {
	Time     time.Time
	RunID    string
	Project  project.Stats
	Runner   runner.Snapshot
	InFlight []limit.CategoryCount
	Backoff  []limit.CategoryBackoff
}

// Sources gathers the snapshots for a Status. Nil funcs are skipped.
type Sources struct {
	RunID    string
	Project  func() project.Stats
	Runner   func() runner.Snapshot
	InFlight func() []limit.CategoryCount
	Backoff  func() []limit.CategoryBackoff
	Now      func() time.Time
}

func (s Sources) collect() Status {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	st := Status{Time: now(), RunID: s.RunID}
	if s.Project != nil {
		st.Project = s.Project()
	}
	if s.Runner != nil {
		st.Runner = s.Runner()
	}
	if s.InFlight != nil {
		st.InFlight = s.InFlight()
	}
	if s.Backoff != nil {
		st.Backoff = s.Backoff()
	}
	return st
}

// Config selects the schedule and optional chat target.
type Config struct {
	Schedule string
	ChatID   int64
	ThreadID int
}

type Reporter struct {
	src    Sources
	log    logx.Logger
	sender kit.Sender
	target kit.ChatTarget
	sched  cron.Schedule

	mu sync.Mutex
	c  *cron.Cron
}

// New validates the schedule. sender may be nil; so may a zero ChatID.
func New(cfg Config, src Sources, sender kit.Sender, log logx.Logger) (*Reporter, error) {
	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reporter{
		src:    src,
		log:    log.With(logx.String("comp", "report")),
		sender: sender,
		target: kit.ChatTarget{ChatID: cfg.ChatID, ThreadID: cfg.ThreadID},
		sched:  sched,
	}, nil
}

// Start runs Emit on the schedule until Stop. It is idempotent.
func (r *Reporter) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		return
	}
	r.c = cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	r.c.Schedule(r.sched, cron.FuncJob(func() { r.Emit(ctx) }))
	r.c.Start()
}

// Stop waits for a running Emit to return or ctx to end.
func (r *Reporter) Stop(ctx context.Context) {
	r.mu.Lock()
	c := r.c
	r.c = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Emit logs one status line and forwards the rendered report to the chat.
func (r *Reporter) Emit(ctx context.Context) Status {
	st := r.src.collect()
	r.log.Info("status",
		logx.String("run_id", st.RunID),
		logx.String("state", st.Project.State.String()),
		logx.Uint64("submitted", st.Project.Submitted),
		logx.Uint64("succeeded", st.Project.Succeeded),
		logx.Uint64("failed", st.Project.Failed),
		logx.Uint64("results", st.Project.Results),
		logx.Int("running", st.Runner.Running),
		logx.Int("queued", st.Runner.Queued),
	)
	if r.sender != nil && r.target.ChatID != 0 {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if _, err := r.sender.SendText(sctx, r.target, Render(st), &kit.SendOptions{DisablePreview: true}); err != nil {
			r.log.Warn("status send failed", logx.Err(err))
		}
	}
	return st
}

// Render formats a Status as plain text.
func Render(st Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "furlat status %s\n", st.Time.UTC().Format(time.RFC3339))
	if st.RunID != "" {
		fmt.Fprintf(&b, "run: %s\n", st.RunID)
	}
	p := st.Project
	fmt.Fprintf(&b, "state: %s", p.State)
	if !p.StartedAt.IsZero() {
		fmt.Fprintf(&b, " (up %s)", st.Time.Sub(p.StartedAt).Truncate(time.Second))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "jobs: %d submitted, %d ok, %d failed, %d saturated\n", p.Submitted, p.Succeeded, p.Failed, p.Saturated)
	fmt.Fprintf(&b, "results: %d (sink errors %d)\n", p.Results, p.SinkErrs)
	fmt.Fprintf(&b, "runner: %d/%d running, %d queued\n", st.Runner.Running, st.Runner.Capacity, st.Runner.Queued)
	for _, c := range st.InFlight {
		if c.InFlight > 0 {
			fmt.Fprintf(&b, "- %s in flight\n", c.Category)
		}
	}
	for _, c := range st.Backoff {
		if c.EligibleAt.After(st.Time) {
			fmt.Fprintf(&b, "- %s backing off for %s\n", c.Category, c.EligibleAt.Sub(st.Time).Truncate(time.Second))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
