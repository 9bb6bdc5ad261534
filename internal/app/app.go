// Package app wires a find run: config, logging, storage, sources, the
// project loop and the operator surfaces around it.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"furlat/internal/config"
	"furlat/internal/eventbus"
	"furlat/internal/job"
	"furlat/internal/metrics"
	"furlat/internal/observability"
	"furlat/internal/project"
	"furlat/internal/report"
	rtsup "furlat/internal/runtime/supervisor"
	"furlat/internal/scrape"
	"furlat/internal/source"
	"furlat/internal/stopfile"
	"furlat/internal/storage"
	"furlat/internal/task/limit"
	"furlat/internal/task/runner"
	kit "furlat/internal/transport"
	"furlat/internal/transport/telegram"
	"furlat/internal/word"
	logx "furlat/pkg/logx"
	"furlat/pkg/systemd"
)

const shutdownTimeout = 10 * time.Second

// App owns every component of one find run.
type App struct {
	cfg   *config.Config
	cfgm  *config.Manager
	runID string

	logs *logx.Service
	log  logx.Logger
	bus  eventbus.Bus

	store   storage.Store
	pool    *source.SessionPool
	runner  *runner.Runner
	adm     *limit.Admission
	clock   *limit.BackoffClock
	proj    *project.Project
	stop    *stopfile.Watcher
	metrics *metrics.Collector
	httpd   *observability.Service
	report  *report.Reporter
	notify  *systemd.Notifier
}

// New builds the app from cfg. cfgm is optional; with it the config file is
// watched and logging and HTTP changes are applied live.
func New(ctx context.Context, cfg *config.Config, cfgm *config.Manager) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d, err := cfg.ParseDurations()
	if err != nil {
		return nil, err
	}

	var sender kit.Sender
	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		tg, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, Timeout: d.HTTPTimeout})
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sender = tg
	}

	logs, log := logx.New(mapLogging(cfg), sender)
	a := &App{
		cfg:   cfg,
		cfgm:  cfgm,
		runID: uuid.NewString(),
		logs:  logs,
		log:   log,
		bus:   eventbus.New(),
	}
	if err := a.build(ctx, cfg, d, sender); err != nil {
		if a.pool != nil {
			_ = a.pool.Close()
		}
		a.closeStore()
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config, d config.Durations, sender kit.Sender) error {
	started := time.Now()
	pc := cfg.Project

	scfg, err := mapStorage(cfg, d)
	if err != nil {
		return err
	}
	if a.store, err = storage.Open(scfg, a.log); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	var sink project.Sink
	if a.store != nil {
		if err := a.store.BeginRun(ctx, storage.Run{ID: a.runID, Domain: pc.Domain, StartedAt: started}); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		sink = storage.NewSink(a.store, a.runID, a.log)
	}

	names := pc.Sources
	if len(names) == 0 {
		names = source.DefaultNames()
	}
	list, err := wordList(pc, names)
	if err != nil {
		return err
	}
	params := word.QueryBuilder{Queue: word.NewQueue(list, 0)}

	pattern := scrape.ShortcodePattern(pc.Domain)
	if pc.AnyShortURL {
		pattern = scrape.AnyShortURLPattern(pc.Domain)
	}

	a.pool = source.NewSessionPool(source.PoolConfig{
		Timeout:           d.HTTPTimeout,
		RequestsPerSecond: pc.HTTP.RequestsPerSecond,
		UserAgent:         pc.HTTP.UserAgent,
	}, a.log)
	reg := project.NewRegistry()
	if err := source.Register(reg, names, source.Options{
		Pattern:  pattern,
		Pool:     a.pool,
		Pacer:    limit.NewRateLimiter(pc.RatePerSecond),
		MaxPages: pc.MaxPages,
		Log:      a.log,
	}); err != nil {
		return err
	}

	a.runner = runner.New(runner.Config{Capacity: pc.Workers}, a.log, a.bus)
	a.adm = limit.NewAdmission()
	a.clock = limit.NewBackoffClock(d.BackoffInitial, d.BackoffMax)
	a.stop = stopfile.New(pc.StopFile, started, a.log)

	cats := make([]job.Category, 0, len(names))
	for _, n := range names {
		cats = append(cats, job.Category(n))
	}
	a.proj, err = project.New(project.Config{
		Name:             pc.Domain,
		Categories:       cats,
		SubmitTimeout:    d.SubmitTimeout,
		DrainPollTimeout: d.DrainPoll,
	}, project.Deps{
		Registry:  reg,
		Runner:    a.runner,
		Admission: a.adm,
		Clock:     a.clock,
		Params:    params,
		Sink:      sink,
		Stop:      a.stop,
		Resources: a.pool,
		Log:       a.log,
		Bus:       a.bus,
	})
	if err != nil {
		return err
	}

	a.metrics = metrics.New()
	a.metrics.WatchRunner(a.runner.Snapshot)
	a.httpd = observability.New(mapHTTP(cfg, d), a.log, a.metrics.Handler(), a.healthy)

	if strings.TrimSpace(cfg.Report.Schedule) != "" {
		a.report, err = report.New(mapReport(cfg), report.Sources{
			RunID:    a.runID,
			Project:  a.proj.Stats,
			Runner:   a.runner.Snapshot,
			InFlight: a.adm.Snapshot,
			Backoff:  a.clock.Snapshot,
		}, sender, a.log)
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
	}
	a.notify = systemd.New(a.log)

	a.log.Info("run prepared",
		logx.String("run_id", a.runID),
		logx.String("domain", pc.Domain),
		logx.String("sources", strings.Join(names, ",")),
		logx.Int("workers", a.runner.Capacity()),
		logx.String("stop_file", a.stop.Path()),
	)
	return nil
}

// wordList picks the keyword source. A run of only the offline test source
// needs no dictionary.
func wordList(pc config.ProjectConfig, names []string) (word.List, error) {
	switch {
	case pc.WikiWordList != "":
		return word.NewWikiTitles(pc.WikiWordList)
	case pc.WordList != "":
		return word.NewLineList(pc.WordList)
	}
	offline := true
	for _, n := range names {
		if job.Category(n) != source.TestName {
			offline = false
			break
		}
	}
	if offline {
		return word.Static{Word: string(source.TestName)}, nil
	}
	return word.NewLineList(DefaultWordList)
}

func (a *App) RunID() string { return a.runID }

func (a *App) Logger() logx.Logger { return a.log }

// Project exposes the loop, mostly for tests.
func (a *App) Project() *project.Project { return a.proj }

func (a *App) healthy() error {
	if a.proj.State() == project.StateTerminated {
		return errors.New("project terminated")
	}
	return nil
}

// Run starts the side services, runs the project loop until it stops and
// then shuts everything down. It returns the loop's error.
func (a *App) Run(ctx context.Context) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "supervisor"))))

	sup.Go("stopfile", a.stop.Run)
	sup.Go("metrics", func(c context.Context) error { return a.metrics.Consume(c, a.bus) })
	sup.Go("watchdog", func(c context.Context) error { return a.notify.Watchdog(c, a.healthy) })
	a.httpd.Start(sup.Context())
	if a.report != nil {
		a.report.Start(sup.Context())
	}
	a.startEventLog(sup)
	if a.cfgm != nil {
		sup.Go("config.watch", a.cfgm.Watch)
		a.startReload(sup)
	}

	a.notify.Ready()
	a.notify.Status("searching %s", a.cfg.Project.Domain)
	runErr := a.proj.Run(ctx)
	a.notify.Stopping()

	st := a.proj.Stats()
	a.log.Info("run finished",
		logx.String("run_id", a.runID),
		logx.Uint64("succeeded", st.Succeeded),
		logx.Uint64("failed", st.Failed),
		logx.Uint64("results", st.Results),
		logx.Err(runErr),
	)

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sup.Stop(sctx); err != nil {
		a.log.Warn("side service error", logx.Err(err))
	}
	if a.report != nil {
		a.report.Stop(sctx)
	}
	a.httpd.Stop(sctx)
	a.closeStore()
	_ = a.logs.Close()
	return runErr
}

func (a *App) closeStore() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
	a.store = nil
}

// Stop asks the project loop to finish; Run then returns.
func (a *App) Stop() {
	if a.proj != nil {
		a.proj.Stop()
	}
}

func (a *App) startEventLog(sup *rtsup.Supervisor) {
	events, unsub := a.bus.Subscribe(128)
	sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})
}

// startReload applies logging and HTTP changes from the watched config.
// Anything else only takes effect on the next run.
func (a *App) startReload(sup *rtsup.Supervisor) {
	sub := a.cfgm.Subscribe(8)
	sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfg
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				last = a.apply(c, last, next)
			}
		}
	})
}

func (a *App) apply(ctx context.Context, last, next *config.Config) *config.Config {
	sections, attrs := config.SummarizeChange(last, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return next
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config change summary", fields...)

	d, err := next.ParseDurations()
	if err != nil {
		a.log.Warn("config reload ignored", logx.Err(err))
		return last
	}
	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLogging(next))
		case "metrics":
			a.httpd.Reconfigure(ctx, mapHTTP(next, d))
		default:
			a.log.Warn("config section changed; restart required", logx.String("section", s))
		}
	}
	return next
}
