package source

import (
	"fmt"

	"furlat/internal/job"
	"furlat/internal/project"
	"furlat/internal/scrape"
	"furlat/internal/task/limit"
	logx "furlat/pkg/logx"
)

// Options are shared by every task built from a Register call.
type Options struct {
	Pattern  scrape.Pattern
	Pool     *SessionPool
	Pacer    limit.RateLimiter
	MaxPages int
	Log      logx.Logger
	// Engines overrides the built-in engine table, mostly for tests.
	Engines map[job.Category]Engine
}

// Register adds a constructor for each named source.
func Register(reg *project.Registry, names []string, opt Options) error {
	if opt.Pattern == nil {
		return fmt.Errorf("source: nil pattern")
	}
	engines := opt.Engines
	if engines == nil {
		engines = Engines()
	}
	for _, n := range names {
		c := job.Category(n)
		if c == TestName {
			if err := reg.Register(c, offline(opt)); err != nil {
				return err
			}
			continue
		}
		e, ok := engines[c]
		if !ok {
			return fmt.Errorf("source: unknown source %q", n)
		}
		if opt.Pool == nil {
			return fmt.Errorf("source: %s needs a session pool", n)
		}
		if err := reg.Register(c, search(e, opt)); err != nil {
			return err
		}
	}
	return nil
}

func search(e Engine, opt Options) project.Constructor {
	log := opt.Log.With(logx.String("source", string(e.Name)))
	return func(p job.Params) (job.Task, error) {
		return &SearchTask{
			Engine:   e,
			Pool:     opt.Pool,
			Pattern:  opt.Pattern,
			Keywords: p.Query,
			Pacer:    opt.Pacer,
			MaxPages: opt.MaxPages,
			Log:      log,
		}, nil
	}
}

func offline(opt Options) project.Constructor {
	return func(p job.Params) (job.Task, error) {
		return &OfflineTask{Pattern: opt.Pattern, Keywords: p.Query}, nil
	}
}
