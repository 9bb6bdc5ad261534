package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"furlat/internal/app"
	"furlat/internal/config"
	logx "furlat/pkg/logx"
)

type findOptions struct {
	configPath   string
	verbose      int
	wordList     string
	wikiWordList string
	sources      []string
	anyShortURL  bool
	workers      int
	rate         float64
	metricsAddr  string
	storage      string
	storagePath  string
}

func buildFindCommand() *cobra.Command { return newFindCommand(new(findOptions)) }

func newFindCommand(o *findOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find <domain>",
		Short: "Launch a find URL project",
		Long: `Search the configured sources for links of the given shortener domain.
Create the stop file (default ./STOP) to finish the run gracefully.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgm, err := o.load(cmd.Flags(), args[0])
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			a, err := app.New(ctx, cfg, cfgm)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.configPath, "config", "c", "", "config file (json or yaml)")
	f.CountVarP(&o.verbose, "verbose", "v", "more output; repeat for debug")
	f.StringVar(&o.wordList, "word-list", "", "line separated words (default "+app.DefaultWordList+")")
	f.StringVar(&o.wikiWordList, "wiki-word-list", "", "article titles from a MediaWiki dump")
	f.StringArrayVar(&o.sources, "source", nil, "use only the named source; repeatable")
	f.BoolVar(&o.anyShortURL, "any-short-url", false, "collect any host.tld/code link")
	f.IntVar(&o.workers, "workers", 0, "concurrent jobs (default 5)")
	f.Float64Var(&o.rate, "rate", 0, "mean page fetches per second per job")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "serve /metrics on this address")
	f.StringVar(&o.storage, "storage", "", "result store: file, sqlite or none")
	f.StringVar(&o.storagePath, "storage-path", "", "result directory or database file")
	return cmd
}

// load reads the config file, if any, and applies the flags that were set.
func (o *findOptions) load(flags *pflag.FlagSet, domain string) (*config.Config, *config.Manager, error) {
	cfg := config.Default()
	var cfgm *config.Manager
	if o.configPath != "" {
		cfgm = config.NewManager(o.configPath, logx.NewConsole("warn"))
		cfgm.SetValidator(func(c *config.Config) error {
			c.Project.Domain = domain
			return c.Validate()
		})
		loaded, err := cfgm.Load()
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}
	cfg.Project.Domain = domain

	switch {
	case o.verbose == 1:
		cfg.Logging.Level, cfg.Logging.Console = "info", true
	case o.verbose > 1:
		cfg.Logging.Level, cfg.Logging.Console = "debug", true
	}
	if flags.Changed("word-list") {
		cfg.Project.WordList, cfg.Project.WikiWordList = o.wordList, ""
	}
	if flags.Changed("wiki-word-list") {
		cfg.Project.WikiWordList, cfg.Project.WordList = o.wikiWordList, ""
	}
	if flags.Changed("source") {
		cfg.Project.Sources = o.sources
	}
	if flags.Changed("any-short-url") {
		cfg.Project.AnyShortURL = o.anyShortURL
	}
	if flags.Changed("workers") {
		cfg.Project.Workers = o.workers
	}
	if flags.Changed("rate") {
		cfg.Project.RatePerSecond = o.rate
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Enabled = o.metricsAddr != ""
		cfg.Metrics.Addr = o.metricsAddr
	}
	if flags.Changed("storage") {
		cfg.Storage.Driver = o.storage
	}
	if flags.Changed("storage-path") {
		cfg.Storage.Path = o.storagePath
	}
	return cfg, cfgm, nil
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return BuildCLI().ExecuteContext(ctx)
}
