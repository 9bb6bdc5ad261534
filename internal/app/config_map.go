package app

import (
	"fmt"
	"strings"

	"furlat/internal/config"
	"furlat/internal/observability"
	"furlat/internal/report"
	"furlat/internal/storage"
	logx "furlat/pkg/logx"
)

// DefaultWordList is used when neither word list is configured.
const DefaultWordList = "/usr/share/dict/words"

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Telegram.ChatID,
			ThreadID:   firstNonZero(cfg.Logging.Telegram.ThreadID, cfg.Telegram.ThreadID),
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorage(cfg *config.Config, d config.Durations) (storage.Config, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	path := strings.TrimSpace(cfg.Storage.Path)
	switch driver {
	case "", "none":
		return storage.Config{}, nil
	case "file":
		if path == "" {
			path = "."
		}
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
		}
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", cfg.Storage.Driver)
	}
	return storage.Config{Driver: driver, Path: path, Domain: cfg.Project.Domain, BusyTimeout: d.BusyTimeout}, nil
}

func mapHTTP(cfg *config.Config, d config.Durations) observability.Config {
	m := cfg.Metrics
	return observability.Config{
		Enabled:       m.Enabled,
		Addr:          m.Addr,
		Token:         m.Token,
		AllowInsecure: m.AllowInsecure,
		Pprof:         m.Pprof,
		PprofPrefix:   m.PprofPrefix,
		ReadTimeout:   d.ReadTimeout,
		WriteTimeout:  d.WriteTimeout,
		IdleTimeout:   d.IdleTimeout,
	}
}

func mapReport(cfg *config.Config) report.Config {
	rc := report.Config{Schedule: cfg.Report.Schedule}
	if cfg.Report.Telegram {
		rc.ChatID = cfg.Telegram.ChatID
		rc.ThreadID = cfg.Telegram.ThreadID
	}
	return rc
}

func firstNonZero(v ...int) int {
	for _, x := range v {
		if x != 0 {
			return x
		}
	}
	return 0
}
