package config

// Config is the on-disk configuration (JSON, or YAML by file extension).
// Durations are Go duration strings.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Project  ProjectConfig  `json:"project"`
	Storage  StorageConfig  `json:"storage"`
	Metrics  MetricsConfig  `json:"metrics"`
	Report   ReportConfig   `json:"report"`
	Telegram TelegramConfig `json:"telegram"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram mirrors WARN+ log lines into telegram.chat_id.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// ProjectConfig drives one find run.
//
// Defaults:
//   - sources: google, bing, yahoo
//   - workers: 5
//   - submit_timeout, drain_poll: "250ms"
//   - backoff_initial: "1s", backoff_max: "1h"
//   - rate_per_second: 0.2
//   - stop_file: "STOP"
type ProjectConfig struct {
	Domain       string   `json:"domain"`
	AnyShortURL  bool     `json:"any_short_url,omitempty"`
	Sources      []string `json:"sources,omitempty"`
	WordList     string   `json:"word_list,omitempty"`
	WikiWordList string   `json:"wiki_word_list,omitempty"`
	Workers      int      `json:"workers,omitempty"`
	MaxPages     int      `json:"max_pages,omitempty"`

	SubmitTimeout  string `json:"submit_timeout,omitempty"`
	DrainPoll      string `json:"drain_poll,omitempty"`
	BackoffInitial string `json:"backoff_initial,omitempty"`
	BackoffMax     string `json:"backoff_max,omitempty"`

	RatePerSecond float64 `json:"rate_per_second,omitempty"`
	StopFile      string  `json:"stop_file,omitempty"`

	HTTP SessionConfig `json:"http,omitempty"`
}

// SessionConfig tunes the per-source HTTP sessions.
type SessionConfig struct {
	Timeout           string  `json:"timeout,omitempty"`
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`
	UserAgent         string  `json:"user_agent,omitempty"`
}

// StorageConfig selects the result store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./furlat.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// MetricsConfig controls the /metrics, /healthz and pprof endpoint. Binding
// to a non-loopback address needs a token or allow_insecure.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	PprofPrefix   string `json:"pprof_prefix,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// ReportConfig schedules the status report; an empty schedule disables it.
type ReportConfig struct {
	Schedule string `json:"schedule,omitempty"`
	Telegram bool   `json:"telegram,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// Default is the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Storage: StorageConfig{Driver: "file", Path: "."},
	}
}
