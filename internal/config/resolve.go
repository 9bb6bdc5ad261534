package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Durations holds the parsed duration fields of a Config. Zero values mean
// "use the component default".
type Durations struct {
	SubmitTimeout  time.Duration
	DrainPoll      time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	HTTPTimeout    time.Duration
	BusyTimeout    time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// ParseDurations parses every duration field, naming the offending key on
// error.
func (c *Config) ParseDurations() (Durations, error) {
	var d Durations
	fields := []struct {
		path string
		raw  string
		dst  *time.Duration
	}{
		{"project.submit_timeout", c.Project.SubmitTimeout, &d.SubmitTimeout},
		{"project.drain_poll", c.Project.DrainPoll, &d.DrainPoll},
		{"project.backoff_initial", c.Project.BackoffInitial, &d.BackoffInitial},
		{"project.backoff_max", c.Project.BackoffMax, &d.BackoffMax},
		{"project.http.timeout", c.Project.HTTP.Timeout, &d.HTTPTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout, &d.BusyTimeout},
		{"metrics.read_timeout", c.Metrics.ReadTimeout, &d.ReadTimeout},
		{"metrics.write_timeout", c.Metrics.WriteTimeout, &d.WriteTimeout},
		{"metrics.idle_timeout", c.Metrics.IdleTimeout, &d.IdleTimeout},
	}
	for _, f := range fields {
		v, err := ParseDurationField(f.path, f.raw)
		if err != nil {
			return Durations{}, err
		}
		*f.dst = v
	}
	if d.BackoffInitial > 0 && d.BackoffMax > 0 && d.BackoffMax < d.BackoffInitial {
		return Durations{}, errors.New("project.backoff_max must be >= project.backoff_initial")
	}
	return d, nil
}

// Validate checks a config for a find run. It does not know the source
// names; those are checked when the sources are registered.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Project.Domain) == "" {
		errs = append(errs, errors.New("project.domain required"))
	}
	if c.Project.WordList != "" && c.Project.WikiWordList != "" {
		errs = append(errs, errors.New("project.word_list and project.wiki_word_list are exclusive"))
	}
	if c.Project.Workers < 0 {
		errs = append(errs, fmt.Errorf("project.workers must be >= 0"))
	}
	if c.Project.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("project.rate_per_second must be >= 0"))
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "none", "file", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q unsupported (file, sqlite, none)", c.Storage.Driver))
	}
	if c.Logging.Telegram.Enabled && c.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("logging.telegram needs telegram.chat_id"))
	}
	if (c.Logging.Telegram.Enabled || c.Report.Telegram) && strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token required for telegram output"))
	}
	if _, err := c.ParseDurations(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseDurationField parses raw as a non-negative Go duration. Empty is 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}
