package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "furlat/pkg/logx"
)

const sampleJSON = `{
  "logging": {"level": "debug", "console": false},
  "project": {
    "domain": "bit.ly",
    "sources": ["google", "bing"],
    "workers": 3,
    "submit_timeout": "100ms",
    "backoff_initial": "2s",
    "backoff_max": "10m",
    "http": {"timeout": "20s"}
  },
  "storage": {"driver": "sqlite", "path": "./out.db"}
}`

const sampleYAML = `
logging:
  level: debug
  console: false
project:
  domain: bit.ly
  sources: [google, bing]
  workers: 3
  submit_timeout: 100ms
  backoff_initial: 2s
  backoff_max: 10m
  http:
    timeout: 20s
storage:
  driver: sqlite
  path: ./out.db
`

func TestDecodeFormats(t *testing.T) {
	t.Parallel()
	for name, body := range map[string]string{"c.json": sampleJSON, "c.yaml": sampleYAML, "c.YML": sampleYAML} {
		cfg, err := Decode(name, []byte(body))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if cfg.Project.Domain != "bit.ly" || cfg.Project.Workers != 3 || len(cfg.Project.Sources) != 2 {
			t.Fatalf("%s: project = %+v", name, cfg.Project)
		}
		if cfg.Logging.Console || cfg.Logging.Level != "debug" {
			t.Fatalf("%s: logging = %+v", name, cfg.Logging)
		}
		d, err := cfg.ParseDurations()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if d.SubmitTimeout != 100*time.Millisecond || d.BackoffMax != 10*time.Minute || d.HTTPTimeout != 20*time.Second {
			t.Fatalf("%s: durations = %+v", name, d)
		}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
}

func TestDecodeDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("c.json", []byte(`{"project": {"domain": "goo.gl"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Logging.Console || cfg.Storage.Driver != "file" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"unknown key":   `{"project": {"domian": "x"}}`,
		"trailing data": `{} {}`,
		"bad yaml":      "project: [",
	}
	for name, body := range cases {
		file := "c.json"
		if name == "bad yaml" {
			file = "c.yaml"
		}
		if _, err := Decode(file, []byte(body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"missing domain", func(c *Config) { c.Project.Domain = "" }, "project.domain"},
		{"both word lists", func(c *Config) { c.Project.WordList, c.Project.WikiWordList = "a", "b" }, "exclusive"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "redis" }, "storage.driver"},
		{"bad duration", func(c *Config) { c.Project.DrainPoll = "soon" }, "project.drain_poll"},
		{"negative duration", func(c *Config) { c.Storage.BusyTimeout = "-1s" }, "storage.busy_timeout"},
		{"backoff order", func(c *Config) { c.Project.BackoffInitial, c.Project.BackoffMax = "1m", "1s" }, "backoff_max"},
		{"telegram log without chat", func(c *Config) { c.Logging.Telegram.Enabled = true; c.Telegram.Token = "t" }, "chat_id"},
		{"telegram report without token", func(c *Config) { c.Report.Telegram = true }, "telegram.token"},
	}
	for _, tc := range cases {
		cfg := Default()
		cfg.Project.Domain = "bit.ly"
		tc.mut(cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: err = %v, want mention of %q", tc.name, err, tc.want)
		}
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	a := Default()
	b := Default()
	b.Logging.Level = "debug"
	b.Metrics.Token = "secret"
	changed, attrs := SummarizeChange(a, b)
	if strings.Join(changed, ",") != "logging,metrics" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
	if changed, _ := SummarizeChange(a, Default()); len(changed) != 0 {
		t.Fatalf("identical configs changed = %v", changed)
	}
}

func TestManagerWatchReloads(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "furlat.json")
	if err := os.WriteFile(path, []byte(sampleJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewManager(path, logx.Nop())
	m.SetValidator(func(c *Config) error { return c.Validate() })
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// Invalid content is rejected and never published.
	if err := os.WriteFile(path, []byte(`{"project": {"domain": ""}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * reloadDebounce)
	if err := os.WriteFile(path, []byte(strings.Replace(sampleJSON, `"workers": 3`, `"workers": 7`, 1)), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-ch:
		if cfg.Project.Workers != 7 {
			t.Fatalf("reloaded workers = %d", cfg.Project.Workers)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload published")
	}
	if m.Get().Project.Workers != 7 {
		t.Fatal("Get should return the reloaded config")
	}
}
