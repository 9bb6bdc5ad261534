package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	kit "furlat/internal/transport"
)

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "runner"))
	log.Info("job finished", Int("results", 3), Duration("dur", time.Second))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if m["comp"] != "runner" {
		t.Fatalf("comp = %v", m["comp"])
	}
	if m["results"] != float64(3) {
		t.Fatalf("results = %v", m["results"])
	}
	if m["message"] != "job finished" {
		t.Fatalf("message = %v", m["message"])
	}
	if c, _ := m["caller"].(string); !strings.HasPrefix(c, "logx_test.go:") {
		t.Fatalf("caller = %q", c)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %q", buf.String())
	}
	if log.Enabled(LevelInfo) {
		t.Fatal("Enabled(info) should be false")
	}
	log.Warn("shown")
	if buf.Len() == 0 {
		t.Fatal("warn should be written")
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Error("nothing happens")
	if Nop().IsZero() {
		t.Fatal("Nop is not the zero value")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := map[string]Level{
		"trace":   LevelTrace,
		"DEBUG":   LevelDebug,
		" info ":  LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFormatAlert(t *testing.T) {
	t.Parallel()
	got := formatAlert([]byte(`{"level":"warn","message":"job failed","category":"google","time":"x"}`))
	want := "[WARN] job failed\n- category=google"
	if got != want {
		t.Fatalf("formatAlert = %q, want %q", got, want)
	}
	if got := formatAlert([]byte("plain text\n")); got != "plain text" {
		t.Fatalf("non-json line = %q", got)
	}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	done chan struct{}
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	select {
	case f.done <- struct{}{}:
	default:
	}
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func TestServiceTelegramAlerts(t *testing.T) {
	sender := &fakeSender{done: make(chan struct{}, 1)}
	svc, log := New(Config{
		Level:    "info",
		Telegram: TelegramConfig{Enabled: true, ChatID: 42, RatePerSec: 10},
	}, sender)
	defer svc.Close()

	log.Info("below alert level")
	log.Warn("category backing off", String("category", "bing"))

	select {
	case <-sender.done:
	case <-time.After(2 * time.Second):
		t.Fatal("alert was not sent")
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d alerts, want 1: %q", len(sender.sent), sender.sent)
	}
	if !strings.HasPrefix(sender.sent[0], "[WARN] category backing off") {
		t.Fatalf("alert = %q", sender.sent[0])
	}
}
