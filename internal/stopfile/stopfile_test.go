package stopfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "furlat/pkg/logx"
)

func TestRequested(t *testing.T) {
	t.Parallel()
	since := time.Now().Add(-time.Minute)
	path := filepath.Join(t.TempDir(), "STOP")
	w := New(path, since, logx.Nop())

	if w.Requested() {
		t.Fatal("missing file should not stop")
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	old := since.Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
	if w.Requested() {
		t.Fatal("stale file should not stop")
	}
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatal(err)
	}
	if !w.Requested() {
		t.Fatal("fresh file should stop")
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if !w.Requested() {
		t.Fatal("stop request should latch")
	}
}

func TestRunSeesCreate(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "STOP")
	w := New(path, time.Now().Add(-time.Second), logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-ctx.Done():
		t.Fatal("Run did not notice the stop file")
	}
	if !w.tripped.Load() {
		t.Fatal("watcher should be tripped")
	}
}

func TestRunCancel(t *testing.T) {
	t.Parallel()
	w := New(filepath.Join(t.TempDir(), "STOP"), time.Now(), logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if w.Requested() {
		t.Fatal("no file, no stop")
	}
	if New("", time.Now(), logx.Logger{}).Path() != DefaultPath {
		t.Fatal("default path")
	}
}
