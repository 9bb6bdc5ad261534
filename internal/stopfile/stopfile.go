// Package stopfile asks a running project to stop when a file named STOP
// (or any configured path) is created or touched after the project started.
package stopfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "furlat/pkg/logx"
)

const DefaultPath = "STOP"

// Watcher reports Requested once the file's mtime is after since. Requested
// stats the file on every call until it trips; Run is optional.
type Watcher struct {
	path  string
	since time.Time
	log   logx.Logger

	tripped atomic.Bool
}

func New(path string, since time.Time, log logx.Logger) *Watcher {
	if path == "" {
		path = DefaultPath
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Watcher{path: path, since: since, log: log.With(logx.String("comp", "stopfile"))}
}

func (w *Watcher) Path() string { return w.path }

// Requested reports whether a stop was asked for.
func (w *Watcher) Requested() bool {
	if w.tripped.Load() {
		return true
	}
	return w.check()
}

func (w *Watcher) check() bool {
	fi, err := os.Stat(w.path)
	if err != nil || !fi.ModTime().After(w.since) {
		return false
	}
	if w.tripped.CompareAndSwap(false, true) {
		w.log.Info("stop file found", logx.String("path", w.path), logx.Time("mtime", fi.ModTime()))
	}
	return true
}

// Run watches the file's directory until ctx ends or the stop file appears.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return err
	}
	base := filepath.Base(w.path)
	if w.check() {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("stopfile: watcher closed")
			}
			if filepath.Base(ev.Name) != base || !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Chmod) {
				continue
			}
			if w.check() {
				return nil
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("stopfile: watcher closed")
			}
			w.log.Warn("stop file watch error", logx.Err(err))
		}
	}
}
