package storage

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	logx "furlat/pkg/logx"
)

// fileStore writes <path>/<domain-dir>/<job-id>, one URL per line. Files
// are written to a temp name and renamed so readers never see partial data.
type fileStore struct {
	log logx.Logger
	dir string

	mu     sync.Mutex
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	base := strings.TrimSpace(cfg.Path)
	if base == "" {
		base = "."
	}
	sub := DomainDir(cfg.Domain)
	if sub == "" {
		return nil, errors.New("storage: file driver needs a domain with letters or digits")
	}
	dir := filepath.Join(base, sub)
	return &fileStore{log: log, dir: dir}, nil
}

func (s *fileStore) Dir() string { return s.dir }

func (s *fileStore) BeginRun(ctx context.Context, r Run) error {
	s.log.Debug("run started", logx.String("run", r.ID), logx.String("dir", s.dir))
	return nil
}

func (s *fileStore) SaveBatch(ctx context.Context, b Batch) error {
	if len(b.URLs) == 0 {
		return nil
	}
	if strings.ContainsAny(b.JobID, `/\`) || b.JobID == "" {
		return errors.New("storage: invalid job id " + b.JobID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(s.dir, b.JobID)
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, u := range b.URLs {
		_, _ = w.WriteString(u)
		_ = w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	s.log.Debug("results saved", logx.String("path", path), logx.Int("urls", len(b.URLs)))
	return nil
}

// URLs reads every result file; files are visited in name order, which is
// creation order since job ids start with a timestamp.
func (s *fileStore) URLs(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var out []string
	for _, n := range names {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		lines, err := readLines(filepath.Join(s.dir, n))
		if err != nil {
			return out, err
		}
		out = append(out, lines...)
	}
	return out, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}
