// Package word samples search keywords from word lists.
package word

import (
	"bufio"
	"compress/gzip"
	"errors"
	"io"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
)

var ErrEmpty = errors.New("word list is empty")

// List returns up to n random words.
type List interface {
	Sample(n int) ([]string, error)
}

// LineList reads one word per line from a file, gzip compressed when the
// name ends in .gz. The file is rescanned on every Sample so memory stays
// flat for large dictionaries.
type LineList struct {
	path string

	mu  sync.Mutex
	rng *rand.Rand
}

func NewLineList(path string) (*LineList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	_ = f.Close()
	return &LineList{path: path, rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}, nil
}

// NewLineListSeeded makes sampling deterministic.
func NewLineListSeeded(path string, seed uint64) (*LineList, error) {
	l, err := NewLineList(path)
	if err != nil {
		return nil, err
	}
	l.rng = rand.New(rand.NewPCG(seed, seed))
	return l, nil
}

func (l *LineList) Path() string { return l.path }

// Sample picks n lines uniformly with reservoir sampling. Fewer than n
// lines yields all of them.
func (l *LineList) Sample(n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	rc, err := l.open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	l.mu.Lock()
	defer l.mu.Unlock()

	words := make([]string, 0, n)
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for i := 0; sc.Scan(); i++ {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if i < n {
			words = append(words, line)
			continue
		}
		if r := l.rng.IntN(i + 1); r < n {
			words[r] = line
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return words, nil
}

func (l *LineList) open() (io.ReadCloser, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(strings.ToLower(l.path), ".gz") {
		return f, nil
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return gzipFile{Reader: zr, f: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g gzipFile) Close() error {
	err := g.Reader.Close()
	if ferr := g.f.Close(); err == nil {
		err = ferr
	}
	return err
}

// WikiTitles samples a MediaWiki all-titles dump. The header row and titles
// starting with '-' are skipped and underscores become spaces.
type WikiTitles struct {
	lines *LineList
}

func NewWikiTitles(path string) (*WikiTitles, error) {
	l, err := NewLineList(path)
	if err != nil {
		return nil, err
	}
	return &WikiTitles{lines: l}, nil
}

func (w *WikiTitles) Sample(n int) ([]string, error) {
	raw, err := w.lines.Sample(n)
	if err != nil {
		return nil, err
	}
	out := raw[:0]
	for _, s := range raw {
		if !IsWikiWord(s) {
			continue
		}
		out = append(out, CleanWikiTitle(s))
	}
	return out, nil
}

func IsWikiWord(s string) bool {
	return s != "" && s != "page_title" && !strings.HasPrefix(s, "-")
}

func CleanWikiTitle(s string) string { return strings.ReplaceAll(s, "_", " ") }

// Static always returns the same word. Used by the offline test source.
type Static struct {
	Word string
}

func (s Static) Sample(n int) ([]string, error) {
	w := s.Word
	if w == "" {
		w = "hello"
	}
	out := make([]string, n)
	for i := range out {
		out[i] = w
	}
	return out, nil
}
