package word

import (
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string, gz bool) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if gz {
		zw := gzip.NewWriter(f)
		if _, err := zw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
		if err := zw.Close(); err != nil {
			t.Fatal(err)
		}
		return path
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLineListSample(t *testing.T) {
	t.Parallel()
	var words []string
	for i := 0; i < 200; i++ {
		words = append(words, "w"+strings.Repeat("x", i%7)+string(rune('a'+i%26)))
	}
	content := strings.Join(words, "\n") + "\n"

	for _, gz := range []bool{false, true} {
		name := "words.txt"
		if gz {
			name = "words.txt.gz"
		}
		l, err := NewLineListSeeded(writeFile(t, name, content, gz), 1)
		if err != nil {
			t.Fatal(err)
		}
		got, err := l.Sample(5)
		if err != nil {
			t.Fatalf("gz=%v: %v", gz, err)
		}
		if len(got) != 5 {
			t.Fatalf("gz=%v: got %d words", gz, len(got))
		}
		for _, w := range got {
			if !strings.HasPrefix(w, "w") || strings.ContainsAny(w, " \r\n") {
				t.Fatalf("gz=%v: bad word %q", gz, w)
			}
		}
	}
}

func TestLineListShortFile(t *testing.T) {
	t.Parallel()
	l, err := NewLineList(writeFile(t, "w", "one\ntwo  \n", false))
	if err != nil {
		t.Fatal(err)
	}
	got, _ := l.Sample(10)
	if strings.Join(got, ",") != "one,two" {
		t.Fatalf("got %q", got)
	}
	if _, err := NewLineList(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("missing file should fail")
	}
}

func TestWikiTitles(t *testing.T) {
	t.Parallel()
	w, err := NewWikiTitles(writeFile(t, "titles", "page_title\n-dash\nNew_York\nword\n", false))
	if err != nil {
		t.Fatal(err)
	}
	got, _ := w.Sample(10)
	if strings.Join(got, ",") != "New York,word" {
		t.Fatalf("got %q", got)
	}
}

type countingList struct {
	calls int
	words []string
}

func (c *countingList) Sample(n int) ([]string, error) {
	c.calls++
	if len(c.words) > n {
		return c.words[:n], nil
	}
	return c.words, nil
}

func TestQueueRefills(t *testing.T) {
	t.Parallel()
	l := &countingList{words: []string{"a", "b", "c"}}
	q := NewQueue(l, 2)
	var got []string
	for i := 0; i < 5; i++ {
		w, err := q.Next()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, w)
	}
	if strings.Join(got, "") != "ababa" || l.calls != 3 {
		t.Fatalf("got %q after %d refills", got, l.calls)
	}

	empty := NewQueue(&countingList{}, 0)
	if _, err := empty.Next(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("err = %v, want ErrEmpty", err)
	}
}

func TestQueryBuilder(t *testing.T) {
	t.Parallel()
	b := QueryBuilder{Queue: NewQueue(Static{}, 0)}
	p, err := b.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if p.Query != "hello OR hello" {
		t.Fatalf("query = %q", p.Query)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Next(ctx); err == nil {
		t.Fatal("canceled ctx should fail")
	}
}
