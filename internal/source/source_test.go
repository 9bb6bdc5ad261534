package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"furlat/internal/job"
	"furlat/internal/project"
	"furlat/internal/scrape"
	"furlat/internal/task/limit"
	logx "furlat/pkg/logx"
)

type fakeEngine struct {
	mu      sync.Mutex
	queries []string
	pages   []string
}

func (f *fakeEngine) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.URL.Query().Get("page") {
	case "":
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		f.pages = append(f.pages, "1")
		fmt.Fprint(w, `<html><body><div id="results">
<p>see bit.ly/zzz and bit.ly/abc</p>
<a href="https://bit.ly/abc">bit.ly/abc</a>
</div><div id="foot"><a id="pnnext" href="/search?page=2">Next</a></div></body></html>`)
	case "2":
		f.pages = append(f.pages, "2")
		fmt.Fprint(w, `<html><body><p>bit.ly/mmm</p><div id="foot"></div></body></html>`)
	default:
		http.NotFound(w, r)
	}
}

func newFake(t *testing.T) (*fakeEngine, Engine) {
	t.Helper()
	f := &fakeEngine{}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)
	e := Engine{
		Name:         "fake",
		QueryURL:     srv.URL + "/search?q=%s",
		SiteOperator: "site:%s",
		Ready:        scrape.Selector{ID: "foot"},
		Next:         scrape.Selector{ID: "pnnext"},
	}
	return f, e
}

func TestEngineQuery(t *testing.T) {
	t.Parallel()
	if got := Google.Query("bit.ly", "a OR b"); got != "site:bit.ly (a OR b)" {
		t.Fatalf("google query = %q", got)
	}
	if got := Bing.Query("bit.ly", "x"); got != `"bit.ly" (x)` {
		t.Fatalf("bing query = %q", got)
	}
	if got := Yahoo.FirstPage("bit.ly", "x"); got != "https://search.yahoo.com/search?p=%22bit.ly%22+%28x%29" {
		t.Fatalf("yahoo url = %q", got)
	}
}

func TestSearchTaskPages(t *testing.T) {
	t.Parallel()
	f, e := newFake(t)
	pool := NewSessionPool(PoolConfig{RequestsPerSecond: 1000}, logx.Nop())
	defer pool.Close()

	task := &SearchTask{
		Engine:   e,
		Pool:     pool,
		Pattern:  scrape.ShortcodePattern("bit.ly"),
		Keywords: "cats OR dogs",
		Pacer:    limit.NewRateLimiter(1000),
	}
	res, err := task.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(res, ","); got != "bit.ly/abc,bit.ly/mmm,bit.ly/zzz" {
		t.Fatalf("results = %s", got)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) != 1 || f.queries[0] != "site:bit.ly (cats OR dogs)" {
		t.Fatalf("queries = %q", f.queries)
	}
	if strings.Join(f.pages, "") != "12" {
		t.Fatalf("pages = %v", f.pages)
	}
}

func TestSearchTaskMaxPages(t *testing.T) {
	t.Parallel()
	f, e := newFake(t)
	pool := NewSessionPool(PoolConfig{RequestsPerSecond: 1000}, logx.Nop())
	defer pool.Close()

	task := &SearchTask{Engine: e, Pool: pool, Pattern: scrape.ShortcodePattern("bit.ly"), Keywords: "x", Pacer: limit.NewRateLimiter(1000), MaxPages: 1}
	res, err := task.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 {
		t.Fatalf("results = %v", res)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pages) != 1 {
		t.Fatalf("pages = %v", f.pages)
	}
}

func TestSearchTaskNotReady(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>please solve this captcha</body></html>`)
	}))
	defer srv.Close()

	e := Engine{Name: "fake", QueryURL: srv.URL + "/?q=%s", SiteOperator: "%s", Ready: scrape.Selector{ID: "foot"}}
	pool := NewSessionPool(PoolConfig{RequestsPerSecond: 1000}, logx.Nop())
	defer pool.Close()
	if _, err := pool.Get("fake"); err != nil {
		t.Fatal(err)
	}

	task := &SearchTask{Engine: e, Pool: pool, Pattern: scrape.ShortcodePattern("bit.ly"), Pacer: limit.NewRateLimiter(1000)}
	if _, err := task.Execute(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	if pool.Len() != 0 {
		t.Fatal("not-ready page should drop the session")
	}
}

func TestSearchTaskStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := Engine{Name: "fake", QueryURL: srv.URL + "/?q=%s", SiteOperator: "%s"}
	pool := NewSessionPool(PoolConfig{RequestsPerSecond: 1000}, logx.Nop())
	defer pool.Close()

	task := &SearchTask{Engine: e, Pool: pool, Pattern: scrape.ShortcodePattern("bit.ly"), Pacer: limit.NewRateLimiter(1000)}
	_, err := task.Execute(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusTooManyRequests {
		t.Fatalf("err = %v", err)
	}
}

func TestSessionPoolRecycle(t *testing.T) {
	t.Parallel()
	pool := NewSessionPool(PoolConfig{}, logx.Nop())
	first, err := pool.Get("google")
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= MaxSessionUses; i++ {
		s, _ := pool.Get("google")
		if s != first {
			t.Fatalf("use %d got a new session", i+1)
		}
	}
	s, _ := pool.Get("google")
	if s == first {
		t.Fatal("session should be recycled after serving more than MaxSessionUses jobs")
	}
	other, _ := pool.Get("bing")
	if other == s || pool.Len() != 2 {
		t.Fatal("sessions should be per source")
	}

	if err := pool.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Get("google"); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("err = %v, want ErrPoolClosed", err)
	}
}

func TestOfflineTask(t *testing.T) {
	t.Parallel()
	task := &OfflineTask{Pattern: scrape.ShortcodePattern("bit.ly"), Keywords: "hello OR world", MaxDelay: 1}
	res, err := task.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0] != "bit.ly/helloORw" {
		t.Fatalf("results = %v", res)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := &OfflineTask{Pattern: scrape.ShortcodePattern("bit.ly"), Keywords: "x"}
	if _, err := slow.Execute(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()
	pool := NewSessionPool(PoolConfig{}, logx.Nop())
	defer pool.Close()
	opt := Options{Pattern: scrape.ShortcodePattern("bit.ly"), Pool: pool, Log: logx.Nop()}

	reg := project.NewRegistry()
	if err := Register(reg, Names(), opt); err != nil {
		t.Fatal(err)
	}
	if got := len(reg.Categories()); got != 4 {
		t.Fatalf("registered %d sources", got)
	}
	task, err := reg.Build("google", job.Params{Query: "a"})
	if err != nil {
		t.Fatal(err)
	}
	st, ok := task.(*SearchTask)
	if !ok || st.Keywords != "a" || st.Engine.Name != Google.Name {
		t.Fatalf("task = %#v", task)
	}
	if task, _ := reg.Build(TestName, job.Params{}); task == nil {
		t.Fatal("test source should build")
	}

	if err := Register(project.NewRegistry(), []string{"altavista"}, opt); err == nil {
		t.Fatal("unknown source should fail")
	}
	if err := Register(project.NewRegistry(), []string{"google"}, Options{Pattern: opt.Pattern}); err == nil {
		t.Fatal("missing pool should fail")
	}
	if err := Register(project.NewRegistry(), []string{"test"}, Options{Pattern: opt.Pattern}); err != nil {
		t.Fatalf("offline source needs no pool: %v", err)
	}
}
