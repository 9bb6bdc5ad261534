package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"furlat/internal/job"
	"furlat/internal/scrape"
	"furlat/internal/task/limit"
	logx "furlat/pkg/logx"
)

// DefaultMaxPages bounds how far a search is paged.
const DefaultMaxPages = 10

// ErrNotReady means a result page was fetched but did not look like a
// result page (captcha, consent wall, layout change).
var ErrNotReady = errors.New("result page not ready")

// SearchTask runs one query against one engine.
type SearchTask struct {
	Engine   Engine
	Pool     *SessionPool
	Pattern  scrape.Pattern
	Keywords string
	Pacer    limit.RateLimiter
	MaxPages int
	Log      logx.Logger
}

// Execute fetches result pages until the engine has no next page, collects
// every pattern match and returns them deduplicated and sorted.
func (t *SearchTask) Execute(ctx context.Context) (job.Results, error) {
	sess, err := t.Pool.Get(string(t.Engine.Name))
	if err != nil {
		return nil, err
	}
	maxPages := t.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var found []string
	next := t.Engine.FirstPage(t.Pattern.Domain(), t.Keywords)
	for page := 1; ; page++ {
		body, err := sess.Fetch(ctx, next)
		if err != nil {
			return nil, err
		}
		if !t.Engine.Ready.IsZero() && !scrape.Contains(body, t.Engine.Ready) {
			t.Pool.Clear(string(t.Engine.Name))
			return nil, fmt.Errorf("%s page %d: %w", t.Engine.Name, page, ErrNotReady)
		}
		text, err := scrape.Text(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		found = append(found, t.Pattern.Scrape(text)...)

		if page >= maxPages || t.Engine.Next.IsZero() {
			break
		}
		ref, ok := scrape.FindHref(body, t.Engine.Next)
		if !ok {
			break
		}
		if next, err = resolve(next, ref); err != nil {
			return nil, err
		}
		t.Log.Trace("next page", logx.String("source", string(t.Engine.Name)), logx.Int("page", page+1))
		if err := t.Pacer.Sleep(ctx); err != nil {
			return nil, err
		}
	}
	return dedupe(found), nil
}

// OfflineTask stands in for a search engine in dry runs. It waits up to a
// second and then invents one short URL from the keywords.
type OfflineTask struct {
	Pattern  scrape.Pattern
	Keywords string
	MaxDelay time.Duration
}

func (t *OfflineTask) Execute(ctx context.Context) (job.Results, error) {
	maxDelay := t.MaxDelay
	if maxDelay <= 0 {
		maxDelay = time.Second
	}
	timer := time.NewTimer(time.Duration(rand.Int64N(int64(maxDelay))))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}
	page := "Hello world! " + t.Pattern.Domain() + "/" + shortcode(t.Keywords)
	return dedupe(t.Pattern.Scrape(page)), nil
}

func shortcode(s string) string {
	out := make([]byte, 0, 8)
	for i := 0; i < len(s) && len(out) < 8; i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return "x"
	}
	return string(out)
}

func dedupe(in []string) job.Results {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.Sort(out)
	return job.Results(slices.Compact(out))
}
