package limit

import (
	"sort"
	"sync"
	"time"

	"furlat/internal/job"
)

const (
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = time.Hour
)

// Exponential is a relative backoff: it only tracks the next delay. Each
// Increment doubles it up to the ceiling; Reset returns to the initial value.
type Exponential struct {
	initial time.Duration
	max     time.Duration
	cur     time.Duration
}

func NewExponential(initial, max time.Duration) *Exponential {
	initial, max = normalizeBounds(initial, max)
	return &Exponential{initial: initial, max: max, cur: initial}
}

func (e *Exponential) Delay() time.Duration { return e.cur }

// Increment returns the delay to wait now and doubles the next one.
func (e *Exponential) Increment() time.Duration {
	d := e.cur
	e.cur = double(e.cur, e.max)
	return d
}

func (e *Exponential) Reset() { e.cur = e.initial }

// AbsoluteExponential tracks the instant from which work may resume.
type AbsoluteExponential struct {
	Exponential
	until time.Time
}

func NewAbsoluteExponential(initial, max time.Duration) *AbsoluteExponential {
	return &AbsoluteExponential{Exponential: *NewExponential(initial, max)}
}

// Time is the eligible-at instant; the zero time means eligible now.
func (a *AbsoluteExponential) Time() time.Time { return a.until }

// Increment pushes the eligible-at instant to now plus the current delay
// and doubles the delay.
func (a *AbsoluteExponential) Increment(now time.Time) time.Duration {
	d := a.Exponential.Increment()
	a.until = now.Add(d)
	return d
}

func (a *AbsoluteExponential) Reset() {
	a.Exponential.Reset()
	a.until = time.Time{}
}

// BackoffClock keeps one AbsoluteExponential per category. Categories never
// seen are eligible with the initial interval.
type BackoffClock struct {
	mu      sync.Mutex
	initial time.Duration
	max     time.Duration
	now     func() time.Time
	cats    map[job.Category]*AbsoluteExponential
}

type ClockOption func(*BackoffClock)

// WithNow injects the clock source.
func WithNow(now func() time.Time) ClockOption {
	return func(c *BackoffClock) {
		if now != nil {
			c.now = now
		}
	}
}

func NewBackoffClock(initial, max time.Duration, opts ...ClockOption) *BackoffClock {
	initial, max = normalizeBounds(initial, max)
	c := &BackoffClock{
		initial: initial,
		max:     max,
		now:     time.Now,
		cats:    make(map[job.Category]*AbsoluteExponential),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *BackoffClock) get(cat job.Category) *AbsoluteExponential {
	st := c.cats[cat]
	if st == nil {
		st = NewAbsoluteExponential(c.initial, c.max)
		c.cats[cat] = st
	}
	return st
}

// Eligible reports whether cat may be tried at now.
func (c *BackoffClock) Eligible(cat job.Category, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.cats[cat]
	return st == nil || !now.Before(st.Time())
}

// RecordFailure blocks cat for the current interval and doubles it. It
// returns the wait that was applied.
func (c *BackoffClock) RecordFailure(cat job.Category) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(cat).Increment(c.now())
}

func (c *BackoffClock) RecordSuccess(cat job.Category) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st := c.cats[cat]; st != nil {
		st.Reset()
	}
}

// Interval is the wait the next failure of cat would apply.
func (c *BackoffClock) Interval(cat job.Category) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st := c.cats[cat]; st != nil {
		return st.Delay()
	}
	return c.initial
}

func (c *BackoffClock) EligibleAt(cat job.Category) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st := c.cats[cat]; st != nil {
		return st.Time()
	}
	return time.Time{}
}

type CategoryBackoff struct {
	Category   job.Category
	Interval   time.Duration
	EligibleAt time.Time
}

func (c *BackoffClock) Snapshot() []CategoryBackoff {
	c.mu.Lock()
	out := make([]CategoryBackoff, 0, len(c.cats))
	for cat, st := range c.cats {
		out = append(out, CategoryBackoff{Category: cat, Interval: st.Delay(), EligibleAt: st.Time()})
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

func normalizeBounds(initial, max time.Duration) (time.Duration, time.Duration) {
	if initial <= 0 {
		initial = DefaultInitialBackoff
	}
	if max <= 0 {
		max = DefaultMaxBackoff
	}
	if max < initial {
		max = initial
	}
	return initial, max
}

func double(d, max time.Duration) time.Duration {
	if d >= max/2 {
		return max
	}
	return d * 2
}
