package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "furlat/pkg/logx"
)

const (
	// MaxSessionUses recycles a session (fresh cookies and connections)
	// once it has served more than this many jobs.
	MaxSessionUses = 100

	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
	maxPageBytes     = 4 << 20
)

var ErrPoolClosed = errors.New("session pool closed")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("GET %s: status %d", e.URL, e.Code) }

// Session is an HTTP client with its own cookie jar and request pacing.
type Session struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// Fetch GETs url and returns at most 4 MiB of the body.
func (s *Session) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}

func (s *Session) close() { s.client.CloseIdleConnections() }

// PoolConfig tunes the sessions of a SessionPool.
type PoolConfig struct {
	Timeout time.Duration
	// RequestsPerSecond caps raw HTTP requests per session; 0 means 1.
	RequestsPerSecond float64
	UserAgent         string
	Transport         http.RoundTripper
}

// SessionPool caches one Session per source. It is closed when the project
// shuts down.
type SessionPool struct {
	cfg PoolConfig
	log logx.Logger

	mu       sync.Mutex
	closed   bool
	sessions map[string]*Session
	uses     map[string]int
}

func NewSessionPool(cfg PoolConfig, log logx.Logger) *SessionPool {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &SessionPool{
		cfg:      cfg,
		log:      log.With(logx.String("comp", "sessions")),
		sessions: make(map[string]*Session),
		uses:     make(map[string]int),
	}
}

// Get returns the session for key, replacing it once it has served more
// than MaxSessionUses jobs.
func (p *SessionPool) Get(key string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	if s, ok := p.sessions[key]; ok && p.uses[key] > MaxSessionUses {
		s.close()
		delete(p.sessions, key)
		p.log.Debug("session recycled", logx.String("source", key))
	}
	s, ok := p.sessions[key]
	if !ok {
		jar, _ := cookiejar.New(nil)
		s = &Session{
			client:    &http.Client{Timeout: p.cfg.Timeout, Jar: jar, Transport: p.cfg.Transport},
			limiter:   rate.NewLimiter(rate.Limit(p.cfg.RequestsPerSecond), 1),
			userAgent: p.cfg.UserAgent,
		}
		p.sessions[key] = s
		p.uses[key] = 0
	}
	p.uses[key]++
	return s, nil
}

// Clear drops the session for key.
func (p *SessionPool) Clear(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[key]; ok {
		s.close()
		delete(p.sessions, key)
		delete(p.uses, key)
	}
}

func (p *SessionPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Close releases every session. Later Get calls fail with ErrPoolClosed.
func (p *SessionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, s := range p.sessions {
		s.close()
		delete(p.sessions, k)
	}
	p.closed = true
	return nil
}
