package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	logx "furlat/pkg/logx"
)

func waitAddr(t *testing.T, s *Service) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a := s.Addr(); a != "" {
			return a
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("server did not start")
	return ""
}

func get(t *testing.T, url, bearer string) (int, string) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestServeMetricsAndHealth(t *testing.T) {
	t.Parallel()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("m 1\n")) })
	var unhealthy atomic.Bool
	health := func() error {
		if unhealthy.Load() {
			return errors.New("runner closed")
		}
		return nil
	}
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0", Pprof: true}, logx.Nop(), metrics, health)
	s.Start(context.Background())
	defer s.Stop(context.Background())
	base := "http://" + waitAddr(t, s)

	if code, body := get(t, base+"/metrics", ""); code != 200 || body != "m 1\n" {
		t.Fatalf("/metrics = %d %q", code, body)
	}
	if code, body := get(t, base+"/healthz", ""); code != 200 || body != "ok" {
		t.Fatalf("/healthz = %d %q", code, body)
	}
	if code, _ := get(t, base+"/debug/pprof/", ""); code != 200 {
		t.Fatalf("pprof index = %d", code)
	}

	unhealthy.Store(true)
	if code, _ := get(t, base+"/healthz", ""); code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy /healthz = %d", code)
	}
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0", Token: "sekret"}, logx.Nop(), nil, nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())
	base := "http://" + waitAddr(t, s)

	if code, _ := get(t, base+"/healthz", ""); code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", code)
	}
	if code, _ := get(t, base+"/healthz", "sekret"); code != 200 {
		t.Fatalf("bearer = %d", code)
	}
	if code, _ := get(t, base+"/healthz?token=sekret", ""); code != 200 {
		t.Fatalf("query token = %d", code)
	}
	if code, _ := get(t, base+"/debug/pprof/", "sekret"); code != http.StatusNotFound {
		t.Fatalf("pprof disabled = %d", code)
	}
}

func TestReconfigureStops(t *testing.T) {
	t.Parallel()
	cfg := Config{Enabled: true, Addr: "127.0.0.1:0"}
	s := New(cfg, logx.Nop(), nil, nil)
	s.Reconfigure(context.Background(), cfg)
	waitAddr(t, s)

	cfg.Enabled = false
	s.Reconfigure(context.Background(), cfg)
	if a := s.Addr(); a != "" {
		t.Fatalf("addr after disable = %q", a)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"127.0.0.1:9464": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":9464":          false,
		"0.0.0.0:9464":   false,
		"10.0.0.1:80":    false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v", addr, got)
		}
	}
}

func TestNormalizePrefix(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]string{"": "/debug/pprof/", "dbg": "/dbg/", "/x/": "/x/"} {
		if got := normalizePrefix(in); got != want {
			t.Fatalf("normalizePrefix(%q) = %q", in, got)
		}
	}
}
