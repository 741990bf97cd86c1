package debugsrv

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	logx "pollooper/pkg/logx"
)

func newTestService(cfg Config, h Health) *Service {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "pollooper_cycles_total", Help: "cycles"})
	reg.MustRegister(c)
	c.Add(3)
	return New(cfg, reg, func() Health { return h }, logx.Nop())
}

func TestHandler_HealthAndMetrics(t *testing.T) {
	t.Parallel()
	s := newTestService(Config{}, Health{State: "running", Running: true, Plugins: 3})
	h := s.Handler(Config{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	var got Health
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.State != "running" || got.Plugins != 3 {
		t.Fatalf("health = %+v", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "pollooper_cycles_total 3") {
		t.Fatalf("metrics body = %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("pprof should be off by default, status = %d", rec.Code)
	}
}

func TestHandler_StoppedIsUnavailable(t *testing.T) {
	t.Parallel()
	s := newTestService(Config{}, Health{State: "stopped"})
	rec := httptest.NewRecorder()
	s.Handler(Config{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandler_Auth(t *testing.T) {
	t.Parallel()
	cfg := Config{Token: "s3cret", Pprof: true}
	h := newTestService(cfg, Health{Running: true}).Handler(cfg)

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{name: "missing", target: "/healthz", want: http.StatusUnauthorized},
		{name: "bad query", target: "/healthz?token=nope", want: http.StatusUnauthorized},
		{name: "query", target: "/healthz?token=s3cret", want: http.StatusOK},
		{name: "bearer", target: "/metrics", header: "Bearer s3cret", want: http.StatusOK},
		{name: "pprof", target: "/debug/pprof/", header: "Bearer s3cret", want: http.StatusOK},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":6060":          false,
		"0.0.0.0:6060":   false,
		"10.0.0.5:6060":  false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestService_StartStop(t *testing.T) {
	t.Parallel()
	s := newTestService(Config{Enabled: true, Addr: "127.0.0.1:0"}, Health{Running: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	var addr string
	deadline := time.Now().Add(3 * time.Second)
	for addr == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
		addr = s.Addr()
	}
	if addr == "" {
		t.Fatalf("server did not bind")
	}
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer stopCancel()
	s.Stop(stopCtx)
	if s.Addr() != "" {
		t.Fatalf("addr still set after stop")
	}

	s.Reconfigure(ctx, Config{Enabled: false})
}

func TestService_RefusesInsecureBind(t *testing.T) {
	t.Parallel()
	s := newTestService(Config{Enabled: true, Addr: "0.0.0.0:0"}, Health{})
	if err := s.serveOnce(context.Background()); err == nil || !strings.Contains(err.Error(), "insecure") {
		t.Fatalf("err = %v", err)
	}
}
