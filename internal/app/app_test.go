package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"pollooper/internal/config"
	"pollooper/internal/eventbus"
	"pollooper/internal/journal"
	"pollooper/internal/looper"
	"pollooper/internal/topics"
	"pollooper/plugins/trafficlights"
	logx "pollooper/pkg/logx"
)

type fakeNotifier struct {
	mu     sync.Mutex
	states []string
}

func (f *fakeNotifier) Notify(state string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
	return true, nil
}

func (f *fakeNotifier) has(state string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.states {
		if s == state {
			return true
		}
	}
	return false
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pollooper.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runApp(t *testing.T, a *App, before func()) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if before != nil {
		before()
	}
	runErr := a.Run(ctx)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, Reason(runErr, false)); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	return runErr
}

func TestRunUntilShutdownTimer(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	jpath := filepath.Join(dir, "journal.jsonl")
	path := writeConfig(t, `
looper:
  cycle_interval: 10ms
logging:
  level: error
journal:
  driver: file
  path: `+jpath+`
plugins:
  shutdown_timer:
    enabled: true
    config:
      seconds: 0.05
  traffic_lights:
    enabled: true
`)

	var out bytes.Buffer
	n := &fakeNotifier{}
	a, err := New(path, WithOutput(&out), WithNotifier(n))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := a.Scheduler().Len(); got != 4 {
		t.Fatalf("registered plugins=%d want 4", got)
	}

	if err := runApp(t, a, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if a.Scheduler().State() != looper.Stopped {
		t.Fatalf("state=%s", a.Scheduler().State())
	}
	if !n.has("READY=1") {
		t.Fatalf("READY=1 not sent: %v", n.states)
	}
	if !strings.Contains(out.String(), "RED shutdown") {
		t.Fatalf("view did not render shutdown:\n%s", out.String())
	}

	st, err := journal.Open(journal.Config{Driver: "file", Path: jpath}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer st.Close()
	entries, err := st.Entries(context.Background(), a.RunID())
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("entries=%+v", entries)
	}
	if entries[0].Kind != eventbus.RunStarted || entries[len(entries)-1].Kind != eventbus.RunStopped {
		t.Fatalf("first=%s last=%s", entries[0].Kind, entries[len(entries)-1].Kind)
	}
}

func TestCooperativeCrossingRequest(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
looper:
  cycle_interval: 10ms
  cooperative: true
logging:
  level: error
plugins:
  shutdown_timer:
    enabled: true
    config:
      seconds: 0.1
  traffic_lights:
    enabled: true
`)
	a, err := New(path, WithNotifier(&fakeNotifier{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !a.Scheduler().Cooperative() {
		t.Fatalf("expected cooperative scheduler")
	}

	err = runApp(t, a, func() {
		if !a.RequestCrossing() {
			t.Errorf("RequestCrossing reported traffic lights disabled")
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	st := topics.Record[trafficlights.State](a.Scheduler().Topics(), trafficlights.Topic)
	if !st.CrossingRequest {
		t.Fatalf("crossing request never reached the shared state")
	}
}

func TestRequestCrossingWithoutLights(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
looper:
  cycle_interval: 10ms
plugins: {}
`)
	a, err := New(path, WithNotifier(&fakeNotifier{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.RequestCrossing() {
		t.Fatalf("expected false without traffic lights")
	}
}

func TestNewRejectsBadPluginConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{name: "unknown field", body: `
plugins:
  led_blink:
    enabled: true
    config:
      blink: fast
`},
		{name: "invalid phase", body: `
plugins:
  traffic_lights:
    enabled: true
    config:
      green_seconds: 5
      dont_walk_seconds: 9
`},
		{name: "bad schedule", body: `
plugins:
  heartbeat:
    enabled: true
    config:
      schedule: sometimes
`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(writeConfig(t, tc.body), WithNotifier(&fakeNotifier{})); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDisabledPluginsAreSkipped(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
plugins:
  gc:
    enabled: false
  heartbeat:
    enabled: true
`)
	a, err := New(path, WithNotifier(&fakeNotifier{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := a.Scheduler().Len(); got != 1 {
		t.Fatalf("registered=%d want 1", got)
	}
	if got := strings.Join(a.plugins, ","); got != "heartbeat" {
		t.Fatalf("plugins=%q", got)
	}
}

func TestReason(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		err      error
		signaled bool
		want     StopReason
	}{
		{name: "clean", want: StopRequested},
		{name: "signal", signaled: true, want: StopSignal},
		{name: "poll failure", err: &looper.PollFailure{Plugin: "x", Err: errors.New("boom")}, want: StopPollFailure},
		{name: "wrapped poll failure", err: errors.Join(errors.New("ctx"), &looper.PollFailure{Plugin: "x", Err: errors.New("boom")}), want: StopPollFailure},
		{name: "other", err: errors.New("oops"), want: StopFatalError},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Reason(tc.err, tc.signaled); got != tc.want {
				t.Fatalf("Reason=%s want %s", got, tc.want)
			}
		})
	}
}

func TestMapJournalConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		body    string
		enabled bool
		wantErr bool
		busy    time.Duration
	}{
		{name: "absent", body: "{}"},
		{name: "none", body: `{"journal":{"driver":"none"}}`},
		{name: "file", body: `{"journal":{"driver":"file","path":"j.jsonl"}}`, enabled: true},
		{name: "sqlite default busy", body: `{"journal":{"driver":"sqlite","path":"j.db"}}`, enabled: true, busy: time.Second},
		{name: "sqlite busy", body: `{"journal":{"driver":"sqlite","path":"j.db","busy_timeout":"3s"}}`, enabled: true, busy: 3 * time.Second},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := config.Decode("c.json", []byte(tc.body))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			jc, enabled, err := mapJournalConfig(cfg)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err=%v", err)
			}
			if enabled != tc.enabled {
				t.Fatalf("enabled=%v want %v", enabled, tc.enabled)
			}
			if jc.BusyTimeout != tc.busy {
				t.Fatalf("busy=%v want %v", jc.BusyTimeout, tc.busy)
			}
		})
	}
}

func TestApplyConfigNotifiesReload(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
logging:
  level: error
plugins:
  gc:
    enabled: true
`)
	n := &fakeNotifier{}
	a, err := New(path, WithNotifier(n))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.logs.Close()

	oldCfg := a.cfgm.Get()
	same := *oldCfg
	a.applyConfig(context.Background(), oldCfg, &same)
	if len(n.states) != 0 {
		t.Fatalf("unchanged config notified %v", n.states)
	}

	newCfg := *oldCfg
	newCfg.Logging.Level = "debug"
	a.applyConfig(context.Background(), oldCfg, &newCfg)
	n.mu.Lock()
	got := strings.Join(n.states, ",")
	n.mu.Unlock()
	if got != "RELOADING=1,READY=1" {
		t.Fatalf("states = %s, want RELOADING=1,READY=1", got)
	}
}
