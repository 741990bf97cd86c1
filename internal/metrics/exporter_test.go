package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"pollooper/internal/looper"
	"pollooper/pkg/ticks"
)

func TestExporter_RecordMethods(t *testing.T) {
	t.Parallel()
	reg := prom.NewRegistry()
	e, err := New(reg, Options{WaitBuckets: []float64{0.05, 0.5}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	e.ObserveCycle(2*time.Millisecond, 100*time.Millisecond)
	e.ObserveCycle(time.Millisecond, 0)
	e.IncBacklog()
	e.IncPollFailure("lights")
	e.IncShutdownFailure("")
	e.SetPlugins(4)

	if got := testutil.ToFloat64(e.cycles); got != 2 {
		t.Fatalf("cycles = %v, want 2", got)
	}
	if got := testutil.ToFloat64(e.backlog); got != 1 {
		t.Fatalf("backlog = %v, want 1", got)
	}
	if got := testutil.ToFloat64(e.pollFailures.WithLabelValues("lights")); got != 1 {
		t.Fatalf("poll failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(e.shutdownFailures.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("shutdown failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(e.plugins); got != 4 {
		t.Fatalf("plugins = %v, want 4", got)
	}

	want := `
# HELP pollooper_cycle_wait_seconds Wait computed before the next cycle; 0 on backlog.
# TYPE pollooper_cycle_wait_seconds histogram
pollooper_cycle_wait_seconds_bucket{le="0.05"} 1
pollooper_cycle_wait_seconds_bucket{le="0.5"} 2
pollooper_cycle_wait_seconds_bucket{le="+Inf"} 2
pollooper_cycle_wait_seconds_sum 0.1
pollooper_cycle_wait_seconds_count 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "pollooper_cycle_wait_seconds"); err != nil {
		t.Fatalf("wait histogram: %v", err)
	}
}

func TestExporter_AlreadyRegisteredReuse(t *testing.T) {
	t.Parallel()
	reg := prom.NewRegistry()
	first, err := New(reg, Options{})
	if err != nil {
		t.Fatalf("first New: %v", err)
	}
	second, err := New(reg, Options{})
	if err != nil {
		t.Fatalf("second New: %v", err)
	}
	first.IncBacklog()
	second.IncBacklog()
	if got := testutil.ToFloat64(first.backlog); got != 2 {
		t.Fatalf("shared backlog counter = %v, want 2", got)
	}
}

type failing struct{}

func (failing) Name() string    { return "flaky" }
func (failing) PollIt() error   { return errors.New("read error") }
func (failing) Shutdown() error { return errors.New("still busy") }

func TestExporter_WiredIntoScheduler(t *testing.T) {
	t.Parallel()
	reg := prom.NewRegistry()
	e, err := New(reg, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s := looper.New(looper.Config{CycleInterval: 10 * time.Millisecond},
		looper.WithSource(ticks.NewManual(0)), looper.WithMetrics(e))
	s.Register(failing{})

	_ = s.Drive(context.Background(), looper.WaiterFunc(func(context.Context, time.Duration) {}))

	if got := testutil.ToFloat64(e.pollFailures.WithLabelValues("flaky")); got != 1 {
		t.Fatalf("poll failures = %v", got)
	}
	if got := testutil.ToFloat64(e.shutdownFailures.WithLabelValues("flaky")); got != 1 {
		t.Fatalf("shutdown failures = %v", got)
	}
	if got := testutil.ToFloat64(e.plugins); got != 1 {
		t.Fatalf("plugins = %v", got)
	}
}
