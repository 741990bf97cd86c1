package trafficlights

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"pollooper/internal/looper"
	"pollooper/internal/topics"
	logx "pollooper/pkg/logx"
	"pollooper/pkg/ticks"
)

type harness struct {
	s     *looper.Scheduler
	clock *ticks.Manual
	set   *Set
	out   *bytes.Buffer
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	clock := ticks.NewManual(0)
	s := looper.New(looper.Config{CycleInterval: time.Second}, looper.WithSource(clock))
	var out bytes.Buffer
	set, err := New(s, cfg, &out, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Register(set.Plugins()...)
	return &harness{s: s, clock: clock, set: set, out: &out}
}

// cycles runs n passes, one second apart.
func (h *harness) cycles(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := h.s.PollOnce(); err != nil {
			t.Fatalf("PollOnce: %v", err)
		}
		h.clock.Advance(ticks.FromDuration(h.s.ComputeWait()))
	}
}

func TestFullSequence(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})

	h.cycles(t, 11)
	if got := h.set.View.Display(); got != "RED DW" {
		t.Fatalf("after 11s display=%q want RED DW", got)
	}
	h.cycles(t, 1)
	if got := h.set.View.Display(); got != "GRN WK" {
		t.Fatalf("display=%q want GRN WK", got)
	}
	// Green counts 15 down; the countdown shows from 8.
	h.cycles(t, 7)
	if got := h.set.View.Display(); got != "GRN DW 08" {
		t.Fatalf("display=%q want GRN DW 08", got)
	}
	h.cycles(t, 9) // 7..1, then "DW 00" before yellow
	if got := h.set.View.Display(); got != "YEL DW" {
		t.Fatalf("display=%q want YEL DW", got)
	}
	h.cycles(t, 5)
	if got := h.set.View.Display(); got != "RED DW" {
		t.Fatalf("display=%q want RED DW", got)
	}
}

func TestCrossingShortensGreen(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.cycles(t, 12) // green just started

	h.set.Crossing.Press()
	h.cycles(t, 1) // controller runs before the crossing plugin latches the press
	st := topics.Record[State](h.s.Topics(), Topic)
	if !st.CrossingRequest {
		t.Fatalf("crossing request not latched")
	}
	h.cycles(t, 1)
	if got := h.set.View.Display(); got != "GRN DW 08" {
		t.Fatalf("display=%q want GRN DW 08", got)
	}

	// The next green clears the request.
	h.cycles(t, 8+5+11+1)
	if got := h.set.View.Display(); got != "GRN WK" {
		t.Fatalf("display=%q want GRN WK", got)
	}
	if st.CrossingRequest {
		t.Fatalf("crossing request should reset at the start of green")
	}
}

func TestCrossingIgnoredOutsideGreen(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.cycles(t, 2)
	RequestCrossing(h.s)
	h.cycles(t, 10)
	if got := h.set.View.Display(); got != "GRN WK" {
		t.Fatalf("display=%q want GRN WK", got)
	}
}

func TestViewOnlyRendersChanges(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.cycles(t, 12)
	lines := strings.Split(strings.TrimSpace(h.out.String()), "\n")
	want := []string{"RED DW", "GRN WK"}
	if len(lines) != len(want) {
		t.Fatalf("lines=%q want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("lines=%q want %q", lines, want)
		}
	}
}

func TestShutdownLeavesRed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.cycles(t, 12)
	h.s.RequestShutdown()
	if err := h.s.Run(t.Context()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := h.set.View.Display(); got != "RED shutdown" {
		t.Fatalf("display=%q want RED shutdown", got)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults", cfg: Config{}},
		{name: "custom", cfg: Config{RedSeconds: 5, GreenSeconds: 6, YellowSeconds: 2, DontWalkSeconds: 3}},
		{name: "negative", cfg: Config{RedSeconds: -1}, wantErr: true},
		{name: "dont walk too long", cfg: Config{GreenSeconds: 5, DontWalkSeconds: 6}, wantErr: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate err=%v wantErr=%v", err, tc.wantErr)
			}
		})
	}
}
