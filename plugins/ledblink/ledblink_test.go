package ledblink

import (
	"errors"
	"testing"
	"time"

	"pollooper/internal/looper"
	logx "pollooper/pkg/logx"
	"pollooper/pkg/ticks"
)

type recordPin struct {
	states []bool
	err    error
}

func (r *recordPin) Set(on bool) error {
	if r.err != nil {
		return r.err
	}
	r.states = append(r.states, on)
	return nil
}

// cycle mirrors one Drive iteration with a sleeper that advances the clock.
func cycle(s *looper.Scheduler, clock *ticks.Manual) error {
	if err := s.PollOnce(); err != nil {
		return err
	}
	clock.Advance(ticks.FromDuration(s.ComputeWait()))
	return nil
}

func TestBlinkCadence(t *testing.T) {
	t.Parallel()

	clock := ticks.NewManual(0)
	s := looper.New(looper.Config{CycleInterval: 100 * time.Millisecond}, looper.WithSource(clock))
	pin := &recordPin{}
	p, err := New(s, Config{}, logx.Nop(), WithPin(pin))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Register(p)

	// 0ms on, 500ms off, 2000ms on, 2500ms off.
	for i := 0; i < 26; i++ {
		if err := cycle(s, clock); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}
	want := []bool{true, false, true, false}
	if len(pin.states) != len(want) {
		t.Fatalf("states=%v want %v", pin.states, want)
	}
	for i := range want {
		if pin.states[i] != want[i] {
			t.Fatalf("states=%v want %v", pin.states, want)
		}
	}
	if v, ok := s.GetField(Topic, "on"); !ok || v != false {
		t.Fatalf("topic on=%v ok=%v", v, ok)
	}
}

func TestShutdownTurnsPinOff(t *testing.T) {
	t.Parallel()

	clock := ticks.NewManual(0)
	s := looper.New(looper.Config{CycleInterval: 100 * time.Millisecond}, looper.WithSource(clock))
	pin := &recordPin{}
	p, _ := New(s, Config{On: "1s", Off: "1s"}, logx.Nop(), WithPin(pin))
	_ = p.PollIt()
	if !p.Lit() {
		t.Fatalf("expected pin lit after first poll")
	}
	if err := p.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if p.Lit() || pin.states[len(pin.states)-1] {
		t.Fatalf("pin still lit after shutdown: %v", pin.states)
	}
}

func TestPinErrorFailsPoll(t *testing.T) {
	t.Parallel()

	s := looper.New(looper.Config{CycleInterval: 100 * time.Millisecond}, looper.WithSource(ticks.NewManual(0)))
	boom := errors.New("gpio busy")
	p, _ := New(s, Config{}, logx.Nop(), WithPin(&recordPin{err: boom}))
	if err := p.PollIt(); !errors.Is(err, boom) {
		t.Fatalf("PollIt err=%v", err)
	}
}

func TestBadDuration(t *testing.T) {
	t.Parallel()

	s := looper.New(looper.Config{}, looper.WithSource(ticks.NewManual(0)))
	if _, err := New(s, Config{On: "fast"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for bad on duration")
	}
}
