package looper

import (
	"time"

	"pollooper/internal/eventbus"
	logx "pollooper/pkg/logx"
	"pollooper/pkg/ticks"
)

// ComputeWait advances the cycle clock and returns how long to wait before the next pass.
// It never sleeps; the caller decides how to wait.
//
// With a zero interval the current tick becomes the cycle start and the wait is 0.
// If the next cycle is already due (backlog) the schedule restarts from the current
// tick and the wait is 0; missed cycles are dropped, not replayed. Otherwise the cycle
// start moves to the scheduled tick and the wait is the time left until it.
//
// Once shutdown was requested ComputeWait returns 0 and leaves the timing state alone.
func (s *Scheduler) ComputeWait() time.Duration {
	if !s.running.Load() {
		return 0
	}
	s.now = s.src.Now()
	if s.interval <= 0 {
		s.cycleStart = s.now
		s.nextCycle = s.now
		return 0
	}

	var wait int32
	if overrun := ticks.Diff(s.nextCycle, s.now); overrun <= 0 {
		s.metrics.IncBacklog()
		if s.suppressBacklog {
			s.suppressBacklog = false
		} else {
			s.log.Warn("schedule backlog: cycle overran its interval",
				logx.Uint64("next", uint64(s.nextCycle)),
				logx.Uint64("now", uint64(s.now)),
				logx.Int64("late_ms", int64(-overrun)),
			)
			s.bus.Publish(eventbus.Event{Kind: eventbus.CycleBacklog, Tick: uint32(s.now), Message: "cycle overran its interval"})
		}
		s.cycleStart = s.now
	} else {
		wait = overrun
		s.cycleStart = s.nextCycle
	}
	s.nextCycle = ticks.Add(s.cycleStart, s.interval)
	return ticks.ToDuration(wait)
}

// ActiveDueAt returns the tick at which a plugin timer of the given interval becomes due,
// counted from the current cycle start.
func (s *Scheduler) ActiveDueAt(interval time.Duration) ticks.Tick {
	return ticks.Add(s.cycleStart, ticks.FromDuration(interval))
}

// IsDue reports whether the current cycle started at or after due.
func (s *Scheduler) IsDue(due ticks.Tick) bool {
	return ticks.Diff(s.cycleStart, due) >= 0
}
