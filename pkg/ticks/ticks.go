package ticks

import (
	"math"
	"sync/atomic"
	"time"
)

// Tick is a millisecond counter value that wraps on overflow.
type Tick uint32

// MaxDelta is the largest forward distance Diff can report.
const MaxDelta = math.MaxInt32

// Add returns t advanced by deltaMS milliseconds, wrapping on overflow.
// A negative delta moves backwards.
func Add(t Tick, deltaMS int32) Tick {
	return t + Tick(uint32(deltaMS))
}

// Diff returns a - b as a signed distance in milliseconds.
// A result >= 0 means a is at or after b, even if the counter wrapped in between.
func Diff(a, b Tick) int32 {
	return int32(uint32(a) - uint32(b))
}

// FromDuration converts d to whole milliseconds, clamped to the range Diff can represent.
func FromDuration(d time.Duration) int32 {
	ms := d.Milliseconds()
	switch {
	case ms > MaxDelta:
		return MaxDelta
	case ms < math.MinInt32:
		return math.MinInt32
	default:
		return int32(ms)
	}
}

// ToDuration converts a millisecond distance to a time.Duration.
func ToDuration(ms int32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Seconds converts seconds to milliseconds, rounding to the nearest millisecond.
func Seconds(s float64) int32 { return int32(math.Round(s * 1000)) }

// Minutes converts minutes to milliseconds.
func Minutes(m float64) int32 { return Seconds(m * 60) }

// Hours converts hours to milliseconds.
func Hours(h float64) int32 { return Minutes(h * 60) }

// Source reads the current tick.
type Source interface {
	Now() Tick
}

// Monotonic reads the process monotonic clock in milliseconds.
// It is never reset; the zero point is fixed when the source is created.
type Monotonic struct {
	start  time.Time
	offset Tick
}

// MonotonicOption configures NewMonotonic.
type MonotonicOption func(*Monotonic)

// WithOffset makes the first reading start at t instead of 0.
// Useful for exercising the wrap point on a real clock.
func WithOffset(t Tick) MonotonicOption {
	return func(m *Monotonic) { m.offset = t }
}

// NewMonotonic returns a Source backed by time.Since.
func NewMonotonic(opts ...MonotonicOption) *Monotonic {
	m := &Monotonic{start: time.Now()}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Monotonic) Now() Tick {
	ms := time.Since(m.start).Milliseconds()
	return m.offset + Tick(uint32(uint64(ms)))
}

// Manual is a Source whose value only changes when told to.
// Safe for concurrent use.
type Manual struct {
	v atomic.Uint32
}

// NewManual returns a Manual source reading start.
func NewManual(start Tick) *Manual {
	m := &Manual{}
	m.v.Store(uint32(start))
	return m
}

func (m *Manual) Now() Tick { return Tick(m.v.Load()) }

// Set moves the source to t.
func (m *Manual) Set(t Tick) { m.v.Store(uint32(t)) }

// Advance moves the source forward by ms milliseconds and returns the new value.
func (m *Manual) Advance(ms int32) Tick {
	for {
		old := m.v.Load()
		next := uint32(Add(Tick(old), ms))
		if m.v.CompareAndSwap(old, next) {
			return Tick(next)
		}
	}
}
