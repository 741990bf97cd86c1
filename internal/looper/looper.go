package looper

import (
	"fmt"
	"sync/atomic"
	"time"

	"pollooper/internal/eventbus"
	"pollooper/internal/topics"
	logx "pollooper/pkg/logx"
	"pollooper/pkg/ticks"
)

// Plugin is a unit polled once per cycle.
//
// PollIt must not block for long. Returning an error ends the run for every plugin.
// Shutdown is best-effort; its error is logged and the next plugin is still shut down.
type Plugin interface {
	PollIt() error
	Shutdown() error
}

// Namer is optional; it names a plugin in logs and events.
type Namer interface {
	Name() string
}

// State is the scheduler lifecycle state.
type State int32

const (
	Idle State = iota
	Running
	ShuttingDown
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting_down"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config holds construction parameters.
type Config struct {
	// CycleInterval is the length of one cycle. 0 means cycles are paced externally.
	CycleInterval time.Duration
	// Cooperative marks a scheduler driven by a host loop (see internal/host) instead of Run.
	Cooperative bool
}

type Option func(*Scheduler)

func WithSource(src ticks.Source) Option { return func(s *Scheduler) { s.src = src } }

func WithLogger(log logx.Logger) Option { return func(s *Scheduler) { s.log = log } }

func WithBus(bus eventbus.Bus) Option { return func(s *Scheduler) { s.bus = bus } }

func WithMetrics(m Metrics) Option { return func(s *Scheduler) { s.metrics = m } }

// WithSleeper replaces the waiter Run uses between cycles.
func WithSleeper(w Waiter) Option { return func(s *Scheduler) { s.sleeper = w } }

// Scheduler drives registered plugins. Create it with New, Register plugins, then Run once.
type Scheduler struct {
	interval    int32 // ms
	cooperative bool

	src     ticks.Source
	log     logx.Logger
	bus     eventbus.Bus
	metrics Metrics
	sleeper Waiter

	// Timing state. Only touched by the loop goroutine.
	now        ticks.Tick
	cycleStart ticks.Tick
	nextCycle  ticks.Tick

	suppressBacklog bool

	plugins []Plugin
	store   *topics.Store

	running atomic.Bool
	state   atomic.Int32
}

func New(cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		interval:    ticks.FromDuration(cfg.CycleInterval),
		cooperative: cfg.Cooperative,
		sleeper:     SleepWaiter{},
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	if s.interval < 0 {
		s.interval = 0
	}
	if s.src == nil {
		s.src = ticks.NewMonotonic()
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("comp", "looper"))
	if s.bus == nil {
		s.bus = eventbus.Discard
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.sleeper == nil {
		s.sleeper = SleepWaiter{}
	}

	s.now = s.src.Now()
	s.cycleStart = s.now
	s.nextCycle = ticks.Add(s.cycleStart, s.interval)
	s.store = topics.NewStore(func() ticks.Tick { return s.now })
	s.running.Store(true)
	return s
}

// Register appends plugins to the poll order. A pass already in progress is not affected;
// the plugins are polled from the next pass on.
func (s *Scheduler) Register(plugins ...Plugin) {
	if s.State() == Stopped {
		s.log.Warn("register after stop ignored", logx.Int("count", len(plugins)))
		return
	}
	for _, p := range plugins {
		if p == nil {
			continue
		}
		s.plugins = append(s.plugins, p)
		s.log.Debug("plugin registered", logx.String("plugin", nameOf(p)), logx.Int("index", len(s.plugins)-1))
	}
}

// RequestShutdown stops the loop after the current pass. Safe from any goroutine; idempotent.
func (s *Scheduler) RequestShutdown() { s.requestShutdown("requested") }

func (s *Scheduler) requestShutdown(reason string) {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.log.Info("shutdown requested", logx.String("reason", reason))
	s.bus.Publish(eventbus.Event{Kind: eventbus.ShutdownRequested, Message: reason})
}

// SuppressNextBacklogWarning silences the warning for the next overrun only.
// Plugins call it right before work they know will blow the cycle budget.
func (s *Scheduler) SuppressNextBacklogWarning() { s.suppressBacklog = true }

func (s *Scheduler) Running() bool { return s.running.Load() }

func (s *Scheduler) State() State { return State(s.state.Load()) }

func (s *Scheduler) Cooperative() bool { return s.cooperative }

func (s *Scheduler) Interval() time.Duration { return ticks.ToDuration(s.interval) }

// Len returns the number of registered plugins.
func (s *Scheduler) Len() int { return len(s.plugins) }

// Now returns the tick sampled by the last ComputeWait (or New).
func (s *Scheduler) Now() ticks.Tick { return s.now }

// CurrentTick reads the tick source directly.
func (s *Scheduler) CurrentTick() ticks.Tick { return s.src.Now() }

// CycleStart returns the tick that marks the start of the current cycle.
func (s *Scheduler) CycleStart() ticks.Tick { return s.cycleStart }

// NextCycle returns the tick at which the next cycle is due.
func (s *Scheduler) NextCycle() ticks.Tick { return s.nextCycle }

// Topics returns the shared message store.
func (s *Scheduler) Topics() *topics.Store { return s.store }

// GetTopic returns the shared topic, creating it empty if needed.
func (s *Scheduler) GetTopic(id string) *topics.Topic { return s.store.Get(id) }

// SetTopic merges fields into the topic and stamps its last update.
func (s *Scheduler) SetTopic(id string, fields map[string]any) *topics.Topic {
	return s.store.Set(id, fields)
}

func (s *Scheduler) SetField(id, field string, v any) { s.store.SetField(id, field, v) }

// GetField returns ok == false when the topic or field is absent.
func (s *Scheduler) GetField(id, field string) (any, bool) { return s.store.GetField(id, field) }

func nameOf(p Plugin) string {
	if n, ok := p.(Namer); ok {
		if name := n.Name(); name != "" {
			return name
		}
	}
	return fmt.Sprintf("%T", p)
}
