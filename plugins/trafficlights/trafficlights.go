// Package trafficlights is a pedestrian crossing built from three plugins that only share
// the "state" topic: a Controller running the light sequence, a CrossingRequest latching
// button presses, and a View rendering the display when it changes.
package trafficlights

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"pollooper/internal/looper"
	"pollooper/internal/topics"
	logx "pollooper/pkg/logx"
	"pollooper/pkg/ticks"
)

const (
	Name  = "traffic_lights"
	Topic = "state"
)

type Light string

const (
	Red    Light = "RED"
	Green  Light = "GRN"
	Yellow Light = "YEL"
)

// State is the record stored under Topic.
type State struct {
	LightOn         Light
	WalkDisplay     string
	CrossingRequest bool
}

// Config holds phase lengths in whole seconds.
type Config struct {
	RedSeconds      int `json:"red_seconds,omitempty"`
	GreenSeconds    int `json:"green_seconds,omitempty"`
	YellowSeconds   int `json:"yellow_seconds,omitempty"`
	DontWalkSeconds int `json:"dont_walk_seconds,omitempty"`
}

func DefaultConfig() Config {
	return Config{RedSeconds: 10, GreenSeconds: 15, YellowSeconds: 4, DontWalkSeconds: 8}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RedSeconds == 0 {
		c.RedSeconds = d.RedSeconds
	}
	if c.GreenSeconds == 0 {
		c.GreenSeconds = d.GreenSeconds
	}
	if c.YellowSeconds == 0 {
		c.YellowSeconds = d.YellowSeconds
	}
	if c.DontWalkSeconds == 0 {
		c.DontWalkSeconds = d.DontWalkSeconds
	}
	return c
}

func (c Config) Validate() error {
	if c.RedSeconds < 0 || c.GreenSeconds < 0 || c.YellowSeconds < 0 || c.DontWalkSeconds < 0 {
		return fmt.Errorf("plugins.%s: phase lengths must be >= 0", Name)
	}
	c = c.withDefaults()
	if c.DontWalkSeconds > c.GreenSeconds {
		return fmt.Errorf("plugins.%s: dont_walk_seconds (%d) exceeds green_seconds (%d)", Name, c.DontWalkSeconds, c.GreenSeconds)
	}
	return nil
}

// Controller advances the light sequence once per second. A crossing request only
// shortens the green phase, down to the dont-walk countdown.
type Controller struct {
	s     *looper.Scheduler
	log   logx.Logger
	cfg   Config
	state *State

	due     ticks.Tick
	counter int
	next    Light
}

func NewController(s *looper.Scheduler, cfg Config, log logx.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Controller{
		s:     s,
		log:   log.With(logx.String("plugin", "tl_controller")),
		cfg:   cfg.withDefaults(),
		state: topics.Record[State](s.Topics(), Topic),
		due:   s.ActiveDueAt(0),
		next:  Red,
	}
	*c.state = State{LightOn: Red, WalkDisplay: "DW"}
	s.Topics().Touch(Topic)
	return c, nil
}

func (c *Controller) Name() string { return "tl_controller" }

func (c *Controller) PollIt() error {
	if !c.s.IsDue(c.due) {
		return nil
	}
	c.due = c.s.ActiveDueAt(time.Second)

	st := c.state
	st.LightOn = c.next
	switch st.LightOn {
	case Red:
		if c.counter <= 0 {
			c.counter = c.cfg.RedSeconds
			st.WalkDisplay = "DW"
		} else {
			c.counter--
			if c.counter < 1 {
				c.next = Green
			}
		}
	case Green:
		if c.counter <= 0 {
			c.counter = c.cfg.GreenSeconds
			st.WalkDisplay = "WK"
			st.CrossingRequest = false
		} else {
			c.counter--
			if c.counter < 1 {
				c.next = Yellow
			} else if st.CrossingRequest && c.counter > c.cfg.DontWalkSeconds {
				c.counter = c.cfg.DontWalkSeconds
			}
			if c.counter <= c.cfg.DontWalkSeconds {
				st.WalkDisplay = fmt.Sprintf("DW %02d", c.counter)
			}
		}
	case Yellow:
		if c.counter <= 0 {
			c.counter = c.cfg.YellowSeconds
			st.WalkDisplay = "DW"
		} else {
			c.counter--
			if c.counter < 1 {
				c.next = Red
			}
		}
	default:
		c.log.Warn("unknown light", logx.String("light_on", string(st.LightOn)))
	}
	c.s.Topics().Touch(Topic)
	return nil
}

func (c *Controller) Shutdown() error { return nil }

// Button is an input polled for presses, such as a GPIO line.
type Button interface {
	Pressed() bool
}

// CrossingRequest copies button presses into the shared state.
type CrossingRequest struct {
	s      *looper.Scheduler
	button Button
	pushed atomic.Bool
	state  *State
}

func NewCrossingRequest(s *looper.Scheduler, button Button) *CrossingRequest {
	return &CrossingRequest{
		s:      s,
		button: button,
		state:  topics.Record[State](s.Topics(), Topic),
	}
}

func (r *CrossingRequest) Name() string { return "tl_crossing_request" }

// Press latches a crossing request. Safe from any goroutine, e.g. a signal handler.
func (r *CrossingRequest) Press() { r.pushed.Store(true) }

func (r *CrossingRequest) PollIt() error {
	pressed := r.pushed.Swap(false)
	if r.button != nil && r.button.Pressed() {
		pressed = true
	}
	if pressed {
		r.state.CrossingRequest = true
		r.s.Topics().Touch(Topic)
	}
	return nil
}

func (r *CrossingRequest) Shutdown() error { return nil }

// View renders "<light> <walk>" whenever it changes.
type View struct {
	log   logx.Logger
	out   io.Writer
	state *State

	display  string
	previous string
	renders  int
}

// NewView logs each display change; a non-nil out also gets one line per change.
func NewView(s *looper.Scheduler, out io.Writer, log logx.Logger) *View {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &View{
		log:   log.With(logx.String("plugin", "tl_view")),
		out:   out,
		state: topics.Record[State](s.Topics(), Topic),
	}
}

func (v *View) Name() string { return "tl_view" }

// Display returns the last rendered display.
func (v *View) Display() string { return v.previous }

func (v *View) PollIt() error {
	v.display = string(v.state.LightOn) + " " + v.state.WalkDisplay
	if v.display == v.previous {
		return nil
	}
	v.previous = v.display
	v.renders++
	v.log.Info("display", logx.String("display", v.display))
	if v.out != nil {
		if _, err := fmt.Fprintln(v.out, v.display); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown leaves the lights red.
func (v *View) Shutdown() error {
	v.state.LightOn = Red
	v.state.WalkDisplay = "shutdown"
	return v.PollIt()
}

// Set is the three cooperating plugins, in poll order.
type Set struct {
	Controller *Controller
	Crossing   *CrossingRequest
	View       *View
}

// New builds the controller, crossing request and view on one scheduler.
func New(s *looper.Scheduler, cfg Config, out io.Writer, log logx.Logger) (*Set, error) {
	c, err := NewController(s, cfg, log)
	if err != nil {
		return nil, err
	}
	return &Set{
		Controller: c,
		Crossing:   NewCrossingRequest(s, nil),
		View:       NewView(s, out, log),
	}, nil
}

// Plugins returns the set in the order it must be registered.
func (t *Set) Plugins() []looper.Plugin {
	return []looper.Plugin{t.Controller, t.Crossing, t.View}
}

// RequestCrossing sets the crossing flag directly in the shared state.
// It must run on the loop goroutine, e.g. through host.Loop.Submit.
func RequestCrossing(s *looper.Scheduler) {
	topics.Record[State](s.Topics(), Topic).CrossingRequest = true
	s.Topics().Touch(Topic)
}
