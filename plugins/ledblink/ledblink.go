// Package ledblink toggles an output pin on a fixed on/off cadence.
package ledblink

import (
	"time"

	"pollooper/internal/config"
	"pollooper/internal/looper"
	logx "pollooper/pkg/logx"
	"pollooper/pkg/ticks"
)

const (
	Name  = "led_blink"
	Topic = "led"
)

// Pin is a single digital output.
type Pin interface {
	Set(on bool) error
}

// LogPin is the default pin. It only logs transitions.
type LogPin struct {
	Log   logx.Logger
	Label string
}

func (p LogPin) Set(on bool) error {
	state := "OFF"
	if on {
		state = "ON"
	}
	p.Log.Debug("led", logx.String("pin", p.Label), logx.String("state", state))
	return nil
}

type Config struct {
	On  string `json:"on,omitempty"`  // default 500ms
	Off string `json:"off,omitempty"` // default 1500ms
	Pin string `json:"pin,omitempty"` // label for the default pin
}

const (
	DefaultOn  = 500 * time.Millisecond
	DefaultOff = 1500 * time.Millisecond
)

type Option func(*Plugin)

// WithPin replaces the logging pin.
func WithPin(pin Pin) Option { return func(p *Plugin) { p.pin = pin } }

type Plugin struct {
	s   *looper.Scheduler
	log logx.Logger
	pin Pin

	on, off time.Duration
	lit     bool
	due     ticks.Tick
	toggles int
}

func New(s *looper.Scheduler, cfg Config, log logx.Logger, opts ...Option) (*Plugin, error) {
	on, err := config.ParseDurationOrDefault("plugins."+Name+".config.on", cfg.On, DefaultOn)
	if err != nil {
		return nil, err
	}
	off, err := config.ParseDurationOrDefault("plugins."+Name+".config.off", cfg.Off, DefaultOff)
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Plugin{
		s:   s,
		log: log.With(logx.String("plugin", Name)),
		on:  on,
		off: off,
		due: s.ActiveDueAt(0),
	}
	for _, o := range opts {
		o(p)
	}
	if p.pin == nil {
		label := cfg.Pin
		if label == "" {
			label = "led"
		}
		p.pin = LogPin{Log: p.log, Label: label}
	}
	return p, nil
}

func (p *Plugin) Name() string { return Name }

// Lit reports the last state written to the pin.
func (p *Plugin) Lit() bool { return p.lit }

// Toggles returns how many times the pin changed state.
func (p *Plugin) Toggles() int { return p.toggles }

func (p *Plugin) PollIt() error {
	if !p.s.IsDue(p.due) {
		return nil
	}
	next := !p.lit
	if err := p.pin.Set(next); err != nil {
		return err
	}
	p.lit = next
	p.toggles++
	p.s.SetField(Topic, "on", next)
	if next {
		p.due = p.s.ActiveDueAt(p.on)
	} else {
		p.due = p.s.ActiveDueAt(p.off)
	}
	return nil
}

// Shutdown leaves the pin off.
func (p *Plugin) Shutdown() error {
	p.lit = false
	return p.pin.Set(false)
}
