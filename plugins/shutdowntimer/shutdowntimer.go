// Package shutdowntimer ends the run after a fixed amount of time.
package shutdowntimer

import (
	"fmt"
	"time"

	"pollooper/internal/config"
	"pollooper/internal/looper"
	logx "pollooper/pkg/logx"
	"pollooper/pkg/ticks"
)

const Name = "shutdown_timer"

// Config is the plugin block under plugins.shutdown_timer.config.
//
// The run time is the sum of the three fields. All zero disables the timer.
type Config struct {
	Hours   float64 `json:"hours,omitempty"`
	Minutes float64 `json:"minutes,omitempty"`
	Seconds float64 `json:"seconds,omitempty"`
	// After is an alternative Go duration string ("90s"). It is added to the other fields.
	After string `json:"after,omitempty"`
}

// RunTime returns the configured run time.
func (c Config) RunTime() (time.Duration, error) {
	if c.Hours < 0 || c.Minutes < 0 || c.Seconds < 0 {
		return 0, fmt.Errorf("plugins.%s: negative run time", Name)
	}
	after, err := config.ParseDurationOrDefault("plugins."+Name+".config.after", c.After, 0)
	if err != nil {
		return 0, err
	}
	d := time.Duration(c.Hours*float64(time.Hour)) +
		time.Duration(c.Minutes*float64(time.Minute)) +
		time.Duration(c.Seconds*float64(time.Second)) +
		after
	return d, nil
}

// Plugin requests shutdown once the run time has elapsed.
//
// Elapsed time is accumulated from tick differences between polls, so run times longer
// than the tick wraparound period still work.
type Plugin struct {
	s   *looper.Scheduler
	log logx.Logger

	runMS   int64
	elapsed int64
	last    ticks.Tick
	fired   bool
}

func New(s *looper.Scheduler, cfg Config, log logx.Logger) (*Plugin, error) {
	d, err := cfg.RunTime()
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Plugin{
		s:     s,
		log:   log.With(logx.String("plugin", Name)),
		runMS: d.Milliseconds(),
		last:  s.CurrentTick(),
	}
	if p.runMS > 0 {
		p.log.Info("shutdown timer armed", logx.Duration("after", d))
	}
	return p, nil
}

func (p *Plugin) Name() string { return Name }

// Elapsed returns the run time accumulated so far.
func (p *Plugin) Elapsed() time.Duration { return time.Duration(p.elapsed) * time.Millisecond }

func (p *Plugin) PollIt() error {
	if p.runMS <= 0 || p.fired {
		return nil
	}
	now := p.s.CurrentTick()
	if d := ticks.Diff(now, p.last); d > 0 {
		p.elapsed += int64(d)
	}
	p.last = now
	if p.elapsed >= p.runMS {
		p.fired = true
		p.log.Info("run time elapsed", logx.Duration("elapsed", p.Elapsed()))
		p.s.RequestShutdown()
	}
	return nil
}

func (p *Plugin) Shutdown() error { return nil }
