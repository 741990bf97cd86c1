// Package heartbeat is the reference timer plugin: it fires on an interval or a cron
// schedule and publishes a counter other plugins can watch.
package heartbeat

import (
	"time"

	"pollooper/internal/config"
	"pollooper/internal/looper"
	"pollooper/internal/schedule"
	logx "pollooper/pkg/logx"
	"pollooper/pkg/ticks"
)

const (
	Name         = "heartbeat"
	DefaultTopic = "heartbeat"
)

// Config is the plugin block under plugins.heartbeat.config.
//
// Example:
//
//	"heartbeat": { "enabled": true, "config": { "schedule": "*/5 * * * *" } }
type Config struct {
	Schedule   string `json:"schedule,omitempty"`    // default "5s"
	StartAfter string `json:"start_after,omitempty"` // interval schedules only; default 1500ms
	Topic      string `json:"topic,omitempty"`       // default "heartbeat"
}

const (
	DefaultSchedule   = "5s"
	DefaultStartAfter = 1500 * time.Millisecond
)

type Option func(*Plugin)

// WithClock sets the wall clock used for cron schedules.
func WithClock(now func() time.Time) Option { return func(p *Plugin) { p.clock = now } }

type Plugin struct {
	s     *looper.Scheduler
	log   logx.Logger
	spec  schedule.Spec
	topic string
	clock func() time.Time

	due    ticks.Tick
	nextAt time.Time // cron only
	count  int64
}

func New(s *looper.Scheduler, cfg Config, log logx.Logger, opts ...Option) (*Plugin, error) {
	raw := cfg.Schedule
	if raw == "" {
		raw = DefaultSchedule
	}
	spec, err := schedule.Parse(raw)
	if err != nil {
		return nil, err
	}
	startAfter, err := config.ParseDurationOrDefault("plugins."+Name+".config.start_after", cfg.StartAfter, DefaultStartAfter)
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Plugin{
		s:     s,
		log:   log.With(logx.String("plugin", Name)),
		spec:  spec,
		topic: cfg.Topic,
		clock: time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	if p.topic == "" {
		p.topic = DefaultTopic
	}
	if spec.Kind == schedule.KindCron {
		p.arm()
	} else {
		p.due = s.ActiveDueAt(startAfter)
	}
	p.log.Debug("heartbeat scheduled", logx.String("schedule", spec.String()))
	return p, nil
}

func (p *Plugin) Name() string { return Name }

// Count returns how many times the heartbeat fired.
func (p *Plugin) Count() int64 { return p.count }

// arm schedules the next cron fire. Delays beyond the tick range are clamped and
// re-armed when the clamped tick comes due.
func (p *Plugin) arm() {
	now := p.clock()
	p.nextAt = p.spec.Next(now)
	p.due = p.s.ActiveDueAt(p.nextAt.Sub(now))
}

func (p *Plugin) PollIt() error {
	if !p.s.IsDue(p.due) {
		return nil
	}
	if p.spec.Kind == schedule.KindCron {
		now := p.clock()
		if now.Before(p.nextAt) {
			p.due = p.s.ActiveDueAt(p.nextAt.Sub(now))
			return nil
		}
	}

	p.count++
	p.s.SetTopic(p.topic, map[string]any{
		"count":    p.count,
		"schedule": p.spec.String(),
	})
	p.log.Debug("heartbeat", logx.Int64("count", p.count), logx.Uint64("tick", uint64(p.s.CycleStart())))

	if p.spec.Kind == schedule.KindCron {
		p.arm()
	} else {
		p.due = p.s.ActiveDueAt(p.spec.Every)
	}
	return nil
}

func (p *Plugin) Shutdown() error {
	p.log.Debug("heartbeat stopped", logx.Int64("count", p.count))
	return nil
}
