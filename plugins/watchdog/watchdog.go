// Package watchdog feeds the systemd service watchdog from the poll loop, so a stalled loop
// gets the unit restarted.
package watchdog

import (
	"time"

	"golang.org/x/time/rate"

	"pollooper/internal/config"
	"pollooper/internal/looper"
	logx "pollooper/pkg/logx"
	"pollooper/pkg/systemd"
)

const Name = "watchdog"

// Config is the plugin block under plugins.watchdog.config.
//
// Timeout defaults to the unit's WatchdogSec. Without it the plugin stays idle.
type Config struct {
	Timeout string `json:"timeout,omitempty"`
}

type Option func(*Plugin)

func WithNotifier(n systemd.Notifier) Option { return func(p *Plugin) { p.notify = n } }

// WithClock sets the clock the feed limiter reads.
func WithClock(now func() time.Time) Option { return func(p *Plugin) { p.clock = now } }

// Plugin sends WATCHDOG=1 at most twice per timeout, whatever the cycle interval.
type Plugin struct {
	log     logx.Logger
	notify  systemd.Notifier
	clock   func() time.Time
	timeout time.Duration
	lim     *rate.Limiter

	feeds    uint64
	failures uint64
}

func New(s *looper.Scheduler, cfg Config, log logx.Logger, opts ...Option) (*Plugin, error) {
	timeout, err := config.ParseDurationField("plugins."+Name+".config.timeout", cfg.Timeout)
	if err != nil {
		return nil, err
	}
	if timeout == 0 {
		if timeout, err = systemd.WatchdogInterval(); err != nil {
			return nil, err
		}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Plugin{
		log:     log.With(logx.String("plugin", Name)),
		notify:  systemd.Daemon,
		clock:   time.Now,
		timeout: timeout,
	}
	for _, o := range opts {
		o(p)
	}
	if timeout <= 0 {
		p.log.Info("watchdog idle: no timeout configured and WatchdogSec unset")
		return p, nil
	}
	if s != nil && s.Interval() >= timeout/2 {
		p.log.Warn("cycle interval leaves little watchdog margin",
			logx.Duration("interval", s.Interval()),
			logx.Duration("timeout", timeout),
		)
	}
	p.lim = rate.NewLimiter(rate.Every(timeout/2), 1)
	return p, nil
}

func (p *Plugin) Name() string { return Name }

// Active reports whether the plugin feeds anything.
func (p *Plugin) Active() bool { return p.lim != nil }

func (p *Plugin) Feeds() uint64 { return p.feeds }

func (p *Plugin) PollIt() error {
	if p.lim == nil || !p.lim.AllowN(p.clock(), 1) {
		return nil
	}
	sent, err := systemd.Watchdog(p.notify)
	if err != nil {
		// systemd restarts us if this keeps failing; the loop itself is fine.
		p.failures++
		p.log.Warn("watchdog notify failed", logx.Err(err), logx.Uint64("failures", p.failures))
		return nil
	}
	if sent {
		p.feeds++
	}
	return nil
}

func (p *Plugin) Shutdown() error { return nil }
