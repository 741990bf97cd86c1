package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"pollooper/internal/config"
	"pollooper/internal/eventbus"
	"pollooper/internal/host"
	"pollooper/internal/journal"
	"pollooper/internal/looper"
	"pollooper/internal/metrics"
	"pollooper/internal/observability/debugsrv"
	"pollooper/internal/runtime/supervisor"
	"pollooper/plugins/trafficlights"
	logx "pollooper/pkg/logx"
	"pollooper/pkg/systemd"
	"pollooper/pkg/ticks"
)

type options struct {
	src      ticks.Source
	out      io.Writer
	notifier systemd.Notifier
}

type Option func(*options)

// WithSource replaces the monotonic tick source.
func WithSource(src ticks.Source) Option { return func(o *options) { o.src = src } }

// WithOutput sets where display plugins print. Nil keeps them log-only.
func WithOutput(w io.Writer) Option { return func(o *options) { o.out = w } }

// WithNotifier replaces the sd_notify client.
func WithNotifier(n systemd.Notifier) Option { return func(o *options) { o.notifier = n } }

// App owns one scheduler run and the background services around it.
type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	base logx.Logger // no comp field
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	reg     *prometheus.Registry
	metrics *metrics.Exporter
	store   journal.Store
	jw      *journal.Writer
	debug   *debugsrv.Service
	notify  systemd.Notifier

	sched   *looper.Scheduler
	loop    *host.Loop // cooperative mode only
	lights  *trafficlights.Set
	plugins []string

	stoppingOnce sync.Once
}

func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.notifier == nil {
		o.notifier = systemd.Daemon
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, base := logx.New(cfg.Logging.Logx())
	log := base.With(logx.String("comp", "app"))

	interval, err := cfg.Looper.CycleIntervalDuration()
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	exp, err := metrics.New(reg, metrics.Options{})
	if err != nil {
		return nil, err
	}

	// Journal (optional)
	var store journal.Store
	var jw *journal.Writer
	if jc, enabled, err := mapJournalConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := journal.Open(jc, base)
		if err != nil {
			return nil, err
		}
		store = st
		// Subscribe before the scheduler exists so run.started is never missed.
		jw = journal.NewWriter(st, bus, base)
		log.Info("journal enabled", logx.String("driver", jc.Driver), logx.String("run_id", jw.RunID()))
	}

	sopts := []looper.Option{
		looper.WithLogger(base),
		looper.WithBus(bus),
		looper.WithMetrics(exp),
	}
	if o.src != nil {
		sopts = append(sopts, looper.WithSource(o.src))
	}
	sched := looper.New(looper.Config{CycleInterval: interval, Cooperative: cfg.Looper.Cooperative}, sopts...)

	var loop *host.Loop
	if cfg.Looper.Cooperative {
		loop = host.New(host.WithLogger(base))
	}

	set, err := buildPlugins(cfg, sched, o.out, base)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}
	sched.Register(set.plugins...)

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		base:    base,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		reg:     reg,
		metrics: exp,
		store:   store,
		jw:      jw,
		notify:  o.notifier,
		sched:   sched,
		loop:    loop,
		lights:  set.lights,
		plugins: set.names,
	}
	a.debug = debugsrv.New(mapDebugConfig(cfg), reg, a.health, base)
	return a, nil
}

func (a *App) Scheduler() *looper.Scheduler { return a.sched }

// Registry returns the Prometheus registry served on /metrics.
func (a *App) Registry() *prometheus.Registry { return a.reg }

// RunID returns the journal run id, or "" without a journal.
func (a *App) RunID() string {
	if a.jw == nil {
		return ""
	}
	return a.jw.RunID()
}

func (a *App) health() debugsrv.Health {
	h := debugsrv.Health{
		State:       a.sched.State().String(),
		Running:     a.sched.Running(),
		Plugins:     len(a.plugins),
		Cooperative: a.sched.Cooperative(),
	}
	if a.sup != nil {
		h.Background = a.sup.Active()
	}
	return h
}

// Start launches the background services. It does not run the scheduler.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.base.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, _, err := mapJournalConfig(cfg); err != nil {
			return err
		}
		return validatePlugins(cfg)
	})

	if a.jw != nil {
		a.sup.Go("journal.writer", a.jw.Run)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.onEvent(e)
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithRestartBackoff(250*time.Millisecond, 5*time.Second))

	a.debug.Start(a.sup.Context())

	if sent, err := systemd.Ready(a.notify); err != nil {
		a.log.Warn("systemd ready notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified", logx.String("state", "ready"))
	}
	_, _ = systemd.Status(a.notify, "polling "+strings.Join(a.plugins, ","))

	a.log.Info("app started", logx.String("plugins", strings.Join(a.plugins, ",")))
	return nil
}

func (a *App) onEvent(e eventbus.Event) {
	a.log.Debug("event",
		logx.String("kind", e.Kind),
		logx.Time("time", e.Time),
		logx.Uint64("tick", uint64(e.Tick)),
		logx.String("plugin", e.Plugin),
	)
	switch e.Kind {
	case eventbus.ShutdownRequested, eventbus.PollFailed:
		a.stoppingOnce.Do(func() {
			if _, err := systemd.Stopping(a.notify); err != nil {
				a.log.Warn("systemd stopping notify failed", logx.Err(err))
			}
		})
	}
}

// applyConfig fans a committed reload out to the parts that can change live.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs, pluginChanged := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)
	if len(pluginChanged) > 0 {
		a.log.Debug("plugin config changes detected", logx.Any("plugins", pluginChanged))
	}

	if _, err := systemd.Reloading(a.notify); err != nil {
		a.log.Warn("systemd reloading notify failed", logx.Err(err))
	}
	a.logs.Apply(newCfg.Logging.Logx())
	a.debug.Reconfigure(ctx, mapDebugConfig(newCfg))
	if _, err := systemd.Ready(a.notify); err != nil {
		a.log.Warn("systemd ready notify failed", logx.Err(err))
	}

	if config.RestartRequired(sections) {
		a.log.Warn("config changed; restart required for changes to take effect", fields...)
		return
	}
	a.log.Info("config reloaded", fields...)
}

// Run drives the scheduler until it stops. It returns the *looper.PollFailure that ended
// the run, if any.
func (a *App) Run(ctx context.Context) error {
	if a.loop != nil {
		return a.loop.Run(ctx, a.sched)
	}
	return a.sched.Run(ctx)
}

// RequestCrossing presses the traffic lights crossing button. It reports false when the
// traffic lights are not enabled. Safe from any goroutine.
func (a *App) RequestCrossing() bool {
	if a.lights == nil {
		return false
	}
	if a.loop != nil {
		err := a.loop.Submit(func() { trafficlights.RequestCrossing(a.sched) })
		if err == nil {
			return true
		}
		a.log.Warn("crossing request not queued; latching instead", logx.Err(err))
	}
	a.lights.Crossing.Press()
	return true
}

// Reason maps a Run result to a StopReason.
func Reason(runErr error, signaled bool) StopReason {
	var pf *looper.PollFailure
	switch {
	case errors.As(runErr, &pf):
		return StopPollFailure
	case runErr != nil:
		return StopFatalError
	case signaled:
		return StopSignal
	default:
		return StopRequested
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if a.sup == nil {
		return a.closeStores()
	}

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
				max = time.Until(dl)
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// The journal writer exits on its own after run.stopped; give it a moment to flush.
	step("journal.writer", time.Second, func(c context.Context) error {
		for a.jw != nil && a.taskActive("journal.writer") {
			select {
			case <-c.Done():
				return c.Err()
			case <-time.After(10 * time.Millisecond):
			}
		}
		return nil
	})
	step("debug", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	a.sup.Cancel()
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("journal", time.Second, func(context.Context) error { return a.closeStores() })

	a.log.Info("stopped", logx.String("reason", string(reason)))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func (a *App) taskActive(name string) bool {
	for _, t := range a.sup.Tasks() {
		if t.Name == name {
			return t.Active
		}
	}
	return false
}

func (a *App) closeStores() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}
