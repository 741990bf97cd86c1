package looper

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"pollooper/internal/eventbus"
	logx "pollooper/pkg/logx"
)

// Run drives the scheduler in direct mode, sleeping between cycles.
// It blocks until shutdown and returns the *PollFailure that ended the run, if any.
func (s *Scheduler) Run(ctx context.Context) error {
	return s.Drive(ctx, s.sleeper)
}

// Drive runs the poll/wait loop, handing every wait to w. Context cancellation counts as a
// shutdown request and is observed between cycles. The shutdown pass always runs before
// Drive returns.
func (s *Scheduler) Drive(ctx context.Context, w Waiter) (err error) {
	if !s.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return ErrAlreadyRun
	}
	if w == nil {
		w = s.sleeper
	}

	s.metrics.SetPlugins(len(s.plugins))
	s.log.Info("run started",
		logx.Int("plugins", len(s.plugins)),
		logx.Duration("interval", s.Interval()),
		logx.Bool("cooperative", s.cooperative),
	)
	s.bus.Publish(eventbus.Event{Kind: eventbus.RunStarted, Tick: uint32(s.now)})

	var failure error
	defer func() {
		if r := recover(); r != nil {
			pf := &PollFailure{Plugin: "looper", Index: -1, Err: fmt.Errorf("panic: %v", r), Stack: string(debug.Stack())}
			s.reportPollFailure(pf)
			failure = pf
		}
		s.shutdownAll()
		err = failure
	}()

	for s.running.Load() {
		if ctx.Err() != nil {
			s.requestShutdown("context canceled")
			break
		}
		passStart := time.Now()
		if perr := s.PollOnce(); perr != nil {
			s.reportPollFailure(perr)
			failure = perr
			break
		}
		pass := time.Since(passStart)
		if !s.running.Load() {
			break
		}
		wait := s.ComputeWait()
		s.metrics.ObserveCycle(pass, wait)
		w.Wait(ctx, wait)
	}
	return nil
}

// PollOnce polls every plugin registered when the pass starts, once, in registration order.
// Shutdown requests made during the pass do not cut it short. The first plugin error or
// panic stops the pass and is returned as *PollFailure.
func (s *Scheduler) PollOnce() error {
	plugins := s.plugins[:len(s.plugins):len(s.plugins)]
	for i, p := range plugins {
		if err := s.pollPlugin(i, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) pollPlugin(i int, p Plugin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PollFailure{Plugin: nameOf(p), Index: i, Err: fmt.Errorf("panic: %v", r), Stack: string(debug.Stack())}
		}
	}()
	if perr := p.PollIt(); perr != nil {
		return &PollFailure{Plugin: nameOf(p), Index: i, Err: perr}
	}
	return nil
}

func (s *Scheduler) reportPollFailure(err error) {
	pf, ok := err.(*PollFailure)
	if !ok {
		pf = &PollFailure{Plugin: "unknown", Index: -1, Err: err}
	}
	s.metrics.IncPollFailure(pf.Plugin)
	s.log.Error("plugin poll failed; shutting down",
		logx.String("plugin", pf.Plugin),
		logx.Int("index", pf.Index),
		logx.Err(pf.Err),
		logx.Stack(pf.Stack),
	)
	s.bus.Publish(eventbus.Event{Kind: eventbus.PollFailed, Tick: uint32(s.now), Plugin: pf.Plugin, Err: pf.Err.Error()})
}

func (s *Scheduler) shutdownAll() {
	s.running.Store(false)
	s.state.Store(int32(ShuttingDown))

	plugins := s.plugins[:len(s.plugins):len(s.plugins)]
	s.log.Info("poll completed; shutting down plugins", logx.Int("plugins", len(plugins)))

	failed := 0
	for i, p := range plugins {
		sf := s.shutdownPlugin(i, p)
		if sf == nil {
			continue
		}
		failed++
		s.metrics.IncShutdownFailure(sf.Plugin)
		s.log.Warn("plugin shutdown failed",
			logx.String("plugin", sf.Plugin),
			logx.Int("index", sf.Index),
			logx.Err(sf.Err),
			logx.Stack(sf.Stack),
		)
		s.bus.Publish(eventbus.Event{Kind: eventbus.ShutdownFailed, Tick: uint32(s.now), Plugin: sf.Plugin, Err: sf.Err.Error()})
	}

	s.state.Store(int32(Stopped))
	s.log.Info("that's all folks",
		logx.Int("plugins", len(plugins)),
		logx.Int("shutdown_failures", failed),
		logx.Any("topics", s.store.IDs()),
	)
	s.bus.Publish(eventbus.Event{Kind: eventbus.RunStopped, Tick: uint32(s.now)})
}

func (s *Scheduler) shutdownPlugin(i int, p Plugin) (sf *ShutdownFailure) {
	defer func() {
		if r := recover(); r != nil {
			sf = &ShutdownFailure{Plugin: nameOf(p), Index: i, Err: fmt.Errorf("panic: %v", r), Stack: string(debug.Stack())}
		}
	}()
	if err := p.Shutdown(); err != nil {
		return &ShutdownFailure{Plugin: nameOf(p), Index: i, Err: err}
	}
	return nil
}
