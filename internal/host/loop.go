// Package host is a minimal cooperative event loop for running the scheduler in
// cooperative mode.
//
// The scheduler hands every wait to the loop instead of sleeping. While the wait lasts the
// loop runs tasks submitted from other goroutines, on the scheduler goroutine, so they can
// touch the topic store without locking.
package host

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"pollooper/internal/looper"
	logx "pollooper/pkg/logx"
)

var ErrClosed = errors.New("host: loop closed")

// ErrQueueFull is returned by Submit when the task queue is at capacity.
var ErrQueueFull = errors.New("host: task queue full")

const defaultQueue = 64

type Option func(*Loop)

// WithQueue sets the task queue capacity.
func WithQueue(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.queueCap = n
		}
	}
}

func WithLogger(log logx.Logger) Option { return func(l *Loop) { l.log = log } }

type Loop struct {
	log      logx.Logger
	queueCap int
	tasks    chan func()
	closed   atomic.Bool

	ran    atomic.Uint64
	panics atomic.Uint64
}

func New(opts ...Option) *Loop {
	l := &Loop{queueCap: defaultQueue}
	for _, o := range opts {
		if o != nil {
			o(l)
		}
	}
	if l.log.IsZero() {
		l.log = logx.Nop()
	}
	l.log = l.log.With(logx.String("comp", "host"))
	l.tasks = make(chan func(), l.queueCap)
	return l
}

// Submit queues fn to run on the loop goroutine during the next wait. It never blocks.
func (l *Loop) Submit(fn func()) error {
	if fn == nil {
		return nil
	}
	if l.closed.Load() {
		return ErrClosed
	}
	select {
	case l.tasks <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// Wait implements looper.Waiter. It runs queued tasks until d has elapsed or ctx is done.
// With d <= 0 it only drains tasks that are already queued.
func (l *Loop) Wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		l.drain()
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			return
		case fn := <-l.tasks:
			l.exec(fn)
		}
	}
}

// Run drives s on the calling goroutine with the loop as its waiter. Tasks still queued
// when the scheduler stops are run before Run returns; later Submit calls fail.
func (l *Loop) Run(ctx context.Context, s *looper.Scheduler) error {
	err := s.Drive(ctx, l)
	l.closed.Store(true)
	l.drain()
	return err
}

// Stats returns the number of tasks run and the number that panicked.
func (l *Loop) Stats() (ran, panicked uint64) { return l.ran.Load(), l.panics.Load() }

func (l *Loop) drain() {
	for {
		select {
		case fn := <-l.tasks:
			l.exec(fn)
		default:
			return
		}
	}
}

func (l *Loop) exec(fn func()) {
	l.ran.Add(1)
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			l.log.Error("host task panicked", logx.Err(fmt.Errorf("panic: %v", r)), logx.Stack(string(debug.Stack())))
		}
	}()
	fn()
}
