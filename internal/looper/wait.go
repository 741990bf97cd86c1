package looper

import (
	"context"
	"time"
)

// Waiter applies the duration returned by ComputeWait.
//
// The direct-mode waiter blocks the goroutine. A cooperative host instead runs its
// own queued work until the duration has elapsed. Wait must return early when ctx is done.
type Waiter interface {
	Wait(ctx context.Context, d time.Duration)
}

// WaiterFunc adapts a function to Waiter.
type WaiterFunc func(ctx context.Context, d time.Duration)

func (f WaiterFunc) Wait(ctx context.Context, d time.Duration) { f(ctx, d) }

// SleepWaiter blocks the calling goroutine for d.
type SleepWaiter struct{}

func (SleepWaiter) Wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
