// Package eventbus carries lifecycle events out of the scheduler loop.
//
// Contract:
//   - Publish MUST be non-blocking; the scheduler calls it between plugin polls.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers drop events (bounded backpressure).
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event kinds published by the scheduler.
const (
	RunStarted        = "run.started"
	CycleBacklog      = "cycle.backlog"
	PollFailed        = "poll.failed"
	ShutdownRequested = "shutdown.requested"
	ShutdownFailed    = "shutdown.failed"
	RunStopped        = "run.stopped"
)

// Event is a small, JSON-friendly lifecycle signal.
type Event struct {
	Kind    string    `json:"kind"`
	Time    time.Time `json:"time"`
	Tick    uint32    `json:"tick"`
	Plugin  string    `json:"plugin,omitempty"`
	Message string    `json:"message,omitempty"`
	Err     string    `json:"err,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Deliver under the read lock so unsubscribe (write lock) never closes a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Discard is a Bus that drops everything.
var Discard Bus = discard{}

type discard struct{}

func (discard) Publish(Event) {}

func (discard) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
