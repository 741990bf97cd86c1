package journal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pollooper/internal/eventbus"
	logx "pollooper/pkg/logx"
)

const writeTimeout = 2 * time.Second

// Writer appends bus events to a Store under one run id.
// It subscribes on construction so no event published after NewWriter is missed.
type Writer struct {
	store Store
	log   logx.Logger
	runID string
	seq   uint64

	events <-chan eventbus.Event
	unsub  func()
}

func NewWriter(store Store, bus eventbus.Bus, log logx.Logger) *Writer {
	if log.IsZero() {
		log = logx.Nop()
	}
	runID := uuid.NewString()
	ch, unsub := bus.Subscribe(256)
	return &Writer{
		store:  store,
		log:    log.With(logx.String("comp", "journal"), logx.String("run_id", runID)),
		runID:  runID,
		events: ch,
		unsub:  unsub,
	}
}

func (w *Writer) RunID() string { return w.runID }

// Run writes events until ctx is done or the run-stopped event was written.
// Events already buffered when ctx ends are still written.
func (w *Writer) Run(ctx context.Context) error {
	defer w.unsub()
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case e, ok := <-w.events:
			if !ok {
				return nil
			}
			w.write(e)
			if e.Kind == eventbus.RunStopped {
				return nil
			}
		}
	}
}

func (w *Writer) drain() {
	for {
		select {
		case e, ok := <-w.events:
			if !ok {
				return
			}
			w.write(e)
		default:
			return
		}
	}
}

func (w *Writer) write(e eventbus.Event) {
	w.seq++
	entry := Entry{
		RunID:   w.runID,
		Seq:     w.seq,
		At:      e.Time,
		Kind:    e.Kind,
		Tick:    e.Tick,
		Plugin:  e.Plugin,
		Message: e.Message,
		Err:     e.Err,
	}
	// A stopping supervisor must not lose the final records, so writes use their own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := w.store.Append(ctx, entry); err != nil {
		w.log.Warn("journal append failed", logx.String("kind", e.Kind), logx.Err(err))
	}
}
