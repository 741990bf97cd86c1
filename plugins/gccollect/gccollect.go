// Package gccollect forces a garbage collection on a fixed period.
package gccollect

import (
	"runtime"
	"runtime/debug"
	"time"

	"pollooper/internal/config"
	"pollooper/internal/looper"
	logx "pollooper/pkg/logx"
	"pollooper/pkg/ticks"
)

const (
	Name  = "gc"
	Topic = "memory"
)

const DefaultEvery = 5 * time.Second

type Config struct {
	Every string `json:"every,omitempty"` // default 5s
	// FreeOSMemory also returns freed pages to the OS. It is slower than a plain GC.
	FreeOSMemory bool `json:"free_os_memory,omitempty"`
}

type Option func(*Plugin)

// WithCollector replaces the collection call. Tests use it to avoid real GC passes.
func WithCollector(fn func()) Option { return func(p *Plugin) { p.collect = fn } }

type Plugin struct {
	s       *looper.Scheduler
	log     logx.Logger
	every   time.Duration
	collect func()

	due  ticks.Tick
	runs int
}

func New(s *looper.Scheduler, cfg Config, log logx.Logger, opts ...Option) (*Plugin, error) {
	every, err := config.ParseDurationOrDefault("plugins."+Name+".config.every", cfg.Every, DefaultEvery)
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Plugin{
		s:       s,
		log:     log.With(logx.String("plugin", Name)),
		every:   every,
		collect: runtime.GC,
	}
	if cfg.FreeOSMemory {
		p.collect = debug.FreeOSMemory
	}
	for _, o := range opts {
		o(p)
	}
	p.due = s.ActiveDueAt(every)
	return p, nil
}

func (p *Plugin) Name() string { return Name }

// Runs returns how many collections were forced.
func (p *Plugin) Runs() int { return p.runs }

func (p *Plugin) PollIt() error {
	if !p.s.IsDue(p.due) {
		return nil
	}
	p.due = p.s.ActiveDueAt(p.every)

	// The collection blocks the loop; the overrun it causes is expected.
	p.s.SuppressNextBacklogWarning()
	start := time.Now()
	p.collect()
	took := time.Since(start)
	p.runs++

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	p.s.SetTopic(Topic, map[string]any{
		"heap_alloc": ms.HeapAlloc,
		"heap_sys":   ms.HeapSys,
		"num_gc":     ms.NumGC,
	})
	p.log.Debug("gc forced",
		logx.Duration("took", took),
		logx.Uint64("heap_alloc", ms.HeapAlloc),
		logx.Uint64("num_gc", uint64(ms.NumGC)),
	)
	return nil
}

func (p *Plugin) Shutdown() error { return nil }
