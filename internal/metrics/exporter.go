// Package metrics exports scheduler cycle measurements to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"pollooper/internal/looper"
)

const defaultNamespace = "pollooper"

// Options controls collector configuration.
type Options struct {
	Namespace string
	// PassBuckets and WaitBuckets default to millisecond-range buckets suited to cycle
	// intervals between 1ms and a few seconds.
	PassBuckets []float64
	WaitBuckets []float64
}

var defaultBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}

// Exporter adapts looper.Metrics to Prometheus collectors.
type Exporter struct {
	cycles           prom.Counter
	backlog          prom.Counter
	pollFailures     *prom.CounterVec
	shutdownFailures *prom.CounterVec
	passSeconds      prom.Histogram
	waitSeconds      prom.Histogram
	plugins          prom.Gauge
}

var _ looper.Metrics = (*Exporter)(nil)

// New creates and registers the collectors. Registering twice on the same registry
// reuses the existing collectors.
func New(reg prom.Registerer, opts Options) (*Exporter, error) {
	ns := opts.Namespace
	if ns == "" {
		ns = defaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	passBuckets := opts.PassBuckets
	if len(passBuckets) == 0 {
		passBuckets = defaultBuckets
	}
	waitBuckets := opts.WaitBuckets
	if len(waitBuckets) == 0 {
		waitBuckets = defaultBuckets
	}

	e := &Exporter{
		cycles: prom.NewCounter(prom.CounterOpts{
			Namespace: ns, Name: "cycles_total",
			Help: "Completed poll passes followed by a wait step.",
		}),
		backlog: prom.NewCounter(prom.CounterOpts{
			Namespace: ns, Name: "backlog_total",
			Help: "Cycles whose deadline had already passed, including suppressed warnings.",
		}),
		pollFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: ns, Name: "poll_failures_total",
			Help: "Plugin poll failures. Any failure ends the run.",
		}, []string{"plugin"}),
		shutdownFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: ns, Name: "shutdown_failures_total",
			Help: "Plugin shutdown failures.",
		}, []string{"plugin"}),
		passSeconds: prom.NewHistogram(prom.HistogramOpts{
			Namespace: ns, Name: "poll_pass_seconds",
			Help:    "Time spent polling all plugins once.",
			Buckets: passBuckets,
		}),
		waitSeconds: prom.NewHistogram(prom.HistogramOpts{
			Namespace: ns, Name: "cycle_wait_seconds",
			Help:    "Wait computed before the next cycle; 0 on backlog.",
			Buckets: waitBuckets,
		}),
		plugins: prom.NewGauge(prom.GaugeOpts{
			Namespace: ns, Name: "plugins",
			Help: "Registered plugins at run start.",
		}),
	}

	var err error
	if e.cycles, err = registerCollector(reg, e.cycles); err != nil {
		return nil, err
	}
	if e.backlog, err = registerCollector(reg, e.backlog); err != nil {
		return nil, err
	}
	if e.pollFailures, err = registerCollector(reg, e.pollFailures); err != nil {
		return nil, err
	}
	if e.shutdownFailures, err = registerCollector(reg, e.shutdownFailures); err != nil {
		return nil, err
	}
	if e.passSeconds, err = registerCollector(reg, e.passSeconds); err != nil {
		return nil, err
	}
	if e.waitSeconds, err = registerCollector(reg, e.waitSeconds); err != nil {
		return nil, err
	}
	if e.plugins, err = registerCollector(reg, e.plugins); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Exporter) ObserveCycle(pass, wait time.Duration) {
	if e == nil {
		return
	}
	e.cycles.Inc()
	e.passSeconds.Observe(pass.Seconds())
	e.waitSeconds.Observe(wait.Seconds())
}

func (e *Exporter) IncBacklog() {
	if e == nil {
		return
	}
	e.backlog.Inc()
}

func (e *Exporter) IncPollFailure(plugin string) {
	if e == nil {
		return
	}
	e.pollFailures.WithLabelValues(normalizeLabel(plugin, "unknown")).Inc()
}

func (e *Exporter) IncShutdownFailure(plugin string) {
	if e == nil {
		return
	}
	e.shutdownFailures.WithLabelValues(normalizeLabel(plugin, "unknown")).Inc()
}

func (e *Exporter) SetPlugins(n int) {
	if e == nil {
		return
	}
	e.plugins.Set(float64(n))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var already prom.AlreadyRegisteredError
	if errors.As(err, &already) {
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}
	return collector, err
}
