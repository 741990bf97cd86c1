package looper

import "time"

// Metrics receives cycle measurements. Implementations must be cheap and non-blocking.
type Metrics interface {
	ObserveCycle(pass, wait time.Duration)
	IncBacklog()
	IncPollFailure(plugin string)
	IncShutdownFailure(plugin string)
	SetPlugins(n int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveCycle(time.Duration, time.Duration) {}
func (nopMetrics) IncBacklog()                               {}
func (nopMetrics) IncPollFailure(string)                     {}
func (nopMetrics) IncShutdownFailure(string)                 {}
func (nopMetrics) SetPlugins(int)                            {}
