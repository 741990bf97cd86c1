// Package looper is the cooperative polling scheduler.
//
// A Scheduler owns an ordered list of plugins and drives them in cycles:
//
//	poll every plugin once (registration order) -> compute wait -> wait -> repeat
//
// Everything a plugin does happens on the goroutine that calls Run/Drive. There is no
// preemption; a plugin that blocks stalls every other plugin for that long.
//
// Timing is expressed in ticks (pkg/ticks) so deadline checks stay correct when the
// millisecond counter wraps. When a cycle overruns its interval the schedule resets
// forward from the current tick; lost cycles are never replayed.
//
// Shutdown is cooperative: any plugin may call RequestShutdown during its poll. The
// current pass finishes, then every plugin gets Shutdown in registration order, even
// when an earlier one fails.
package looper
