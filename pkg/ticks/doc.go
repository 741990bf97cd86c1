// Package ticks models a wrapping millisecond counter.
//
// A Tick is an opaque 32-bit millisecond timestamp. The counter wraps roughly every
// 49.7 days, so two ticks must never be ordered with < or >. Use Diff instead:
//
//	if ticks.Diff(now, deadline) >= 0 {
//		// deadline reached
//	}
//
// Diff stays correct across overflow as long as the two ticks are less than
// 2^31 milliseconds (about 24.8 days) apart.
package ticks
