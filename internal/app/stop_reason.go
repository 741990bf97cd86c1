package app

// StopReason says why a run ended. It is logged and mapped to the exit code.
type StopReason string

const (
	StopUnknown     StopReason = "unknown"
	StopSignal      StopReason = "signal"
	StopRequested   StopReason = "requested"
	StopPollFailure StopReason = "poll_failure"
	StopFatalError  StopReason = "fatal_error"
)
