package looper

import (
	"errors"
	"fmt"
)

// ErrAlreadyRun is returned when Run/Drive is called on a scheduler that already ran.
var ErrAlreadyRun = errors.New("looper: scheduler already ran")

// PollFailure ends a run: a plugin's PollIt returned an error or panicked.
type PollFailure struct {
	Plugin string
	Index  int
	Err    error
	Stack  string // set when the plugin panicked
}

func (f *PollFailure) Error() string {
	return fmt.Sprintf("poll %s (#%d): %v", f.Plugin, f.Index, f.Err)
}

func (f *PollFailure) Unwrap() error { return f.Err }

// ShutdownFailure is logged for a plugin whose Shutdown failed; it never stops the shutdown pass.
type ShutdownFailure struct {
	Plugin string
	Index  int
	Err    error
	Stack  string
}

func (f *ShutdownFailure) Error() string {
	return fmt.Sprintf("shutdown %s (#%d): %v", f.Plugin, f.Index, f.Err)
}

func (f *ShutdownFailure) Unwrap() error { return f.Err }
