// Package journal persists the scheduler's lifecycle events, one record per event,
// grouped by run id. Topic contents are never written.
package journal

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("journal disabled")

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("journal closed")

// Config configures the journal.
//
// Driver values:
//   - "file": JSON Lines file, append only
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//
// If Driver is empty or "none", the journal is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry is one journaled event. Keep it compact and schema-stable.
type Entry struct {
	RunID   string    `json:"run_id"`
	Seq     uint64    `json:"seq"`
	At      time.Time `json:"at"`
	Kind    string    `json:"kind"`
	Tick    uint32    `json:"tick"`
	Plugin  string    `json:"plugin,omitempty"`
	Message string    `json:"message,omitempty"`
	Err     string    `json:"err,omitempty"`
}
