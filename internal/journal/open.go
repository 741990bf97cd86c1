package journal

import (
	"context"
	"errors"
	"strings"

	logx "pollooper/pkg/logx"
)

// Store is the persistence API used by Writer.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// Entries returns the entries of one run in sequence order.
	Entries(ctx context.Context, runID string) ([]Entry, error)
	Close() error
}

// Open initializes the configured store.
// It returns ErrDisabled if the journal is turned off.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, ErrDisabled
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "journal"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown journal driver: " + driver)
	}
}
