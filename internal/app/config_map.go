package app

import (
	"fmt"
	"strings"
	"time"

	"pollooper/internal/config"
	"pollooper/internal/journal"
	"pollooper/internal/observability/debugsrv"
)

func mapJournalConfig(cfg *config.Config) (journal.Config, bool, error) {
	if cfg == nil || cfg.Journal == nil {
		return journal.Config{}, false, nil
	}
	jc := cfg.Journal
	driver := strings.ToLower(strings.TrimSpace(jc.Driver))
	if driver == "" || driver == "none" {
		return journal.Config{}, false, nil
	}
	path := strings.TrimSpace(jc.Path)

	switch driver {
	case "file":
		return journal.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return journal.Config{}, false, fmt.Errorf("journal.path is required when journal.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("journal.busy_timeout", jc.BusyTimeout, time.Second)
		if err != nil {
			return journal.Config{}, false, err
		}
		return journal.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return journal.Config{}, false, fmt.Errorf("unknown journal.driver: %s", jc.Driver)
	}
}

func mapDebugConfig(cfg *config.Config) debugsrv.Config {
	if cfg == nil {
		return debugsrv.Config{}
	}
	d := cfg.Debug
	return debugsrv.Config{
		Enabled:       d.Enabled,
		Addr:          strings.TrimSpace(d.Addr),
		Token:         d.Token,
		AllowInsecure: d.AllowInsecure,
		Pprof:         d.Pprof,
	}
}
