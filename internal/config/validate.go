package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	logx "pollooper/pkg/logx"
)

// KnownPlugins lists the plugin keys accepted under "plugins".
var KnownPlugins = []string{
	"shutdown_timer",
	"led_blink",
	"heartbeat",
	"gc",
	"watchdog",
	"traffic_lights",
}

// Validate checks values the strict decoder cannot.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if _, err := cfg.Looper.CycleIntervalDuration(); err != nil {
		errs = append(errs, err)
	}

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" {
		if _, ok := logx.ParseLevel(lvl); !ok {
			errs = append(errs, fmt.Errorf("logging.level: unknown %q (trace|debug|info|warn|error)", lvl))
		}
	}

	if j := cfg.Journal; j != nil {
		switch strings.ToLower(strings.TrimSpace(j.Driver)) {
		case "", "none":
		case "file", "sqlite":
			if strings.TrimSpace(j.Path) == "" {
				errs = append(errs, fmt.Errorf("journal.path required for driver %q", j.Driver))
			}
		default:
			errs = append(errs, fmt.Errorf("journal.driver: unknown %q (file|sqlite|none)", j.Driver))
		}
		if _, err := ParseDurationField("journal.busy_timeout", j.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.Debug.Enabled {
		addr := cfg.Debug.Addr
		if strings.TrimSpace(addr) == "" {
			addr = "127.0.0.1:6060"
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Errorf("debug.addr: %w", err))
		}
	}

	for name := range cfg.Plugins {
		if !isKnownPlugin(name) {
			errs = append(errs, fmt.Errorf("plugins: unknown plugin %q", name))
		}
	}
	return errors.Join(errs...)
}

func isKnownPlugin(name string) bool {
	for _, k := range KnownPlugins {
		if k == name {
			return true
		}
	}
	return false
}
