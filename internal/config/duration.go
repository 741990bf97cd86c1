package config

import (
	"fmt"
	"strings"
	"time"
)

// DefaultCycleInterval is used when looper.cycle_interval is omitted.
const DefaultCycleInterval = 100 * time.Millisecond

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// CycleIntervalDuration returns the configured cycle interval. An omitted value means the default;
// an explicit "0s" selects externally paced cycles.
func (c LooperConfig) CycleIntervalDuration() (time.Duration, error) {
	if strings.TrimSpace(c.CycleInterval) == "" {
		return DefaultCycleInterval, nil
	}
	d, err := ParseDurationField("looper.cycle_interval", c.CycleInterval)
	if err != nil {
		return 0, err
	}
	if d > 0 && d < time.Millisecond {
		return 0, fmt.Errorf("looper.cycle_interval: must be 0 or >= 1ms")
	}
	if d > time.Duration(1<<31-1)*time.Millisecond {
		return 0, fmt.Errorf("looper.cycle_interval: exceeds tick range")
	}
	return d, nil
}
