package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

type Config struct {
	Looper  LooperConfig  `json:"looper"`
	Logging LoggingConfig `json:"logging"`
	Debug   DebugConfig   `json:"debug,omitempty"`

	// Journal is optional; nil means no run journal.
	Journal *JournalConfig             `json:"journal,omitempty"`
	Plugins map[string]PluginConfigRaw `json:"plugins"`
}

// LooperConfig controls the scheduler.
//
// Defaults (when fields are omitted):
//   - cycle_interval: "100ms"
//   - cooperative: false
//
// Use cycle_interval "0s" for externally paced cycles.
type LooperConfig struct {
	CycleInterval string `json:"cycle_interval,omitempty"`
	Cooperative   bool   `json:"cooperative,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// JournalConfig controls the run journal.
//
// Example:
//
//	"journal": { "driver": "sqlite", "path": "./pollooper.db" }
type JournalConfig struct {
	Driver      string `json:"driver"` // file | sqlite | none
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// DebugConfig controls the optional debug HTTP server (/healthz, /metrics, /debug/pprof/).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}

type PluginConfigRaw struct {
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// UnmarshalJSON disallows unknown fields so typos in plugin blocks fail the load.
func (p *PluginConfigRaw) UnmarshalJSON(b []byte) error {
	type tmp struct {
		Enabled bool            `json:"enabled"`
		Config  json.RawMessage `json:"config,omitempty"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var t tmp
	if err := dec.Decode(&t); err != nil {
		return err
	}
	*p = PluginConfigRaw{Enabled: t.Enabled, Config: t.Config}
	return nil
}

// Plugin returns the raw block for name and whether it is enabled.
func (c *Config) Plugin(name string) (PluginConfigRaw, bool) {
	if c == nil || c.Plugins == nil {
		return PluginConfigRaw{}, false
	}
	p, ok := c.Plugins[name]
	return p, ok && p.Enabled
}

// DecodePlugin strictly decodes a plugin config block into dst.
// An empty block leaves dst untouched so callers can pre-fill defaults.
func DecodePlugin[T any](raw json.RawMessage, dst *T) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		return fmt.Errorf("trailing data in plugin config")
	}
	return nil
}
