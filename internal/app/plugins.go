package app

import (
	"fmt"
	"io"

	"pollooper/internal/config"
	"pollooper/internal/looper"
	logx "pollooper/pkg/logx"
	"pollooper/plugins/gccollect"
	"pollooper/plugins/heartbeat"
	"pollooper/plugins/ledblink"
	"pollooper/plugins/shutdowntimer"
	"pollooper/plugins/trafficlights"
	"pollooper/plugins/watchdog"
)

// pluginSet is what buildPlugins hands back to the app.
type pluginSet struct {
	plugins []looper.Plugin
	names   []string
	lights  *trafficlights.Set
}

// buildPlugins constructs every enabled plugin in config.KnownPlugins order.
// The order is the poll order and the shutdown order.
func buildPlugins(cfg *config.Config, s *looper.Scheduler, out io.Writer, log logx.Logger) (pluginSet, error) {
	var set pluginSet
	for _, name := range config.KnownPlugins {
		raw, ok := cfg.Plugin(name)
		if !ok {
			continue
		}
		ps, lights, err := buildPlugin(name, raw, s, out, log)
		if err != nil {
			return pluginSet{}, fmt.Errorf("plugins.%s: %w", name, err)
		}
		if lights != nil {
			set.lights = lights
		}
		set.plugins = append(set.plugins, ps...)
		set.names = append(set.names, name)
	}
	return set, nil
}

func buildPlugin(name string, raw config.PluginConfigRaw, s *looper.Scheduler, out io.Writer, log logx.Logger) ([]looper.Plugin, *trafficlights.Set, error) {
	switch name {
	case shutdowntimer.Name:
		var pc shutdowntimer.Config
		if err := config.DecodePlugin(raw.Config, &pc); err != nil {
			return nil, nil, err
		}
		p, err := shutdowntimer.New(s, pc, log)
		if err != nil {
			return nil, nil, err
		}
		return []looper.Plugin{p}, nil, nil

	case ledblink.Name:
		var pc ledblink.Config
		if err := config.DecodePlugin(raw.Config, &pc); err != nil {
			return nil, nil, err
		}
		p, err := ledblink.New(s, pc, log)
		if err != nil {
			return nil, nil, err
		}
		return []looper.Plugin{p}, nil, nil

	case heartbeat.Name:
		var pc heartbeat.Config
		if err := config.DecodePlugin(raw.Config, &pc); err != nil {
			return nil, nil, err
		}
		p, err := heartbeat.New(s, pc, log)
		if err != nil {
			return nil, nil, err
		}
		return []looper.Plugin{p}, nil, nil

	case gccollect.Name:
		var pc gccollect.Config
		if err := config.DecodePlugin(raw.Config, &pc); err != nil {
			return nil, nil, err
		}
		p, err := gccollect.New(s, pc, log)
		if err != nil {
			return nil, nil, err
		}
		return []looper.Plugin{p}, nil, nil

	case watchdog.Name:
		var pc watchdog.Config
		if err := config.DecodePlugin(raw.Config, &pc); err != nil {
			return nil, nil, err
		}
		p, err := watchdog.New(s, pc, log)
		if err != nil {
			return nil, nil, err
		}
		return []looper.Plugin{p}, nil, nil

	case trafficlights.Name:
		pc := trafficlights.DefaultConfig()
		if err := config.DecodePlugin(raw.Config, &pc); err != nil {
			return nil, nil, err
		}
		set, err := trafficlights.New(s, pc, out, log)
		if err != nil {
			return nil, nil, err
		}
		return set.Plugins(), set, nil

	default:
		return nil, nil, fmt.Errorf("unknown plugin")
	}
}

// validatePlugins decodes every enabled plugin block against a throwaway scheduler.
// It runs on reload so a bad plugin block is rejected before it is committed.
func validatePlugins(cfg *config.Config) error {
	s := looper.New(looper.Config{})
	_, err := buildPlugins(cfg, s, nil, logx.Nop())
	return err
}
