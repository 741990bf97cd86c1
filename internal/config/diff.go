package config

import (
	"sort"
	"strings"

	logx "pollooper/pkg/logx"
)

// SummarizeChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes the debug token),
// and (3) a list of plugin names that changed (enable/config).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if strings.TrimSpace(oldCfg.Looper.CycleInterval) != strings.TrimSpace(newCfg.Looper.CycleInterval) ||
		oldCfg.Looper.Cooperative != newCfg.Looper.Cooperative {
		changed = append(changed, "looper")
		attrs = append(attrs,
			logx.String("looper.cycle_interval", strings.TrimSpace(newCfg.Looper.CycleInterval)),
			logx.Bool("looper.cooperative", newCfg.Looper.Cooperative),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Token changes are reported as set/unset only.
	od, nd := oldCfg.Debug, newCfg.Debug
	if od.Enabled != nd.Enabled ||
		strings.TrimSpace(od.Addr) != strings.TrimSpace(nd.Addr) ||
		od.AllowInsecure != nd.AllowInsecure ||
		od.Pprof != nd.Pprof ||
		od.Token != nd.Token {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", nd.Enabled),
			logx.String("debug.addr", strings.TrimSpace(nd.Addr)),
			logx.Bool("debug.token_set", strings.TrimSpace(nd.Token) != ""),
			logx.Bool("debug.allow_insecure", nd.AllowInsecure),
			logx.Bool("debug.pprof", nd.Pprof),
		)
	}

	var oj, nj JournalConfig
	if oldCfg.Journal != nil {
		oj = *oldCfg.Journal
	}
	if newCfg.Journal != nil {
		nj = *newCfg.Journal
	}
	if strings.TrimSpace(oj.Driver) != strings.TrimSpace(nj.Driver) ||
		strings.TrimSpace(oj.Path) != strings.TrimSpace(nj.Path) ||
		strings.TrimSpace(oj.BusyTimeout) != strings.TrimSpace(nj.BusyTimeout) {
		changed = append(changed, "journal")
		attrs = append(attrs,
			logx.String("journal.driver", strings.TrimSpace(nj.Driver)),
			logx.Bool("journal.path_set", strings.TrimSpace(nj.Path) != ""),
		)
	}

	pluginChanged := diffPlugins(oldCfg.Plugins, newCfg.Plugins)
	if len(pluginChanged) > 0 {
		changed = append(changed, "plugins")
		attrs = append(attrs,
			logx.Int("plugins.changed_count", len(pluginChanged)),
			logx.Int("plugins.enabled_count", countEnabled(newCfg.Plugins)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, pluginChanged
}

// RestartRequired reports whether any changed section only takes effect on the next run.
// Logging and debug are applied live.
func RestartRequired(changed []string) bool {
	for _, c := range changed {
		switch c {
		case "logging", "debug":
		default:
			return true
		}
	}
	return false
}

func countEnabled(m map[string]PluginConfigRaw) int {
	n := 0
	for _, v := range m {
		if v.Enabled {
			n++
		}
	}
	return n
}

func diffPlugins(oldM, newM map[string]PluginConfigRaw) []string {
	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		o := oldM[name]
		n := newM[name]
		if o.Enabled != n.Enabled || canonicalHashJSON(o.Config) != canonicalHashJSON(n.Config) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
