package config

import (
	"sort"

	"github.com/pkeller/hostwatch"
)

// BuildOptions converts parsed configuration into SDK options ready to be
// passed to [hostwatch.New]. The caller typically appends a logger option.
func BuildOptions(cfg *Config) ([]hostwatch.Option, error) {
	agents, err := BuildAgents(cfg)
	if err != nil {
		return nil, err
	}

	opts := []hostwatch.Option{
		hostwatch.WithAgents(agents...),
		hostwatch.WithPollInterval(cfg.PollInterval.Duration()),
		hostwatch.WithPort(cfg.Port),
		hostwatch.WithMaxConcurrency(cfg.MaxConcurrency),
		hostwatch.WithStorageURL(cfg.Storage.URL),
		hostwatch.WithThresholds(BuildThresholds(cfg.Thresholds)),
	}
	if cfg.Title != "" {
		opts = append(opts, hostwatch.WithTitle(cfg.Title))
	}
	if cfg.RegistryFile != "" {
		opts = append(opts, hostwatch.WithRegistryFile(cfg.RegistryFile))
	}
	return opts, nil
}

// BuildAgents converts parsed agent configuration into SDK AgentTarget
// objects.
//
// Agents with enabled: false are skipped at build time; they are still
// registered (and toggleable) when a registry file is configured, since the
// registry loads them itself.
func BuildAgents(cfg *Config) ([]hostwatch.AgentTarget, error) {
	var agents []hostwatch.AgentTarget
	for _, ac := range cfg.Agents {
		if ac.Enabled != nil && !*ac.Enabled {
			continue
		}
		agent, err := buildAgent(ac)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

// buildAgent converts a single AgentConfig to an SDK AgentTarget.
func buildAgent(ac AgentConfig) (hostwatch.AgentTarget, error) {
	var opts []hostwatch.AgentOption

	if ac.Timeout != 0 {
		opts = append(opts, hostwatch.WithTimeout(ac.Timeout.Duration()))
	}

	if len(ac.Labels) > 0 {
		opts = append(opts, hostwatch.WithLabels(mapToKeyValuePairs(ac.Labels)...))
	}

	if ac.Interval != 0 {
		opts = append(opts, hostwatch.WithInterval(ac.Interval.Duration()))
	}

	return hostwatch.NewAgentTarget(ac.Name, ac.Address, opts...)
}

// BuildThresholds merges configured boundary overrides onto the defaults.
// A configured zero pair disables checking for that metric.
func BuildThresholds(tc ThresholdsConfig) hostwatch.Thresholds {
	t := hostwatch.DefaultThresholds()

	if tc.CPUUsage != nil {
		t.CPUUsage = hostwatch.Bound(*tc.CPUUsage)
	}
	if tc.CPUTemperature != nil {
		t.CPUTemperature = hostwatch.Bound(*tc.CPUTemperature)
	}
	if tc.Load1 != nil {
		t.Load1 = hostwatch.Bound(*tc.Load1)
	}
	if tc.MemoryPercent != nil {
		t.MemoryPercent = hostwatch.Bound(*tc.MemoryPercent)
	}
	if tc.DiskPercent != nil {
		t.DiskPercent = hostwatch.Bound(*tc.DiskPercent)
	}
	return t
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
