package hostwatch

import (
	"errors"
	"net"
	"time"
)

const defaultAgentTimeout = 10 * time.Second

// AgentTarget represents a remote agent to poll for metrics.
//
// AgentTarget is immutable after creation via [NewAgentTarget]. All fields
// are private with getter methods that return copies of mutable data (maps),
// ensuring the target cannot be modified after construction.
//
// Targets are configured using the functional options pattern with
// [AgentOption] functions such as [WithLabels], [WithTimeout], and
// [WithInterval].
type AgentTarget struct {
	name     string
	address  string
	labels   map[string]string
	timeout  time.Duration
	interval time.Duration
}

// Name returns the agent's display name.
// The name is used for identification in the dashboard, storage, and logs.
func (a AgentTarget) Name() string {
	return a.name
}

// Address returns the agent's "host:port" address.
func (a AgentTarget) Address() string {
	return a.address
}

// Labels returns a copy of the agent's labels.
// Labels are key-value metadata used for grouping and filtering agents
// in the dashboard. Returns nil if no labels are set.
func (a AgentTarget) Labels() map[string]string {
	return copyMap(a.labels)
}

// Timeout returns the per-call RPC timeout.
// Defaults to 10 seconds if not explicitly set via [WithTimeout].
func (a AgentTarget) Timeout() time.Duration {
	return a.timeout
}

// Interval returns the agent's custom polling interval.
// Returns 0 if no custom interval was specified, meaning the global
// interval configured via [WithPollInterval] should be used.
func (a AgentTarget) Interval() time.Duration {
	return a.interval
}

// agentConfig holds mutable state during AgentTarget construction.
type agentConfig struct {
	labels   map[string]string
	timeout  time.Duration
	interval time.Duration
}

// AgentOption configures an [AgentTarget] during construction.
type AgentOption func(*agentConfig) error

// NewAgentTarget creates an [AgentTarget] with the given name, address, and
// options.
//
// The name is a unique human-readable identifier. The address must be of
// the form "host:port" and point at a running hostwatch agent.
//
// Example:
//
//	agent, err := hostwatch.NewAgentTarget("web-01", "10.0.0.5:9931",
//	    hostwatch.WithLabels("env", "prod"),
//	    hostwatch.WithTimeout(5 * time.Second),
//	)
func NewAgentTarget(name, address string, opts ...AgentOption) (AgentTarget, error) {
	if name == "" {
		return AgentTarget{}, errors.New("agent name cannot be empty")
	}

	if _, _, err := net.SplitHostPort(address); err != nil {
		return AgentTarget{}, errors.New("invalid address, expected host:port: " + err.Error())
	}

	cfg := &agentConfig{
		labels:  make(map[string]string),
		timeout: defaultAgentTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return AgentTarget{}, err
		}
	}

	return AgentTarget{
		name:     name,
		address:  address,
		labels:   cfg.labels,
		timeout:  cfg.timeout,
		interval: cfg.interval,
	}, nil
}

// WithLabels attaches key-value metadata to the agent.
//
// Labels are passed as alternating key-value pairs:
//
//	hostwatch.WithLabels("env", "prod", "region", "eu-west")
//
// Returns an error if an odd number of arguments is given.
func WithLabels(pairs ...string) AgentOption {
	return func(cfg *agentConfig) error {
		if len(pairs)%2 != 0 {
			return errors.New("labels must be key-value pairs")
		}
		for i := 0; i < len(pairs); i += 2 {
			cfg.labels[pairs[i]] = pairs[i+1]
		}
		return nil
	}
}

// WithTimeout sets the per-call RPC timeout for this agent.
// Defaults to 10 seconds. Returns an error if the duration is not positive.
func WithTimeout(d time.Duration) AgentOption {
	return func(cfg *agentConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithInterval sets a custom polling interval for this agent, overriding
// the global interval set via [WithPollInterval].
//
// Returns an error if the duration is less than one second.
func WithInterval(d time.Duration) AgentOption {
	return func(cfg *agentConfig) error {
		if d < time.Second {
			return errors.New("interval must be at least 1 second")
		}
		cfg.interval = d
		return nil
	}
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
