package hostwatch

import "time"

// Status represents the reachability of an agent.
//
// Status is a string type holding one of the predefined values [StatusUp]
// or [StatusDown]. Using a string type allows for easy JSON serialization
// and human-readable logging while maintaining type safety through the
// defined constants.
type Status string

const (
	// StatusUp indicates the agent answered the last poll.
	StatusUp Status = "up"

	// StatusDown indicates the agent was unreachable or returned an error.
	StatusDown Status = "down"
)

// String returns the string representation of the status.
// This implements the fmt.Stringer interface.
func (s Status) String() string {
	return string(s)
}

// Severity classifies an alert.
type Severity string

const (
	// SeverityWarning indicates a metric crossed its warning boundary.
	SeverityWarning Severity = "warning"

	// SeverityCritical indicates a metric crossed its critical boundary,
	// or a high-severity security finding.
	SeverityCritical Severity = "critical"
)

// Temperature is a CPU temperature reading. Available is false on hosts
// without a usable thermal sensor, in which case Celsius is meaningless.
type Temperature struct {
	Celsius   float64
	Available bool
}

// Load holds the 1, 5, and 15 minute load averages.
type Load struct {
	Load1  float64
	Load5  float64
	Load15 float64
}

// Memory holds virtual memory usage in bytes.
type Memory struct {
	Total       int64
	Available   int64
	Used        int64
	Free        int64
	UsedPercent float64
}

// Disk holds usage of a single mount point in bytes.
type Disk struct {
	Path        string
	Total       int64
	Used        int64
	Free        int64
	UsedPercent float64
}

// Threat is a security finding reported by an agent.
type Threat struct {
	// Type identifies the heuristic that fired, e.g. "failed_logins",
	// "suspicious_process", "suspicious_port".
	Type string

	// Severity is the agent's own classification: "low", "medium" or "high".
	Severity string

	// Description is a human-readable explanation of the finding.
	Description string

	// DetectedAt is when the agent observed the finding.
	DetectedAt time.Time
}

// Metrics is a full metrics snapshot fetched from an agent.
type Metrics struct {
	// Hostname is the agent host's name.
	Hostname string

	// Platform is the agent's operating system or distribution.
	Platform string

	// Timestamp is when the agent took the snapshot.
	Timestamp time.Time

	// CPUUsage is total CPU utilisation in percent.
	CPUUsage float64

	// Temperature is the CPU temperature reading.
	Temperature Temperature

	// Load holds the load averages.
	Load Load

	// Memory holds virtual memory usage.
	Memory Memory

	// Disk holds usage of the agent's monitored mount point.
	Disk Disk

	// Threats lists current security findings, empty when clean.
	Threats []Threat
}

// StatusResult holds the outcome of polling a single agent.
//
// StatusResult is immutable after creation and contains everything known
// about a poll attempt: the reachability status, latency, any error, and
// the fetched metrics snapshot on success.
type StatusResult struct {
	// AgentName is the unique name of the polled agent.
	AgentName string

	// Address is the agent address that was polled.
	Address string

	// Status is the reachability determined by this poll.
	Status Status

	// Labels contains the key-value metadata associated with the agent.
	Labels map[string]string

	// Latency is the time taken by the RPC round trip.
	Latency time.Duration

	// CheckedAt is the timestamp when the poll completed.
	CheckedAt time.Time

	// Error contains any error that occurred during polling.
	// nil indicates the poll completed successfully.
	Error error

	// ConsecutiveFailures counts failed polls since the last success.
	ConsecutiveFailures int

	// Metrics is the fetched snapshot; nil when the poll failed.
	Metrics *Metrics
}

// Alert is a threshold violation or security finding produced while
// evaluating a poll result.
type Alert struct {
	// ID uniquely identifies the alert, for correlation in logs and sinks.
	ID string

	// AgentName is the agent the alert concerns.
	AgentName string

	// Metric names the evaluated metric, e.g. "cpu_usage".
	Metric string

	// Severity is warning or critical.
	Severity Severity

	// Value is the observed metric value. Zero for security findings.
	Value float64

	// Threshold is the boundary that was crossed. Zero for security findings.
	Threshold float64

	// Message is a human-readable description.
	Message string

	// At is when the alert fired.
	At time.Time
}
