// Package threshold evaluates metric reports against static numeric
// boundaries and produces alert records.
package threshold

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pkeller/hostwatch/internal/wire"
)

// Severity classifies how far past a boundary a value is.
type Severity string

const (
	// SeverityWarning indicates the warning boundary was crossed.
	SeverityWarning Severity = "warning"

	// SeverityCritical indicates the critical boundary was crossed.
	SeverityCritical Severity = "critical"
)

// Metric names used in alerts. The collector stores records under the same
// names, so dashboards can join alerts to their metric history.
const (
	MetricCPUUsage       = "cpu_usage"
	MetricCPUTemperature = "cpu_temperature"
	MetricLoad1          = "load1"
	MetricMemory         = "memory_percent"
	MetricDisk           = "disk_percent"
	MetricSecurityThreat = "security_threat"
)

// Bound is a warning/critical boundary pair for one metric. Values are
// compared inclusively: value >= boundary fires. A zero Bound disables
// checking for that metric.
type Bound struct {
	Warning  float64 `yaml:"warning" json:"warning"`
	Critical float64 `yaml:"critical" json:"critical"`
}

func (b Bound) enabled() bool {
	return b.Warning != 0 || b.Critical != 0
}

// Thresholds holds the boundaries for every checked metric.
type Thresholds struct {
	CPUUsage       Bound
	CPUTemperature Bound
	Load1          Bound
	MemoryPercent  Bound
	DiskPercent    Bound
}

// Defaults returns the stock thresholds: CPU usage 80/95%, CPU temperature
// 70/85°C, 1-minute load 2.0/4.0, memory 85/95%, disk 85/95%.
func Defaults() Thresholds {
	return Thresholds{
		CPUUsage:       Bound{Warning: 80, Critical: 95},
		CPUTemperature: Bound{Warning: 70, Critical: 85},
		Load1:          Bound{Warning: 2.0, Critical: 4.0},
		MemoryPercent:  Bound{Warning: 85, Critical: 95},
		DiskPercent:    Bound{Warning: 85, Critical: 95},
	}
}

// Alert is a single threshold violation or security finding.
type Alert struct {
	ID        string    `json:"id"`
	Agent     string    `json:"agent"`
	Metric    string    `json:"metric"`
	Severity  Severity  `json:"severity"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// Evaluator checks reports against a fixed set of thresholds.
type Evaluator struct {
	thresholds Thresholds
}

// NewEvaluator creates an [Evaluator] with the given thresholds.
func NewEvaluator(t Thresholds) *Evaluator {
	return &Evaluator{thresholds: t}
}

// Thresholds returns the evaluator's configured boundaries.
func (e *Evaluator) Thresholds() Thresholds {
	return e.thresholds
}

// Evaluate checks a report and returns the alerts it triggers. At most one
// alert fires per metric: crossing the critical boundary suppresses the
// warning alert. Security threats reported by the agent pass through as
// alerts regardless of thresholds. A nil report yields no alerts.
func (e *Evaluator) Evaluate(agent string, r *wire.Report) []Alert {
	if r == nil {
		return nil
	}
	now := time.Now()
	var alerts []Alert

	if a := check(agent, MetricCPUUsage, r.CPUUsage, e.thresholds.CPUUsage, "%", now); a != nil {
		alerts = append(alerts, *a)
	}
	if r.Temperature.Available {
		if a := check(agent, MetricCPUTemperature, r.Temperature.Celsius, e.thresholds.CPUTemperature, "°C", now); a != nil {
			alerts = append(alerts, *a)
		}
	}
	if a := check(agent, MetricLoad1, r.Load.Load1, e.thresholds.Load1, "", now); a != nil {
		alerts = append(alerts, *a)
	}
	if a := check(agent, MetricMemory, r.Memory.UsedPercent, e.thresholds.MemoryPercent, "%", now); a != nil {
		alerts = append(alerts, *a)
	}
	if a := check(agent, MetricDisk, r.Disk.UsedPercent, e.thresholds.DiskPercent, "%", now); a != nil {
		alerts = append(alerts, *a)
	}

	for _, threat := range r.Threats {
		alerts = append(alerts, Alert{
			ID:       uuid.NewString(),
			Agent:    agent,
			Metric:   MetricSecurityThreat,
			Severity: threatSeverity(threat.Severity),
			Message:  fmt.Sprintf("security threat (%s): %s", threat.Type, threat.Description),
			At:       now,
		})
	}

	return alerts
}

// check compares value against a bound, returning nil when no boundary was
// crossed or the bound is disabled.
func check(agent, metric string, value float64, b Bound, unit string, at time.Time) *Alert {
	if !b.enabled() {
		return nil
	}

	severity := Severity("")
	boundary := 0.0
	switch {
	case b.Critical != 0 && value >= b.Critical:
		severity, boundary = SeverityCritical, b.Critical
	case b.Warning != 0 && value >= b.Warning:
		severity, boundary = SeverityWarning, b.Warning
	default:
		return nil
	}

	return &Alert{
		ID:        uuid.NewString(),
		Agent:     agent,
		Metric:    metric,
		Severity:  severity,
		Value:     value,
		Threshold: boundary,
		Message:   fmt.Sprintf("%s %s: %.1f%s (threshold %.1f)", metric, severity, value, unit, boundary),
		At:        at,
	}
}

// threatSeverity maps agent-reported threat severities onto alert severities.
func threatSeverity(s string) Severity {
	switch s {
	case "high", "critical":
		return SeverityCritical
	default:
		return SeverityWarning
	}
}
