package hostwatch

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pkeller/hostwatch/internal/collector"
	"github.com/pkeller/hostwatch/internal/threshold"
	"github.com/pkeller/hostwatch/internal/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustTarget(t *testing.T, name, addr string, opts ...AgentOption) AgentTarget {
	t.Helper()
	agent, err := NewAgentTarget(name, addr, opts...)
	if err != nil {
		t.Fatalf("NewAgentTarget(%q, %q) error = %v", name, addr, err)
	}
	return agent
}

func TestNew_Defaults(t *testing.T) {
	m, err := New(WithAgent(mustTarget(t, "web-01", "10.0.0.5:9931")))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if m.Port() != defaultPort {
		t.Errorf("Port() = %d, want %d", m.Port(), defaultPort)
	}
	if m.PollInterval() != defaultPollInterval {
		t.Errorf("PollInterval() = %v, want %v", m.PollInterval(), defaultPollInterval)
	}
	if agents := m.Agents(); len(agents) != 1 || agents[0].Name() != "web-01" {
		t.Errorf("Agents() = %+v, want one web-01 target", agents)
	}
}

func TestNew_ZeroAgentsAllowed(t *testing.T) {
	// agents can be registered later through the dashboard API
	m, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if agents := m.Agents(); len(agents) != 0 {
		t.Errorf("Agents() = %+v, want empty", agents)
	}
}

func TestNew_DuplicateAgentName(t *testing.T) {
	_, err := New(WithAgents(
		mustTarget(t, "web-01", "10.0.0.5:9931"),
		mustTarget(t, "web-01", "10.0.0.6:9931"),
	))
	if err == nil {
		t.Error("New() error = nil, want duplicate name error")
	}
}

func TestNew_DuplicateAgentAddress(t *testing.T) {
	_, err := New(WithAgents(
		mustTarget(t, "web-01", "10.0.0.5:9931"),
		mustTarget(t, "web-02", "10.0.0.5:9931"),
	))
	if err == nil {
		t.Error("New() error = nil, want duplicate address error")
	}
}

func TestNew_OptionValidation(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"poll interval below 1s", WithPollInterval(100 * time.Millisecond)},
		{"port zero", WithPort(0)},
		{"port above range", WithPort(70000)},
		{"zero concurrency", WithMaxConcurrency(0)},
		{"empty storage url", WithStorageURL("")},
		{"empty registry file", WithRegistryFile("")},
		{"nil logger", WithLogger(nil)},
		{"warning above critical", WithThresholds(Thresholds{
			CPUUsage: Bound{Warning: 96, Critical: 95},
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opt); err == nil {
				t.Error("New() error = nil, want validation error")
			}
		})
	}
}

func TestNew_NilCallbacksIgnored(t *testing.T) {
	m, err := New(
		WithStatusCallback(nil),
		WithAlertCallback(nil),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if len(m.statusCbs) != 0 || len(m.alertCbs) != 0 {
		t.Error("nil callbacks were registered")
	}
}

func TestDefaultThresholds(t *testing.T) {
	d := DefaultThresholds()
	if d.CPUUsage != (Bound{Warning: 80, Critical: 95}) {
		t.Errorf("CPUUsage = %+v, want 80/95", d.CPUUsage)
	}
	if d.CPUTemperature != (Bound{Warning: 70, Critical: 85}) {
		t.Errorf("CPUTemperature = %+v, want 70/85", d.CPUTemperature)
	}
}

func TestToCacheStatus(t *testing.T) {
	now := time.Now()

	up := toCacheStatus(collector.Result{
		AgentName: "web-01",
		Address:   "10.0.0.5:9931",
		Latency:   42 * time.Millisecond,
		CheckedAt: now,
		Report:    &wire.Report{Hostname: "web-01"},
	})
	if up.Status != string(StatusUp) {
		t.Errorf("Status = %q, want %q", up.Status, StatusUp)
	}
	if up.Error != nil {
		t.Errorf("Error = %v, want nil", *up.Error)
	}
	if up.LatencyMs != 42 {
		t.Errorf("LatencyMs = %d, want 42", up.LatencyMs)
	}

	down := toCacheStatus(collector.Result{
		AgentName:           "web-01",
		Err:                 errors.New("connection refused"),
		ConsecutiveFailures: 3,
	})
	if down.Status != string(StatusDown) {
		t.Errorf("Status = %q, want %q", down.Status, StatusDown)
	}
	if down.Error == nil || *down.Error != "connection refused" {
		t.Errorf("Error = %v, want connection refused", down.Error)
	}
	if down.ConsecutiveFailures != 3 {
		t.Errorf("ConsecutiveFailures = %d, want 3", down.ConsecutiveFailures)
	}
}

func TestToPublicMetrics(t *testing.T) {
	if got := toPublicMetrics(nil); got != nil {
		t.Errorf("toPublicMetrics(nil) = %+v, want nil", got)
	}

	report := &wire.Report{
		Hostname:    "web-01",
		Platform:    "linux",
		CPUUsage:    33,
		Temperature: wire.TemperatureInfo{Celsius: 55, Available: true},
		Load:        wire.LoadAverages{Load1: 1.1},
		Memory:      wire.MemoryStats{UsedPercent: 60},
		Disk:        wire.DiskStats{Path: "/", UsedPercent: 70},
		Threats:     []wire.Threat{{Type: "suspicious_port", Severity: "high"}},
	}

	got := toPublicMetrics(report)
	if got.Hostname != "web-01" || got.CPUUsage != 33 {
		t.Errorf("metrics = %+v, want hostname web-01 cpu 33", got)
	}
	if !got.Temperature.Available || got.Temperature.Celsius != 55 {
		t.Errorf("Temperature = %+v, want 55 available", got.Temperature)
	}
	if len(got.Threats) != 1 || got.Threats[0].Type != "suspicious_port" {
		t.Errorf("Threats = %+v, want one suspicious_port finding", got.Threats)
	}
}

func TestToPublicResult_LabelsCopied(t *testing.T) {
	labels := map[string]string{"env": "prod"}
	result := toPublicResult(collector.Result{AgentName: "web-01", Labels: labels})

	labels["env"] = "changed"
	if result.Labels["env"] != "prod" {
		t.Error("toPublicResult() shares the labels map with the input")
	}
}

func TestToPublicAlert(t *testing.T) {
	at := time.Now()
	got := toPublicAlert(threshold.Alert{
		ID:        "abc",
		Agent:     "web-01",
		Metric:    threshold.MetricCPUUsage,
		Severity:  threshold.SeverityCritical,
		Value:     97,
		Threshold: 95,
		Message:   "too hot",
		At:        at,
	})

	if got.AgentName != "web-01" || got.ID != "abc" {
		t.Errorf("alert = %+v, want web-01/abc", got)
	}
	if got.Severity != SeverityCritical {
		t.Errorf("Severity = %q, want %q", got.Severity, SeverityCritical)
	}
	if got.Value != 97 || got.Threshold != 95 {
		t.Errorf("Value/Threshold = %v/%v, want 97/95", got.Value, got.Threshold)
	}
}

func TestInvokeStatusCallbackSafe_RecoverPanic(t *testing.T) {
	// must not propagate the panic
	invokeStatusCallbackSafe(func(StatusResult) {
		panic("callback exploded")
	}, StatusResult{AgentName: "web-01"}, testLogger())
}

func TestInvokeAlertCallbackSafe_RecoverPanic(t *testing.T) {
	invokeAlertCallbackSafe(func(Alert) {
		panic("callback exploded")
	}, Alert{AgentName: "web-01", ID: "abc"}, testLogger())
}

func TestToInternalThresholds(t *testing.T) {
	custom := Thresholds{CPUUsage: Bound{Warning: 50, Critical: 75}}

	got := toInternalThresholds(custom)
	if got.CPUUsage != (threshold.Bound{Warning: 50, Critical: 75}) {
		t.Errorf("CPUUsage = %+v, want 50/75", got.CPUUsage)
	}
	if got.DiskPercent != (threshold.Bound{}) {
		t.Errorf("DiskPercent = %+v, want zero (disabled)", got.DiskPercent)
	}
}
