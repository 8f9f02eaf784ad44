package main

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/pkeller/hostwatch/internal/wire"
)

// MockSource is a synthetic metrics source whose CPU usage ramps up and
// down over a few minutes, periodically crossing the default thresholds so
// the demo produces alerts.
type MockSource struct {
	hostname string
	started  time.Time
}

// NewMockSource creates a synthetic source named hostname.
func NewMockSource(hostname string) *MockSource {
	return &MockSource{hostname: hostname, started: time.Now()}
}

// CPUUsage oscillates between roughly 20% and 100% on a 4 minute cycle.
func (m *MockSource) CPUUsage(_ context.Context) float64 {
	elapsed := time.Since(m.started).Seconds()
	base := 60 + 40*math.Sin(elapsed*2*math.Pi/240)
	jittered := base + rand.Float64()*5
	return math.Max(0, math.Min(100, jittered))
}

// Temperature tracks CPU usage, as a loaded machine's would.
func (m *MockSource) Temperature(ctx context.Context) wire.TemperatureInfo {
	return wire.TemperatureInfo{
		Celsius:   40 + m.CPUUsage(ctx)/3,
		Available: true,
	}
}

func (m *MockSource) Load(ctx context.Context) wire.LoadAverages {
	l := m.CPUUsage(ctx) / 25
	return wire.LoadAverages{Load1: l, Load5: l * 0.8, Load15: l * 0.6}
}

func (m *MockSource) Memory(_ context.Context) wire.MemoryStats {
	const total = 8 << 30
	used := int(float64(total) * (0.5 + rand.Float64()*0.1))
	return wire.MemoryStats{
		Total:       total,
		Available:   total - used,
		Used:        used,
		Free:        total - used,
		UsedPercent: float64(used) / float64(total) * 100,
	}
}

func (m *MockSource) Disk(_ context.Context) wire.DiskStats {
	const total = 100 << 30
	const used = 42 << 30
	return wire.DiskStats{
		Path:        "/",
		Total:       total,
		Used:        used,
		Free:        total - used,
		UsedPercent: float64(used) / float64(total) * 100,
	}
}

func (m *MockSource) Threats(_ context.Context) []wire.Threat {
	return nil
}

func (m *MockSource) Identity(_ context.Context) (hostname, platform string) {
	return m.hostname, "synthetic"
}

func (m *MockSource) Report(ctx context.Context) *wire.Report {
	hostname, platform := m.Identity(ctx)
	return &wire.Report{
		Hostname:    hostname,
		Platform:    platform,
		Timestamp:   time.Now().UTC(),
		CPUUsage:    m.CPUUsage(ctx),
		Temperature: m.Temperature(ctx),
		Load:        m.Load(ctx),
		Memory:      m.Memory(ctx),
		Disk:        m.Disk(ctx),
		Threats:     m.Threats(ctx),
	}
}
