// Package sysinfo gathers OS-level metrics for the agent: CPU usage,
// temperature, load averages, memory, disk and a set of lightweight
// security checks.
//
// Collection degrades gracefully: a sensor that is missing on the host
// (temperature on most VMs, load averages on Windows) yields a zero value
// or an unavailable flag instead of an error.
package sysinfo

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"

	"github.com/pkeller/hostwatch/internal/wire"
)

const (
	// cpuSampleWindow is how long CPU usage is sampled per reading.
	cpuSampleWindow = 200 * time.Millisecond

	// temperatureCacheTTL avoids hammering the sensor subsystem when
	// several RPC methods ask for the temperature in quick succession.
	temperatureCacheTTL = 5 * time.Second
)

// preferredSensors are tried in order when picking a CPU temperature
// reading; the first matching sensor wins. Covers Raspberry Pi, Intel,
// AMD and ACPI hosts.
var preferredSensors = []string{"cpu_thermal", "coretemp", "k10temp", "acpitz"}

// Probe reads metrics from the local host.
type Probe struct {
	diskPath string
	scanner  *SecurityScanner

	tempMu   sync.Mutex
	tempAt   time.Time
	tempInfo wire.TemperatureInfo
}

// NewProbe creates a [Probe]. diskPath is the mount point measured for
// disk usage, "/" when empty.
func NewProbe(diskPath string) *Probe {
	if diskPath == "" {
		diskPath = "/"
	}
	return &Probe{
		diskPath: diskPath,
		scanner:  NewSecurityScanner(),
	}
}

// CPUUsage returns total CPU utilisation in percent, sampled over a short
// window. Returns 0 when the reading is unavailable.
func (p *Probe) CPUUsage(ctx context.Context) float64 {
	percents, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false)
	if err != nil || len(percents) == 0 {
		return 0
	}
	return percents[0]
}

// Temperature returns the CPU temperature in Celsius. Readings are cached
// for a few seconds. Available is false on hosts without a usable sensor.
func (p *Probe) Temperature(ctx context.Context) wire.TemperatureInfo {
	p.tempMu.Lock()
	defer p.tempMu.Unlock()

	if time.Since(p.tempAt) < temperatureCacheTTL {
		return p.tempInfo
	}

	p.tempInfo = readTemperature(ctx)
	p.tempAt = time.Now()
	return p.tempInfo
}

func readTemperature(ctx context.Context) wire.TemperatureInfo {
	stats, err := sensors.TemperaturesWithContext(ctx)
	if err != nil || len(stats) == 0 {
		return wire.TemperatureInfo{}
	}

	for _, key := range preferredSensors {
		for _, st := range stats {
			if st.SensorKey == key && st.Temperature > 0 {
				return wire.TemperatureInfo{Celsius: st.Temperature, Available: true}
			}
		}
	}

	// fall back to the first plausible reading
	for _, st := range stats {
		if st.Temperature > 0 {
			return wire.TemperatureInfo{Celsius: st.Temperature, Available: true}
		}
	}
	return wire.TemperatureInfo{}
}

// Load returns the 1/5/15 minute load averages, zeros when unavailable.
func (p *Probe) Load(ctx context.Context) wire.LoadAverages {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return wire.LoadAverages{}
	}
	return wire.LoadAverages{
		Load1:  avg.Load1,
		Load5:  avg.Load5,
		Load15: avg.Load15,
	}
}

// Memory returns virtual memory usage, zeros when unavailable.
func (p *Probe) Memory(ctx context.Context) wire.MemoryStats {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return wire.MemoryStats{}
	}
	return wire.MemoryStats{
		Total:       int(vm.Total),
		Available:   int(vm.Available),
		Used:        int(vm.Used),
		Free:        int(vm.Free),
		UsedPercent: vm.UsedPercent,
	}
}

// Disk returns usage of the configured mount point, zeros when unavailable.
func (p *Probe) Disk(ctx context.Context) wire.DiskStats {
	usage, err := disk.UsageWithContext(ctx, p.diskPath)
	if err != nil {
		return wire.DiskStats{Path: p.diskPath}
	}
	return wire.DiskStats{
		Path:        p.diskPath,
		Total:       int(usage.Total),
		Used:        int(usage.Used),
		Free:        int(usage.Free),
		UsedPercent: usage.UsedPercent,
	}
}

// Threats runs the security checks and returns any findings.
func (p *Probe) Threats(ctx context.Context) []wire.Threat {
	return p.scanner.Scan(ctx)
}

// Identity returns the host's name and platform, empty strings when
// unavailable.
func (p *Probe) Identity(ctx context.Context) (hostname, platform string) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return "", ""
	}
	platform = info.Platform
	if platform == "" {
		platform = info.OS
	}
	return info.Hostname, platform
}

// Report collects a full metrics snapshot. It never fails; individual
// readings degrade to zero values when their source is unavailable.
func (p *Probe) Report(ctx context.Context) *wire.Report {
	hostname, platform := p.Identity(ctx)
	return &wire.Report{
		Hostname:    hostname,
		Platform:    platform,
		Timestamp:   time.Now().UTC(),
		CPUUsage:    p.CPUUsage(ctx),
		Temperature: p.Temperature(ctx),
		Load:        p.Load(ctx),
		Memory:      p.Memory(ctx),
		Disk:        p.Disk(ctx),
		Threats:     p.Threats(ctx),
	}
}
