package agentsrv

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkeller/hostwatch/internal/collector"
	"github.com/pkeller/hostwatch/internal/wire"
)

// fakeSource returns canned readings.
type fakeSource struct {
	cpu      float64
	temp     wire.TemperatureInfo
	load     wire.LoadAverages
	memory   wire.MemoryStats
	disk     wire.DiskStats
	threats  []wire.Threat
	hostname string
	platform string
}

func (f *fakeSource) Report(ctx context.Context) *wire.Report {
	return &wire.Report{
		Hostname:    f.hostname,
		Platform:    f.platform,
		Timestamp:   time.Now().UTC(),
		CPUUsage:    f.cpu,
		Temperature: f.temp,
		Load:        f.load,
		Memory:      f.memory,
		Disk:        f.disk,
		Threats:     f.threats,
	}
}

func (f *fakeSource) CPUUsage(ctx context.Context) float64               { return f.cpu }
func (f *fakeSource) Temperature(ctx context.Context) wire.TemperatureInfo { return f.temp }
func (f *fakeSource) Threats(ctx context.Context) []wire.Threat          { return f.threats }
func (f *fakeSource) Identity(ctx context.Context) (string, string)      { return f.hostname, f.platform }

func testRequest() *http.Request {
	return httptest.NewRequest(http.MethodPost, wire.RPCPath, nil)
}

func TestService_Ping(t *testing.T) {
	svc := NewService(&fakeSource{})

	var reply PingReply
	if err := svc.Ping(testRequest(), nil, &reply); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if reply.Message != wire.PongMessage {
		t.Errorf("Message = %q, want %q", reply.Message, wire.PongMessage)
	}
}

func TestService_GetMetrics(t *testing.T) {
	svc := NewService(&fakeSource{
		cpu:      55.5,
		temp:     wire.TemperatureInfo{Celsius: 60, Available: true},
		hostname: "agent-1",
		platform: "linux",
	})

	var reply MetricsReply
	if err := svc.GetMetrics(testRequest(), nil, &reply); err != nil {
		t.Fatalf("GetMetrics() error = %v", err)
	}
	if reply.Report.Hostname != "agent-1" {
		t.Errorf("Hostname = %q, want %q", reply.Report.Hostname, "agent-1")
	}
	if reply.Report.CPUUsage != 55.5 {
		t.Errorf("CPUUsage = %v, want 55.5", reply.Report.CPUUsage)
	}
	if reply.Report.Threats == nil {
		t.Error("Threats = nil, want empty slice for the codec")
	}
}

func TestService_GetCPUUsage(t *testing.T) {
	svc := NewService(&fakeSource{cpu: 12.5})

	var reply CPUReply
	if err := svc.GetCPUUsage(testRequest(), nil, &reply); err != nil {
		t.Fatalf("GetCPUUsage() error = %v", err)
	}
	if reply.Usage != 12.5 {
		t.Errorf("Usage = %v, want 12.5", reply.Usage)
	}
}

func TestService_GetTemperature(t *testing.T) {
	svc := NewService(&fakeSource{temp: wire.TemperatureInfo{Celsius: 48.5, Available: true}})

	var reply TemperatureReply
	if err := svc.GetTemperature(testRequest(), nil, &reply); err != nil {
		t.Fatalf("GetTemperature() error = %v", err)
	}
	if !reply.Temperature.Available {
		t.Error("Available = false, want true")
	}
	if reply.Temperature.Celsius != 48.5 {
		t.Errorf("Celsius = %v, want 48.5", reply.Temperature.Celsius)
	}
}

func TestService_GetSecurityStatus(t *testing.T) {
	threats := []wire.Threat{
		{Type: "failed_logins", Severity: "high", Description: "14 failed logins"},
	}
	svc := NewService(&fakeSource{threats: threats})

	var reply SecurityReply
	if err := svc.GetSecurityStatus(testRequest(), nil, &reply); err != nil {
		t.Fatalf("GetSecurityStatus() error = %v", err)
	}
	if len(reply.Threats) != 1 || reply.Threats[0].Type != "failed_logins" {
		t.Errorf("Threats = %+v, want one failed_logins finding", reply.Threats)
	}
}

func TestService_GetSecurityStatusClean(t *testing.T) {
	svc := NewService(&fakeSource{})

	var reply SecurityReply
	if err := svc.GetSecurityStatus(testRequest(), nil, &reply); err != nil {
		t.Fatalf("GetSecurityStatus() error = %v", err)
	}
	if reply.Threats == nil {
		t.Error("Threats = nil, want empty slice for the codec")
	}
	if len(reply.Threats) != 0 {
		t.Errorf("Threats = %+v, want empty", reply.Threats)
	}
}

func TestService_GetStatus(t *testing.T) {
	svc := NewService(&fakeSource{hostname: "agent-1", platform: "linux"})

	var reply StatusReply
	if err := svc.GetStatus(testRequest(), nil, &reply); err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if reply.Info.Status != "ok" {
		t.Errorf("Status = %q, want %q", reply.Info.Status, "ok")
	}
	if reply.Info.Hostname != "agent-1" {
		t.Errorf("Hostname = %q, want %q", reply.Info.Hostname, "agent-1")
	}
	if reply.Info.Platform != "linux" {
		t.Errorf("Platform = %q, want %q", reply.Info.Platform, "linux")
	}
	if reply.Info.Timestamp.IsZero() {
		t.Error("Timestamp is zero")
	}
}

func TestServer_HandlerServesXMLRPC(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer("127.0.0.1:0", &fakeSource{hostname: "agent-1"}, logger)

	handler, err := srv.handler()
	if err != nil {
		t.Fatalf("handler() error = %v", err)
	}

	body := `<?xml version="1.0"?><methodCall><methodName>Agent.Ping</methodName><params></params></methodCall>`
	req := httptest.NewRequest(http.MethodPost, wire.RPCPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "text/xml")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), wire.PongMessage) {
		t.Errorf("response body %q does not contain %q", rec.Body.String(), wire.PongMessage)
	}
}

// TestServer_FullReportOverTheWire fetches a fully populated report through
// the real codec with the collector's client. It pins the round trip of
// every report member, in particular the integer byte counts and the threat
// list, which a direct method call does not serialize.
func TestServer_FullReportOverTheWire(t *testing.T) {
	source := &fakeSource{
		cpu:      42.5,
		temp:     wire.TemperatureInfo{Celsius: 61.5, Available: true},
		load:     wire.LoadAverages{Load1: 1.5, Load5: 1.2, Load15: 1.0},
		memory:   wire.MemoryStats{Total: 8 << 30, Available: 2 << 30, Used: 6 << 30, Free: 2 << 30, UsedPercent: 75},
		disk:     wire.DiskStats{Path: "/", Total: 100 << 30, Used: 42 << 30, Free: 58 << 30, UsedPercent: 42},
		threats:  []wire.Threat{{Type: "suspicious_port", Severity: "high", Description: "port 31337 listening"}},
		hostname: "agent-1",
		platform: "linux",
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer("127.0.0.1:0", source, logger)
	handler, err := srv.handler()
	if err != nil {
		t.Fatalf("handler() error = %v", err)
	}

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	client := collector.NewClient(strings.TrimPrefix(ts.URL, "http://"), 2*time.Second)
	defer client.Close()

	report, err := client.Metrics(context.Background())
	if err != nil {
		t.Fatalf("Metrics() error = %v", err)
	}

	if report.Hostname != "agent-1" || report.Platform != "linux" {
		t.Errorf("identity = %q/%q, want agent-1/linux", report.Hostname, report.Platform)
	}
	if report.CPUUsage != 42.5 {
		t.Errorf("CPUUsage = %v, want 42.5", report.CPUUsage)
	}
	if !report.Temperature.Available || report.Temperature.Celsius != 61.5 {
		t.Errorf("Temperature = %+v, want 61.5 available", report.Temperature)
	}
	if report.Load != (wire.LoadAverages{Load1: 1.5, Load5: 1.2, Load15: 1.0}) {
		t.Errorf("Load = %+v, want 1.5/1.2/1.0", report.Load)
	}
	if report.Memory != (wire.MemoryStats{Total: 8 << 30, Available: 2 << 30, Used: 6 << 30, Free: 2 << 30, UsedPercent: 75}) {
		t.Errorf("Memory = %+v, want the canned stats", report.Memory)
	}
	if report.Disk != (wire.DiskStats{Path: "/", Total: 100 << 30, Used: 42 << 30, Free: 58 << 30, UsedPercent: 42}) {
		t.Errorf("Disk = %+v, want the canned stats", report.Disk)
	}
	if len(report.Threats) != 1 {
		t.Fatalf("Threats = %+v, want exactly one finding", report.Threats)
	}
	threat := report.Threats[0]
	if threat.Type != "suspicious_port" || threat.Severity != "high" {
		t.Errorf("threat = %+v, want suspicious_port/high", threat)
	}
	if threat.Description != "port 31337 listening" {
		t.Errorf("Description = %q, want the port finding text", threat.Description)
	}
}

func TestServer_UnknownPathNotFound(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer("127.0.0.1:0", &fakeSource{}, logger)

	handler, err := srv.handler()
	if err != nil {
		t.Fatalf("handler() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/other", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
