// Package agentsrv implements the agent's XML-RPC endpoint.
//
// The service is registered under the "Agent" namespace at /RPC2 and
// answers the methods the collector polls: Ping, GetMetrics, GetCPUUsage,
// GetTemperature, GetSecurityStatus and GetStatus. Every method is
// parameterless and returns a single value.
package agentsrv

import (
	"context"
	"net/http"
	"time"

	"github.com/pkeller/hostwatch/internal/wire"
)

// Source provides the readings the RPC methods serve.
// *sysinfo.Probe implements it; tests substitute a stub.
type Source interface {
	Report(ctx context.Context) *wire.Report
	CPUUsage(ctx context.Context) float64
	Temperature(ctx context.Context) wire.TemperatureInfo
	Threats(ctx context.Context) []wire.Threat
	Identity(ctx context.Context) (hostname, platform string)
}

// Service holds the RPC method set. Reply structs carry exactly one field:
// the codec encodes each reply field as a separate return value, and the
// collector's client expects a single one.
type Service struct {
	source Source
}

// NewService creates the RPC service backed by source.
func NewService(source Source) *Service {
	return &Service{source: source}
}

// PingReply carries the liveness probe response.
type PingReply struct {
	Message string
}

// Ping answers "pong". The collector uses it to verify connectivity before
// issuing real calls.
func (s *Service) Ping(r *http.Request, _ *struct{}, reply *PingReply) error {
	reply.Message = wire.PongMessage
	return nil
}

// MetricsReply carries a full metrics snapshot.
type MetricsReply struct {
	Report wire.Report
}

// GetMetrics returns a full metrics snapshot.
func (s *Service) GetMetrics(r *http.Request, _ *struct{}, reply *MetricsReply) error {
	report := s.source.Report(r.Context())
	if report.Threats == nil {
		// XML-RPC has no null; an empty array means "no findings"
		report.Threats = []wire.Threat{}
	}
	reply.Report = *report
	return nil
}

// CPUReply carries the CPU utilisation percentage.
type CPUReply struct {
	Usage float64
}

// GetCPUUsage returns current total CPU utilisation in percent.
func (s *Service) GetCPUUsage(r *http.Request, _ *struct{}, reply *CPUReply) error {
	reply.Usage = s.source.CPUUsage(r.Context())
	return nil
}

// TemperatureReply carries the CPU temperature reading.
type TemperatureReply struct {
	Temperature wire.TemperatureInfo
}

// GetTemperature returns the CPU temperature. Available is false on hosts
// without a usable thermal sensor.
func (s *Service) GetTemperature(r *http.Request, _ *struct{}, reply *TemperatureReply) error {
	reply.Temperature = s.source.Temperature(r.Context())
	return nil
}

// SecurityReply carries the security findings.
type SecurityReply struct {
	Threats []wire.Threat
}

// GetSecurityStatus returns current security findings, empty when clean.
func (s *Service) GetSecurityStatus(r *http.Request, _ *struct{}, reply *SecurityReply) error {
	threats := s.source.Threats(r.Context())
	if threats == nil {
		threats = []wire.Threat{}
	}
	reply.Threats = threats
	return nil
}

// StatusReply carries the agent identity block.
type StatusReply struct {
	Info wire.AgentInfo
}

// GetStatus returns the agent's identity and current time.
func (s *Service) GetStatus(r *http.Request, _ *struct{}, reply *StatusReply) error {
	hostname, platform := s.source.Identity(r.Context())
	reply.Info = wire.AgentInfo{
		Status:    "ok",
		Hostname:  hostname,
		Platform:  platform,
		Timestamp: time.Now().UTC(),
	}
	return nil
}
