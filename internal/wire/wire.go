// Package wire defines the XML-RPC payload types exchanged between the
// collector and agents.
//
// Both sides of the wire live in this repository, so the same structs are
// used for encoding (agent) and decoding (collector). Member names on the
// wire are the exported Go field names; the json tags exist only for the
// dashboard API, which re-serializes reports for the browser.
package wire

import "time"

// Method names exposed by the agent's XML-RPC endpoint. The "Agent." prefix
// is the RPC service name the agent registers under.
const (
	MethodPing           = "Agent.Ping"
	MethodGetMetrics     = "Agent.GetMetrics"
	MethodGetCPU         = "Agent.GetCPUUsage"
	MethodGetTemperature = "Agent.GetTemperature"
	MethodGetSecurity    = "Agent.GetSecurityStatus"
	MethodGetStatus      = "Agent.GetStatus"
)

// RPCPath is the HTTP path the agent serves XML-RPC on.
const RPCPath = "/RPC2"

// PongMessage is the expected reply to MethodPing.
const PongMessage = "pong"

// Report is a full metrics snapshot from one agent.
type Report struct {
	Hostname    string          `json:"hostname"`
	Platform    string          `json:"platform"`
	Timestamp   time.Time       `json:"timestamp"`
	CPUUsage    float64         `json:"cpu_usage"`
	Temperature TemperatureInfo `json:"temperature"`
	Load        LoadAverages    `json:"load"`
	Memory      MemoryStats     `json:"memory"`
	Disk        DiskStats       `json:"disk"`
	Threats     []Threat        `json:"threats"`
}

// TemperatureInfo carries a CPU temperature reading. XML-RPC has no null
// value, so missing sensors are signalled with Available=false rather than
// a nil field.
type TemperatureInfo struct {
	Celsius   float64 `json:"celsius"`
	Available bool    `json:"available"`
}

// LoadAverages holds the 1/5/15 minute load averages.
type LoadAverages struct {
	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`
}

// MemoryStats holds virtual memory usage in bytes. Byte counts are int,
// not int64: the XML-RPC codec only encodes reflect.Int, and an int64
// field would silently serialize as an empty value.
type MemoryStats struct {
	Total       int     `json:"total"`
	Available   int     `json:"available"`
	Used        int     `json:"used"`
	Free        int     `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

// DiskStats holds disk usage for a single mount path. Byte counts are int
// for the same codec reason as MemoryStats.
type DiskStats struct {
	Path        string  `json:"path"`
	Total       int     `json:"total"`
	Used        int     `json:"used"`
	Free        int     `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

// Threat is a single security finding reported by an agent.
type Threat struct {
	Type        string    `json:"type"`
	Severity    string    `json:"severity"`
	Description string    `json:"description"`
	DetectedAt  time.Time `json:"detected_at"`
}

// AgentInfo is the reply payload of MethodGetStatus.
type AgentInfo struct {
	Status    string    `json:"status"`
	Hostname  string    `json:"hostname"`
	Platform  string    `json:"platform"`
	Timestamp time.Time `json:"timestamp"`
}
