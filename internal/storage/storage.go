// Package storage persists collected metrics behind a pluggable backend.
//
// Three backends are provided: an append-only JSON-lines file, SQLite, and
// MySQL. They are interchangeable behind the [Store] interface and are
// selected by URL scheme via [Open].
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkeller/hostwatch/internal/threshold"
	"github.com/pkeller/hostwatch/internal/wire"
)

// Metric type names under which records are stored.
const (
	TypeCPUUsage       = "cpu_usage"
	TypeCPUTemperature = "cpu_temperature"
	TypeSystemLoad     = "system_load"
	TypeMemory         = "memory"
	TypeDisk           = "disk"
	TypeSecurity       = "security_threats"
	TypeAlert          = "alert"
)

// Record is one stored metric observation. Scalar metrics store their value
// as a formatted number; composite metrics store JSON.
type Record struct {
	// Agent is the name of the agent the metric came from.
	Agent string `json:"agent"`

	// Type is one of the Type* constants.
	Type string `json:"metric_type"`

	// Value is the metric payload, number or JSON depending on Type.
	Value string `json:"value"`

	// Metadata carries optional key-value annotations.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Timestamp is when the metric was observed.
	Timestamp time.Time `json:"timestamp"`
}

// Query selects records. Zero fields are wildcards except Agent, which is
// required. Limit caps the result count; zero means no cap. Results are
// ordered newest first.
type Query struct {
	Agent string
	Type  string
	Since time.Time
	Until time.Time
	Limit int
}

// Store is the persistence interface the collector writes through.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save appends a single record.
	Save(ctx context.Context, rec Record) error

	// Records returns stored records matching the query, newest first.
	Records(ctx context.Context, q Query) ([]Record, error)

	// Agents returns the sorted names of all agents with stored records.
	Agents(ctx context.Context) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// RecordsFromReport fans a metrics report out into one record per metric
// type: scalar CPU usage and temperature, JSON-encoded load, memory, disk,
// and security findings. Temperature is skipped when the agent has no
// sensor; security findings are skipped when there are none.
func RecordsFromReport(agent string, r *wire.Report, at time.Time) []Record {
	if r == nil {
		return nil
	}

	recs := []Record{
		{Agent: agent, Type: TypeCPUUsage, Value: formatFloat(r.CPUUsage), Timestamp: at},
	}
	if r.Temperature.Available {
		recs = append(recs, Record{Agent: agent, Type: TypeCPUTemperature, Value: formatFloat(r.Temperature.Celsius), Timestamp: at})
	}

	recs = append(recs,
		Record{Agent: agent, Type: TypeSystemLoad, Value: mustJSON(r.Load), Timestamp: at},
		Record{Agent: agent, Type: TypeMemory, Value: mustJSON(r.Memory), Timestamp: at},
		Record{Agent: agent, Type: TypeDisk, Value: mustJSON(r.Disk), Timestamp: at},
	)

	if len(r.Threats) > 0 {
		recs = append(recs, Record{Agent: agent, Type: TypeSecurity, Value: mustJSON(r.Threats), Timestamp: at})
	}
	return recs
}

// RecordFromAlert converts a threshold alert into a durable record.
func RecordFromAlert(a threshold.Alert) Record {
	return Record{
		Agent: a.Agent,
		Type:  TypeAlert,
		Value: mustJSON(a),
		Metadata: map[string]string{
			"metric":   a.Metric,
			"severity": string(a.Severity),
		},
		Timestamp: a.At,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// mustJSON marshals values that cannot fail (plain structs of scalars).
func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%q", err.Error())
	}
	return string(b)
}

// matches reports whether a record satisfies a query, ignoring Limit.
// Shared by backends that filter in process.
func (q Query) matches(rec Record) bool {
	if rec.Agent != q.Agent {
		return false
	}
	if q.Type != "" && rec.Type != q.Type {
		return false
	}
	if !q.Since.IsZero() && rec.Timestamp.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && rec.Timestamp.After(q.Until) {
		return false
	}
	return true
}
