// Package hostwatch provides a lightweight, embeddable monitoring system
// that polls remote hosts for OS metrics over XML-RPC.
//
// Hostwatch is designed as an SDK-first library, allowing developers to
// programmatically configure and deploy a metrics collector as part of
// their applications. Each monitored host runs a small agent process
// answering XML-RPC calls; the monitor polls the agents concurrently,
// persists every fetched metric, evaluates static thresholds, and serves
// a real-time dashboard.
//
// # Quick Start
//
// Register agents and start the monitor with graceful shutdown:
//
//	agent, _ := hostwatch.NewAgentTarget("web-01", "10.0.0.5:9931")
//	m, _ := hostwatch.New(hostwatch.WithAgent(agent))
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	m.Start(ctx) // blocks until context is cancelled
//
// # Configuration
//
// Hostwatch uses the functional options pattern for configuration:
//
//	m, err := hostwatch.New(
//	    hostwatch.WithAgent(agent1),
//	    hostwatch.WithAgent(agent2),
//	    hostwatch.WithPollInterval(30 * time.Second),
//	    hostwatch.WithPort(9090),
//	    hostwatch.WithStorageURL("sqlite://hostwatch.db"),
//	    hostwatch.WithRegistryFile("agents.json"),
//	)
//
// Agents can also be configured with options:
//
//	agent, err := hostwatch.NewAgentTarget("web-01", "10.0.0.5:9931",
//	    hostwatch.WithLabels("env", "production", "team", "platform"),
//	    hostwatch.WithTimeout(5 * time.Second),
//	    hostwatch.WithInterval(time.Minute),
//	)
//
// # Storage
//
// Collected metrics are persisted through a pluggable backend selected by
// URL scheme: an append-only JSON-lines file (file://), SQLite (sqlite://)
// or MySQL (mysql://). The backends are interchangeable; the dashboard's
// history API works the same against all three.
//
// # Alerts
//
// Every successful poll is evaluated against static thresholds (CPU usage,
// CPU temperature, load average, memory, disk). Crossing a boundary fires
// an alert, which is persisted, exposed via the dashboard API, and passed
// to callbacks registered with [WithAlertCallback]. Security findings
// reported by agents become alerts as well.
//
// # Architecture
//
// Hostwatch consists of several internal packages (under internal/):
//
//   - internal/collector: XML-RPC client and concurrent polling scheduler
//   - internal/registry: persistent agent registry with runtime CRUD
//   - internal/threshold: static threshold evaluation
//   - internal/storage: pluggable metric persistence
//   - internal/cache: in-memory status cache with pub/sub for live updates
//   - internal/server: HTTP server with REST API and Server-Sent Events
//   - internal/sysinfo: agent-side OS metric probes
//   - internal/agentsrv: agent-side XML-RPC endpoint
//   - dashboard: embedded web UI assets
//
// The internal packages are not part of the public API and may change
// without notice. The library is designed for single-binary deployment
// using Go's embed directive for static assets.
package hostwatch
