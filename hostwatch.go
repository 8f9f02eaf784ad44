package hostwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkeller/hostwatch/dashboard"
	"github.com/pkeller/hostwatch/internal/cache"
	"github.com/pkeller/hostwatch/internal/collector"
	"github.com/pkeller/hostwatch/internal/registry"
	"github.com/pkeller/hostwatch/internal/server"
	"github.com/pkeller/hostwatch/internal/storage"
	"github.com/pkeller/hostwatch/internal/threshold"
	"github.com/pkeller/hostwatch/internal/wire"
)

const (
	defaultPollInterval   = 15 * time.Second
	defaultPort           = 8080
	defaultMaxConcurrency = 10
	defaultStorageURL     = "file://hostwatch-metrics.jsonl"
)

// Monitor is the main orchestrator for agent polling, metric storage,
// threshold alerting and dashboard serving.
//
// Monitor coordinates polling the registered agents over XML-RPC, persists
// every fetched metric, evaluates thresholds, and serves a real-time
// dashboard via HTTP. It is created using [New] with functional options and
// started with [Monitor.Start].
//
// The typical lifecycle is:
//
//	m, err := hostwatch.New(hostwatch.WithAgent(agent))
//	if err != nil {
//	    slog.Error("failed to create monitor", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	m.Start(ctx) // blocks until context cancelled
//
// The caller controls the lifecycle via the context. Cancel the context to
// trigger graceful shutdown.
type Monitor struct {
	title          string
	agents         []AgentTarget
	pollInterval   time.Duration
	port           int
	maxConcurrency int
	storageURL     string
	registryFile   string
	thresholds     Thresholds
	logger         *slog.Logger
	statusCbs      []func(StatusResult)
	alertCbs       []func(Alert)
}

// New creates a new [Monitor] with the given options.
//
// Agents may be configured up front via [WithAgent] or [WithAgents], or
// registered later through the dashboard API; starting with none is valid.
// Other options have sensible defaults:
//   - Poll interval: 15 seconds
//   - Port: 8080
//   - Max concurrency: 10
//   - Storage: JSON-lines file in the working directory
//
// Returns an error if any option is invalid or agent names collide.
func New(opts ...Option) (*Monitor, error) {
	cfg := &monitorConfig{
		pollInterval:   defaultPollInterval,
		port:           defaultPort,
		maxConcurrency: defaultMaxConcurrency,
		storageURL:     defaultStorageURL,
		thresholds:     DefaultThresholds(),
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// agent names key everything downstream: polling state, storage, cache
	seen := make(map[string]bool, len(cfg.agents))
	addrs := make(map[string]string, len(cfg.agents))
	for _, a := range cfg.agents {
		if seen[a.name] {
			return nil, fmt.Errorf("duplicate agent name: %q", a.name)
		}
		seen[a.name] = true
		if prev, ok := addrs[a.address]; ok {
			return nil, fmt.Errorf("duplicate agent address %q (agents %q and %q)", a.address, prev, a.name)
		}
		addrs[a.address] = a.name
	}

	if cfg.port < 1 || cfg.port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.port)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		title:          cfg.title,
		agents:         cfg.agents,
		pollInterval:   cfg.pollInterval,
		port:           cfg.port,
		maxConcurrency: cfg.maxConcurrency,
		storageURL:     cfg.storageURL,
		registryFile:   cfg.registryFile,
		thresholds:     cfg.thresholds,
		logger:         logger,
		statusCbs:      cfg.statusCbs,
		alertCbs:       cfg.alertCbs,
	}, nil
}

// Agents returns a copy of the agents configured at construction time.
// Agents registered later through the dashboard API are not included.
func (m *Monitor) Agents() []AgentTarget {
	cp := make([]AgentTarget, len(m.agents))
	copy(cp, m.agents)
	return cp
}

// Port returns the configured HTTP port for the dashboard server.
func (m *Monitor) Port() int {
	return m.port
}

// PollInterval returns the configured interval between polling cycles.
func (m *Monitor) PollInterval() time.Duration {
	return m.pollInterval
}

// Start begins polling agents and serving the dashboard.
//
// Start is a blocking call that runs until the provided context is
// cancelled. During execution:
//
//   - All registered agents are polled immediately, then at their interval
//   - Every fetched metric is persisted to the configured store
//   - Threshold violations produce alerts, persisted and exposed via the API
//   - The dashboard is available at http://localhost:<port>
//
// Returns nil on graceful shutdown. Returns an error if the storage backend
// or the HTTP server fails to start.
func (m *Monitor) Start(ctx context.Context) error {
	m.logger.Info("hostwatch starting", "agent_count", len(m.agents))
	m.logger.Info("polling configured", "interval", m.pollInterval.String())
	m.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", m.port))

	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	reg, err := registry.New(m.registryFile)
	if err != nil {
		return fmt.Errorf("failed to open agent registry: %w", err)
	}
	m.seedRegistry(reg)

	store, err := storage.Open(m.storageURL)
	if err != nil {
		return fmt.Errorf("failed to open metrics storage: %w", err)
	}

	statusCache := cache.NewStatusCache()
	evaluator := threshold.NewEvaluator(toInternalThresholds(m.thresholds))

	scheduler := collector.NewScheduler(reg, m.pollInterval, m.maxConcurrency, m.logger)
	scheduler.Start(ctx)

	// track the results consumer goroutine to ensure clean shutdown
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for result := range scheduler.Results() {
			m.consume(ctx, result, store, statusCache, evaluator)
		}
	}()

	// cleanup ensures the scheduler is stopped and all results are processed
	cleanup := func() {
		scheduler.Stop() // closes results channel
		wg.Wait()        // wait for all results to be processed
		if err := store.Close(); err != nil {
			m.logger.Error("failed to close storage", "error", err)
		}
	}

	httpServer := server.NewServer(statusCache, reg, store, m.port, dashboard.Assets, m.title, m.logger)
	if err := httpServer.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	<-ctx.Done()
	cleanup()
	m.logger.Info("hostwatch stopped")
	return nil
}

// seedRegistry adds the agents configured at construction time. Entries
// already present (loaded from the registry file) win; duplicates from the
// configuration are skipped.
func (m *Monitor) seedRegistry(reg *registry.Registry) {
	for _, a := range m.agents {
		err := reg.Add(collector.Target{
			Name:     a.name,
			Address:  a.address,
			Labels:   copyMap(a.labels),
			Timeout:  a.timeout,
			Interval: a.interval,
			Enabled:  true,
		})
		if err != nil {
			if errors.Is(err, registry.ErrDuplicateName) || errors.Is(err, registry.ErrDuplicateAddress) {
				m.logger.Debug("agent already registered", "agent", a.name)
				continue
			}
			m.logger.Error("failed to register agent", "agent", a.name, "error", err)
		}
	}
}

// consume handles one poll result: persist first, then publish to the cache,
// then evaluate thresholds, then fire callbacks. Callbacks always observe
// state that has already been persisted.
func (m *Monitor) consume(ctx context.Context, result collector.Result, store storage.Store, statusCache *cache.StatusCache, evaluator *threshold.Evaluator) {
	for _, rec := range storage.RecordsFromReport(result.AgentName, result.Report, result.CheckedAt) {
		if err := store.Save(ctx, rec); err != nil {
			m.logger.Error("failed to persist metric", "agent", result.AgentName, "type", rec.Type, "error", err)
		}
	}

	statusCache.Update(toCacheStatus(result))

	var alerts []threshold.Alert
	if result.Err == nil {
		alerts = evaluator.Evaluate(result.AgentName, result.Report)
		for _, a := range alerts {
			if err := store.Save(ctx, storage.RecordFromAlert(a)); err != nil {
				m.logger.Error("failed to persist alert", "agent", a.Agent, "metric", a.Metric, "error", err)
			}
			m.logger.Warn("threshold alert",
				"agent", a.Agent,
				"metric", a.Metric,
				"severity", a.Severity,
				"message", a.Message,
			)
		}
		statusCache.AddAlerts(alerts)
	}

	if len(m.statusCbs) > 0 {
		publicResult := toPublicResult(result)
		for _, cb := range m.statusCbs {
			invokeStatusCallbackSafe(cb, publicResult, m.logger)
		}
	}
	if len(m.alertCbs) > 0 {
		for _, a := range alerts {
			publicAlert := toPublicAlert(a)
			for _, cb := range m.alertCbs {
				invokeAlertCallbackSafe(cb, publicAlert, m.logger)
			}
		}
	}

	// log poll results (DEBUG level for success to reduce noise)
	logAttrs := []any{
		"agent", result.AgentName,
		"address", result.Address,
		"latency_ms", result.Latency.Milliseconds(),
	}
	if result.Err != nil {
		m.logger.Warn("poll completed with error", append(logAttrs, "error", result.Err.Error())...)
	} else {
		m.logger.Debug("poll completed", logAttrs...)
	}
}

// toCacheStatus converts a poll result to the cache's JSON-facing shape.
func toCacheStatus(r collector.Result) cache.AgentStatus {
	var errStr *string
	status := string(StatusUp)
	if r.Err != nil {
		s := r.Err.Error()
		errStr = &s
		status = string(StatusDown)
	}

	return cache.AgentStatus{
		Name:                r.AgentName,
		Address:             r.Address,
		Status:              status,
		Labels:              r.Labels,
		LatencyMs:           r.Latency.Milliseconds(),
		CheckedAt:           r.CheckedAt,
		Error:               errStr,
		ConsecutiveFailures: r.ConsecutiveFailures,
		Report:              r.Report,
	}
}

// toPublicResult converts an internal poll result to the public API type.
// Creates defensive copies of mutable fields to prevent data races.
func toPublicResult(r collector.Result) StatusResult {
	status := StatusUp
	if r.Err != nil {
		status = StatusDown
	}

	return StatusResult{
		AgentName:           r.AgentName,
		Address:             r.Address,
		Status:              status,
		Labels:              copyMap(r.Labels),
		Latency:             r.Latency,
		CheckedAt:           r.CheckedAt,
		Error:               r.Err,
		ConsecutiveFailures: r.ConsecutiveFailures,
		Metrics:             toPublicMetrics(r.Report),
	}
}

func toPublicMetrics(r *wire.Report) *Metrics {
	if r == nil {
		return nil
	}

	m := &Metrics{
		Hostname:    r.Hostname,
		Platform:    r.Platform,
		Timestamp:   r.Timestamp,
		CPUUsage:    r.CPUUsage,
		Temperature: Temperature(r.Temperature),
		Load:        Load(r.Load),
		Memory: Memory{
			Total:       int64(r.Memory.Total),
			Available:   int64(r.Memory.Available),
			Used:        int64(r.Memory.Used),
			Free:        int64(r.Memory.Free),
			UsedPercent: r.Memory.UsedPercent,
		},
		Disk: Disk{
			Path:        r.Disk.Path,
			Total:       int64(r.Disk.Total),
			Used:        int64(r.Disk.Used),
			Free:        int64(r.Disk.Free),
			UsedPercent: r.Disk.UsedPercent,
		},
	}
	for _, t := range r.Threats {
		m.Threats = append(m.Threats, Threat(t))
	}
	return m
}

func toPublicAlert(a threshold.Alert) Alert {
	return Alert{
		ID:        a.ID,
		AgentName: a.Agent,
		Metric:    a.Metric,
		Severity:  Severity(a.Severity),
		Value:     a.Value,
		Threshold: a.Threshold,
		Message:   a.Message,
		At:        a.At,
	}
}

func toInternalThresholds(t Thresholds) threshold.Thresholds {
	return threshold.Thresholds{
		CPUUsage:       threshold.Bound(t.CPUUsage),
		CPUTemperature: threshold.Bound(t.CPUTemperature),
		Load1:          threshold.Bound(t.Load1),
		MemoryPercent:  threshold.Bound(t.MemoryPercent),
		DiskPercent:    threshold.Bound(t.DiskPercent),
	}
}

// invokeStatusCallbackSafe calls a status callback with panic recovery.
// Panics are logged with a correlation ID but do not propagate.
func invokeStatusCallbackSafe(cb func(StatusResult), result StatusResult, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("status callback panicked",
				"panic", r,
				"agent", result.AgentName,
				"correlation_id", uuid.NewString(),
			)
		}
	}()
	cb(result)
}

// invokeAlertCallbackSafe calls an alert callback with panic recovery.
func invokeAlertCallbackSafe(cb func(Alert), alert Alert, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("alert callback panicked",
				"panic", r,
				"agent", alert.AgentName,
				"alert_id", alert.ID,
			)
		}
	}()
	cb(alert)
}
