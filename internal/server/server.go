package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkeller/hostwatch/internal/cache"
	"github.com/pkeller/hostwatch/internal/collector"
	"github.com/pkeller/hostwatch/internal/registry"
	"github.com/pkeller/hostwatch/internal/storage"
)

const (
	// sseWriteTimeout caps a single SSE write so a slow or disconnected
	// client cannot block the handler past shutdown.
	// Must be <= shutdown timeout.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "hostwatch"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"

	// defaultMetricsLimit caps history responses when no limit is given.
	defaultMetricsLimit = 500

	// defaultAlertsLimit caps alert responses when no limit is given.
	defaultAlertsLimit = 100
)

// Server handles HTTP requests for the dashboard and API.
//
// Routes:
//   - GET /: embedded dashboard HTML
//   - GET /api/status: latest status of every agent as JSON
//   - GET /api/stream: Server-Sent Events stream of status updates
//   - GET /api/agents: registered agents
//   - POST /api/agents: register an agent
//   - DELETE /api/agents/{name}: remove an agent
//   - PATCH /api/agents/{name}: enable or disable polling for an agent
//   - GET /api/metrics: stored metric history
//   - GET /api/alerts: recent threshold alerts
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	statuses   *cache.StatusCache
	agents     *registry.Registry
	store      storage.Store
	port       int
	httpServer *http.Server
	assets     fs.FS
	title      string
	logger     *slog.Logger
}

// NewServer creates a new HTTP [Server].
//
// assets may be nil to disable the dashboard page (API only). title defaults
// to "hostwatch" if empty. The server is not started until [Server.Start]
// is called.
func NewServer(statuses *cache.StatusCache, agents *registry.Registry, st storage.Store, port int, assets fs.FS, title string, logger *slog.Logger) *Server {
	return &Server{
		statuses: statuses,
		agents:   agents,
		store:    st,
		port:     port,
		assets:   assets,
		title:    title,
		logger:   logger,
	}
}

// handler builds the route table. Separate from Start so tests can exercise
// the API through httptest without binding a port.
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/stream", s.handleSSE)
	mux.HandleFunc("GET /api/agents", s.handleListAgents)
	mux.HandleFunc("POST /api/agents", s.handleAddAgent)
	mux.HandleFunc("DELETE /api/agents/{name}", s.handleRemoveAgent)
	mux.HandleFunc("PATCH /api/agents/{name}", s.handleUpdateAgent)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/alerts", s.handleAlerts)

	if s.assets != nil {
		mux.HandleFunc("GET /", s.handleDashboard)
	}

	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler: s.handler(),
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	// read index.html from embedded assets
	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	safeTitle := html.EscapeString(title)
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, safeTitle)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// handleStatus returns the latest status of every agent as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.statuses.GetAll())
}

// agentView is the JSON shape of a registry entry in API responses.
type agentView struct {
	Name     string            `json:"name"`
	Address  string            `json:"address"`
	Labels   map[string]string `json:"labels,omitempty"`
	Timeout  string            `json:"timeout,omitempty"`
	Interval string            `json:"interval,omitempty"`
	Enabled  bool              `json:"enabled"`
	AddedAt  time.Time         `json:"added_at"`
}

func viewOf(e registry.Entry) agentView {
	v := agentView{
		Name:    e.Target.Name,
		Address: e.Target.Address,
		Labels:  e.Target.Labels,
		Enabled: e.Target.Enabled,
		AddedAt: e.AddedAt,
	}
	if e.Target.Timeout > 0 {
		v.Timeout = e.Target.Timeout.String()
	}
	if e.Target.Interval > 0 {
		v.Interval = e.Target.Interval.String()
	}
	return v
}

// handleListAgents returns all registered agents in insertion order.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	entries := s.agents.List()
	views := make([]agentView, len(entries))
	for i, e := range entries {
		views[i] = viewOf(e)
	}
	s.writeJSON(w, http.StatusOK, views)
}

// addAgentRequest is the body of POST /api/agents.
type addAgentRequest struct {
	Name     string            `json:"name"`
	Address  string            `json:"address"`
	Labels   map[string]string `json:"labels"`
	Timeout  string            `json:"timeout"`
	Interval string            `json:"interval"`
}

// handleAddAgent registers a new agent. Duplicate names and addresses are
// rejected with 409.
func (s *Server) handleAddAgent(w http.ResponseWriter, r *http.Request) {
	var req addAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if _, _, err := net.SplitHostPort(req.Address); err != nil {
		s.writeError(w, http.StatusBadRequest, "address must be host:port")
		return
	}

	target := collector.Target{
		Name:    req.Name,
		Address: req.Address,
		Labels:  req.Labels,
		Enabled: true,
	}
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid timeout")
			return
		}
		target.Timeout = d
	}
	if req.Interval != "" {
		d, err := time.ParseDuration(req.Interval)
		if err != nil || d < time.Second {
			s.writeError(w, http.StatusBadRequest, "invalid interval (minimum 1s)")
			return
		}
		target.Interval = d
	}

	if err := s.agents.Add(target); err != nil {
		if errors.Is(err, registry.ErrDuplicateName) || errors.Is(err, registry.ErrDuplicateAddress) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("failed to add agent", "agent", req.Name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to add agent")
		return
	}

	s.logger.Info("agent registered", "agent", req.Name, "address", req.Address)
	s.writeJSON(w, http.StatusCreated, viewOf(registry.Entry{Target: target, AddedAt: time.Now()}))
}

// handleRemoveAgent removes an agent and drops its cached status.
func (s *Server) handleRemoveAgent(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.agents.Remove(name); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("failed to remove agent", "agent", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to remove agent")
		return
	}

	s.statuses.Forget(name)
	s.logger.Info("agent removed", "agent", name)
	w.WriteHeader(http.StatusNoContent)
}

// updateAgentRequest is the body of PATCH /api/agents/{name}.
type updateAgentRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleUpdateAgent toggles polling for an agent.
func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req updateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Enabled == nil {
		s.writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	if err := s.agents.SetEnabled(name, *req.Enabled); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("failed to update agent", "agent", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update agent")
		return
	}

	s.logger.Info("agent updated", "agent", name, "enabled", *req.Enabled)
	w.WriteHeader(http.StatusNoContent)
}

// handleMetrics serves stored metric history:
//
//	GET /api/metrics?agent=web-01&type=cpu_usage&since=RFC3339&until=RFC3339&limit=100
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	q := storage.Query{
		Agent: r.URL.Query().Get("agent"),
		Type:  r.URL.Query().Get("type"),
		Limit: defaultMetricsLimit,
	}
	if q.Agent == "" {
		s.writeError(w, http.StatusBadRequest, "agent query parameter is required")
		return
	}

	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
			return
		}
		q.Since = t
	}
	if raw := r.URL.Query().Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "until must be an RFC3339 timestamp")
			return
		}
		q.Until = t
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		q.Limit = n
	}

	records, err := s.store.Records(r.Context(), q)
	if err != nil {
		s.logger.Error("metrics query failed", "agent", q.Agent, "error", err)
		s.writeError(w, http.StatusInternalServerError, "metrics query failed")
		return
	}
	if records == nil {
		records = []storage.Record{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

// handleAlerts serves recent alerts, newest first.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultAlertsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	s.writeJSON(w, http.StatusOK, s.statuses.RecentAlerts(limit))
}

// handleSSE streams status updates via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// check if flushing is supported
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// ResponseController provides deadline-aware write and flush operations.
	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	// writeAndFlush writes SSE data with a deadline to prevent blocking forever.
	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				// deadline not supported by underlying connection, continue without
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}

		// ResponseController.Flush respects the write deadline
		return rc.Flush()
	}

	// set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// subscribe to status updates
	ch := s.statuses.Subscribe()
	defer s.statuses.Unsubscribe(ch)

	// send initial statuses (also protected by write deadline)
	for _, status := range s.statuses.GetAll() {
		data, err := json.Marshal(status)
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	// stream updates
	for {
		select {
		case status, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(status)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
