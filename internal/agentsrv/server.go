package agentsrv

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/divan/gorilla-xmlrpc/xml"
	"github.com/gorilla/rpc"
)

const shutdownTimeout = 5 * time.Second

// Server serves the XML-RPC endpoint over HTTP.
type Server struct {
	addr       string
	source     Source
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an agent server listening on addr ("host:port").
func NewServer(addr string, source Source, logger *slog.Logger) *Server {
	return &Server{addr: addr, source: source, logger: logger}
}

// handler builds the RPC route. Split out so tests can drive the endpoint
// through httptest.
func (s *Server) handler() (http.Handler, error) {
	rpcServer := rpc.NewServer()
	rpcServer.RegisterCodec(xml.NewCodec(), "text/xml")
	if err := rpcServer.RegisterService(NewService(s.source), "Agent"); err != nil {
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/RPC2", rpcServer)
	return mux, nil
}

// Start begins serving in a background goroutine. The listener is bound
// synchronously so address conflicts surface immediately; the server runs
// until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	handler, err := s.handler()
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", s.addr, err)
	}

	s.httpServer = &http.Server{
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.logger.Info("agent listening", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("agent server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("agent server shutdown error", "error", err)
		}
	}()

	return nil
}
