package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/julienstroheker/RelayGate/gateway/http/handlers"
	"github.com/julienstroheker/RelayGate/gateway/http/middleware"
	"github.com/julienstroheker/RelayGate/internal/api"
	"github.com/julienstroheker/RelayGate/internal/logging"
	"github.com/julienstroheker/RelayGate/internal/stats"
)

// DefaultAddr is where the status API listens when no address is configured
const DefaultAddr = "127.0.0.1:9090"

// Server is the read-only status API of the relay
type Server struct {
	server *http.Server
	addr   string

	mu       sync.Mutex
	listener net.Listener
}

// Options configures the status server
type Options struct {
	// Addr is the host:port to listen on
	Addr string

	// Stats is reported by /api/stats; status requests are counted into it
	Stats *stats.Stats

	// Connections lists live connections for /api/connections
	Connections func() []api.ConnectionInfo

	Logger *logging.Logger
}

// NewServer creates a new status server instance
func NewServer(opts *Options) *Server {
	if opts == nil {
		opts = &Options{}
	}

	addr := opts.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	st := opts.Stats
	if st == nil {
		st = stats.New()
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.New(logging.InfoLevel)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handlers.HealthHandler)
	mux.HandleFunc("/api/stats", handlers.NewStatsHandler(st))
	mux.HandleFunc("/api/connections", handlers.NewConnectionsHandler(opts.Connections))

	// Telemetry runs first so the logger sees the request ids
	var handler http.Handler = mux
	handler = middleware.Metrics(st)(handler)
	handler = middleware.Logger(logger)(handler)
	handler = middleware.Telemetry(handler)

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		addr: addr,
	}
}

// Listen binds the configured address
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("status server listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Serve serves requests on the bound listener. It returns nil after Shutdown.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("status server is not listening")
	}

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe binds and serves
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Close immediately closes the server
func (s *Server) Close() error {
	return s.server.Close()
}

// Addr returns the bound address, or the configured one before Listen
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
