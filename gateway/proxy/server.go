package proxy

import (
	"context"
	"errors"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	"github.com/julienstroheker/RelayGate/internal/api"
	"github.com/julienstroheker/RelayGate/internal/logging"
	"github.com/julienstroheker/RelayGate/internal/relay"
	"github.com/julienstroheker/RelayGate/internal/stats"
)

const (
	// DefaultAddress is the listening address used when none is configured
	DefaultAddress = "127.0.0.1:8080"

	// DefaultShutdownTimeout bounds how long Stop waits for active relays
	DefaultShutdownTimeout = 5 * time.Second

	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Options configures the relay server
type Options struct {
	// Address to bind, host:port
	Address string

	// Backlog is the listen(2) backlog (default 128)
	Backlog int

	// MaxConnections caps concurrently accepted connections; zero means unlimited
	MaxConnections int

	// Listener replaces binding Address, e.g. with a hybrid connection listener
	Listener net.Listener

	// Resolver decides the target of each connection (default ConnectResolver)
	Resolver Resolver

	// Dialer opens outbound connections (default NetDialer)
	Dialer Dialer

	// Hook inspects relayed chunks (default relay.Identity)
	Hook relay.Hook

	// Stats receives counters; one is created when nil
	Stats *stats.Stats

	// Registry tracks live connections; one is created when nil
	Registry *Registry

	Logger *logging.Logger

	BufferSize      int
	IdleTimeout     time.Duration
	DialTimeout     time.Duration
	ShutdownTimeout time.Duration

	// RateLimit caps each direction of each connection in bytes per second
	RateLimit int
}

// Server accepts inbound connections and relays each one to its target
type Server struct {
	address         string
	backlog         int
	maxConns        int
	resolver        Resolver
	dialer          Dialer
	hook            relay.Hook
	stats           *stats.Stats
	registry        *Registry
	logger          *logging.Logger
	bufferSize      int
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	rateLimit       int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	listener net.Listener
	stopping bool
	stopOnce sync.Once
}

// NewServer creates a new relay server
func NewServer(opts *Options) *Server {
	if opts == nil {
		opts = &Options{}
	}

	s := &Server{
		address:         opts.Address,
		backlog:         opts.Backlog,
		maxConns:        opts.MaxConnections,
		listener:        opts.Listener,
		resolver:        opts.Resolver,
		dialer:          opts.Dialer,
		hook:            opts.Hook,
		stats:           opts.Stats,
		registry:        opts.Registry,
		logger:          opts.Logger,
		bufferSize:      opts.BufferSize,
		idleTimeout:     opts.IdleTimeout,
		shutdownTimeout: opts.ShutdownTimeout,
		rateLimit:       opts.RateLimit,
	}

	if s.address == "" {
		s.address = DefaultAddress
	}
	if s.backlog <= 0 {
		s.backlog = DefaultBacklog
	}
	if s.resolver == nil {
		s.resolver = &ConnectResolver{Logger: opts.Logger}
	}
	if s.dialer == nil {
		// without an upstream NewDialer cannot fail
		s.dialer, _ = NewDialer(&DialerOptions{Timeout: opts.DialTimeout})
	}
	if s.stats == nil {
		s.stats = stats.New()
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = DefaultShutdownTimeout
	}
	if s.listener != nil && s.maxConns > 0 {
		s.listener = netutil.LimitListener(s.listener, s.maxConns)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Listen binds the configured address. It returns a *BindError on failure.
// Listen is a no-op when the server was given a Listener.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		return errors.New("server is stopped")
	}
	if s.listener != nil {
		return nil
	}

	ln, err := Listen(s.ctx, s.address, s.backlog, s.maxConns)
	if err != nil {
		return err
	}
	s.listener = ln

	if s.logger != nil {
		s.logger.Info("Relay listening",
			logging.String("address", ln.Addr().String()),
			logging.Int("backlog", s.backlog),
			logging.Int("max_connections", s.maxConns))
	}
	return nil
}

// Serve runs the accept loop until Stop is called or ctx is cancelled, in
// which case it returns nil. Transient accept errors are retried with backoff;
// any other accept error stops the loop with a *ListenerError.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server is not listening")
	}

	stopOnCancel := context.AfterFunc(ctx, func() {
		_ = s.Stop(context.Background())
	})
	defer stopOnCancel()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isStopping() {
				return nil
			}
			if !isTransientAcceptError(err) {
				if s.logger != nil {
					s.logger.Error("Accept failed", logging.Error(err))
				}
				return &ListenerError{Err: err}
			}

			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay *= 2
			}
			if delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			if s.logger != nil {
				s.logger.Warn("Transient accept error, retrying",
					logging.Error(err),
					logging.Duration("delay", delay))
			}

			select {
			case <-time.After(delay):
			case <-s.ctx.Done():
				return nil
			}
			continue
		}
		delay = 0

		s.mu.Lock()
		if s.stopping {
			s.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handle(conn)
	}
}

// Start binds and serves. It blocks until the server stops.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Stop closes the listener, cancels every relay, and waits for them to
// finish, bounded by the shutdown timeout and ctx. Relays still running after
// that are force-closed. Stop is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopping = true
		ln := s.listener
		s.mu.Unlock()

		if ln != nil {
			if err := ln.Close(); err != nil && s.logger != nil {
				s.logger.Debug("Listener close failed", logging.Error(err))
			}
		}
		s.cancel()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		timer := time.NewTimer(s.shutdownTimeout)
		defer timer.Stop()

		select {
		case <-done:
			if s.logger != nil {
				s.logger.Info("Relay stopped")
			}
			return
		case <-timer.C:
		case <-ctx.Done():
		}

		remaining := s.registry.CloseAll()
		if s.logger != nil {
			s.logger.Warn("Shutdown timeout reached, closing remaining connections",
				logging.Int("remaining", remaining))
		}

		select {
		case <-done:
		case <-time.After(time.Second):
			if s.logger != nil {
				s.logger.Warn("Relays did not exit after force close")
			}
		}
	})
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Connections returns snapshots of the live connections
func (s *Server) Connections() []api.ConnectionInfo {
	return s.registry.List()
}

// Stats returns the counters the server records into
func (s *Server) Stats() *stats.Stats {
	return s.stats
}

func (s *Server) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// handle resolves, dials, and relays one inbound connection
func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()

	c := NewConnection(conn)
	s.registry.Add(c)
	defer s.registry.Remove(c.ID)

	done := s.stats.ConnectionOpened()
	defer done()
	defer c.Close()

	logger := s.logger
	if logger != nil {
		logger = logger.With(
			logging.String("conn_id", c.ID),
			logging.String("remote_addr", remoteAddr(conn)))
		logger.Debug("Connection accepted")
	}

	ctx := logging.WithContext(s.ctx, logger)

	res, err := s.resolver.Resolve(ctx, conn)
	if err != nil {
		if ctx.Err() != nil {
			if logger != nil {
				logger.Debug("Connection closed before its target was resolved", logging.Error(err))
			}
			return
		}
		var badReq *BadRequestError
		if errors.As(err, &badReq) || errors.Is(err, ErrProxyAuth) {
			s.stats.ConnectionRejected()
		} else {
			s.stats.ConnectionFailed()
		}
		if logger != nil {
			logger.Warn("Connection rejected", logging.Error(err))
		}
		return
	}

	target := res.Target.String()
	c.SetInbound(res.Conn)
	c.SetTarget(target)

	outbound, err := s.dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		if res.Reply != nil {
			_ = res.Reply(err)
		}
		s.stats.ConnectionFailed()
		if logger != nil {
			logger.Warn("Failed to dial target",
				logging.String("target", target),
				logging.Error(err))
		}
		return
	}

	if !c.Activate(outbound, target) {
		_ = outbound.Close()
		return
	}

	if res.Reply != nil {
		if err := res.Reply(nil); err != nil {
			s.stats.ConnectionFailed()
			if logger != nil {
				logger.Warn("Failed to reply to client", logging.String("target", target), logging.Error(err))
			}
			return
		}
	}

	if logger != nil {
		logger.Debug("Relaying", logging.String("target", target))
	}

	result, err := relay.Pipe(ctx, res.Conn, outbound, &relay.Options{
		BufferSize:  s.bufferSize,
		IdleTimeout: s.idleTimeout,
		Hook:        s.hook,
		RateLimit:   s.rateLimit,
		OnBytes:     s.countBytes(c),
		Logger:      logger,
	})
	if err != nil {
		s.stats.ConnectionFailed()
		if logger != nil {
			logger.Warn("Relay failed", logging.String("target", target), logging.Error(err))
		}
		return
	}

	if logger != nil {
		logger.Debug("Connection closed",
			logging.String("target", target),
			logging.Int64("bytes_up", result.BytesUp),
			logging.Int64("bytes_down", result.BytesDown))
	}
}

func (s *Server) countBytes(c *Connection) func(relay.Direction, int) {
	return func(dir relay.Direction, n int) {
		if dir == relay.Upstream {
			s.stats.AddUpstream(n)
			c.AddBytes(true, n)
			return
		}
		s.stats.AddDownstream(n)
		c.AddBytes(false, n)
	}
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// isTransientAcceptError reports whether Accept may succeed if retried
func isTransientAcceptError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE)
}
