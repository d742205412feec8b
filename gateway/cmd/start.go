package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/julienstroheker/RelayGate/gateway/http"
	"github.com/julienstroheker/RelayGate/gateway/proxy"
	"github.com/julienstroheker/RelayGate/internal/api"
	"github.com/julienstroheker/RelayGate/internal/config"
	"github.com/julienstroheker/RelayGate/internal/logging"
	"github.com/julienstroheker/RelayGate/internal/relay"
	"github.com/julienstroheker/RelayGate/internal/stats"
)

var (
	hexDumpFlag   int
	provisionFlag bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the relay",
	Long: `Start the relay. In connect mode each client names its target with an
HTTP CONNECT (or absolute-form) request; in static mode every connection goes
to --target. Flags override the RELAYGATE_* environment variables.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelay(cmd)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)

	f := startCmd.Flags()
	f.StringVarP(&cfg.ListenAddr, "listen", "l", cfg.ListenAddr, "Address to listen on (host:port)")
	f.IntVar(&cfg.Backlog, "backlog", cfg.Backlog, "Listen backlog")
	f.IntVar(&cfg.MaxConnections, "max-conns", cfg.MaxConnections, "Maximum concurrent connections (0 = unlimited)")
	f.StringVar((*string)(&cfg.Mode), "mode", string(cfg.Mode), "Target mode: static or connect")
	f.StringVarP(&cfg.Target, "target", "t", cfg.Target, "Target host:port in static mode")
	f.StringVar(&cfg.UpstreamProxy, "upstream", cfg.UpstreamProxy, "SOCKS5 proxy for outbound dials (socks5://host:port)")
	f.StringVar(&cfg.StatusAddr, "status-addr", cfg.StatusAddr, "Status API address (empty disables it)")
	f.IntVar(&cfg.BufferSize, "buffer-size", cfg.BufferSize, "Per-direction relay buffer size in bytes")
	f.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "Close connections idle this long (0 disables)")
	f.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "Outbound dial timeout")
	f.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "How long shutdown waits for active relays")
	f.IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "Per-direction rate limit in bytes/s (0 = unlimited)")
	f.IntVar(&hexDumpFlag, "hexdump", 0, "Log a hex preview of this many bytes per chunk at debug level (0 disables)")
	f.StringVar(&cfg.HybridConnection.Namespace, "hc-namespace", cfg.HybridConnection.Namespace, "Azure Relay namespace")
	f.StringVar(&cfg.HybridConnection.Name, "hc-name", cfg.HybridConnection.Name, "Azure Relay hybrid connection name")
	f.BoolVar(&cfg.HybridConnection.Inbound, "hc-inbound", cfg.HybridConnection.Inbound, "Accept connections from the hybrid connection instead of a TCP socket")
	f.BoolVar(&provisionFlag, "hc-provision", false, "Create or update the hybrid connection at startup")
}

func runRelay(cmd *cobra.Command) error {
	log := GetLogger()

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := stats.New()
	opts, cleanup, err := serverOptions(ctx, cfg, st, log)
	if err != nil {
		return err
	}
	defer cleanup()

	server := proxy.NewServer(opts)
	if err := server.Listen(); err != nil {
		return err
	}

	var status *http.Server
	if cfg.StatusAddr != "" {
		status = http.NewServer(&http.Options{
			Addr:        cfg.StatusAddr,
			Stats:       st,
			Connections: server.Connections,
			Logger:      log,
		})
		if err := status.Listen(); err != nil {
			_ = server.Stop(context.Background())
			return err
		}
		go func() {
			if err := status.Serve(); err != nil {
				log.Error("Status API stopped", logging.Error(err))
			}
		}()
		log.Info("Status API listening", logging.String("address", status.Addr()))
	}

	log.Info("RelayGate started",
		logging.String("address", server.Addr().String()),
		logging.String("mode", cfg.Mode.String()))

	serveErr := server.Serve(ctx)
	if serveErr != nil {
		log.Error("Relay stopped unexpectedly", logging.Error(serveErr))
	} else {
		log.Info("Shutting down")
	}

	// Serve may return while Stop is still draining; this call waits for it
	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+2*time.Second)
	defer cancel()
	_ = server.Stop(stopCtx)

	if status != nil {
		if err := status.Shutdown(stopCtx); err != nil {
			_ = status.Close()
		}
	}

	printSummary(cmd.OutOrStdout(), st.Snapshot())
	return serveErr
}

// serverOptions assembles the relay server from the configuration
func serverOptions(ctx context.Context, c *config.Config, st *stats.Stats, log *logging.Logger) (*proxy.Options, func(), error) {
	opts := &proxy.Options{
		Address:         c.ListenAddr,
		Backlog:         c.Backlog,
		MaxConnections:  c.MaxConnections,
		Stats:           st,
		Logger:          log,
		BufferSize:      c.BufferSize,
		IdleTimeout:     c.IdleTimeout,
		DialTimeout:     c.DialTimeout,
		ShutdownTimeout: c.ShutdownTimeout,
		RateLimit:       c.RateLimit,
	}
	if hexDumpFlag > 0 {
		opts.Hook = relay.HexDump(log, hexDumpFlag)
	}

	cleanup := func() {}

	switch c.Mode {
	case config.ModeStatic:
		if c.HybridOutbound() {
			opts.Resolver = &proxy.StaticResolver{Target: hybridTarget(c)}
		} else {
			resolver, err := proxy.NewStaticResolver(c.Target)
			if err != nil {
				return nil, cleanup, fmt.Errorf("invalid target: %w", err)
			}
			opts.Resolver = resolver
		}
	case config.ModeConnect:
		opts.Resolver = &proxy.ConnectResolver{
			Username: c.ProxyUser,
			Password: c.ProxyPassword,
			Logger:   log,
		}
	default:
		return nil, cleanup, fmt.Errorf("unknown mode %q", c.Mode)
	}

	if c.HybridConnection.Enabled() && provisionFlag {
		if err := provisionHybridConnection(ctx, c, log); err != nil {
			return nil, cleanup, err
		}
	}

	if c.HybridOutbound() {
		sender, err := newHybridSender(c, log)
		if err != nil {
			return nil, cleanup, err
		}
		opts.Dialer = sender
	} else {
		dialer, err := proxy.NewDialer(&proxy.DialerOptions{
			Timeout:  c.DialTimeout,
			Upstream: c.UpstreamProxy,
		})
		if err != nil {
			return nil, cleanup, err
		}
		opts.Dialer = dialer
	}

	if c.HybridConnection.Inbound {
		ln, err := newHybridListener(ctx, c, log)
		if err != nil {
			return nil, cleanup, err
		}
		opts.Listener = ln
		cleanup = func() { _ = ln.Close() }
	}

	return opts, cleanup, nil
}

// printSummary reports what the relay did over its lifetime
func printSummary(w io.Writer, s api.StatsResponse) {
	runtime := time.Duration(s.UptimeSeconds * float64(time.Second)).Round(time.Millisecond)
	fmt.Fprintf(w, "Runtime: %s\n", runtime)
	fmt.Fprintf(w, "Connections handled: %d (rejected %d, failed %d)\n",
		s.ConnectionsHandled, s.ConnectionsRejected, s.ConnectionsFailed)
	fmt.Fprintf(w, "Bytes transferred: %d (upstream %d, downstream %d)\n",
		s.BytesTransferred, s.BytesUpstream, s.BytesDownstream)
}

