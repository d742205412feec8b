package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds shared configuration values for RelayGate components
type Config struct {
	// ListenAddr is the host:port the relay binds to
	ListenAddr string

	// Backlog is the maximum number of pending connections queued by the listener
	Backlog int

	// MaxConnections caps concurrently relayed connections (0 means unlimited)
	MaxConnections int

	// Mode selects how the outbound target is determined
	Mode TargetMode

	// Target is the static host:port used in static mode
	Target string

	// UpstreamProxy is an optional socks5:// URL that outbound dials go through
	UpstreamProxy string

	// StatusAddr is where the read-only status API listens (empty disables it)
	StatusAddr string

	// BufferSize is the per-direction read buffer size in bytes
	BufferSize int

	// IdleTimeout ends a relay when no data moves for this long (0 disables it)
	IdleTimeout time.Duration

	// DialTimeout bounds the outbound connection attempt
	DialTimeout time.Duration

	// ShutdownTimeout bounds how long Stop waits for in-flight relays
	ShutdownTimeout time.Duration

	// RateLimit caps each direction of a connection in bytes per second (0 disables it)
	RateLimit int

	// ProxyUser and ProxyPassword enable Basic proxy authentication in connect mode
	ProxyUser     string
	ProxyPassword string

	// LogLevel controls logging verbosity (debug, info, warn, error)
	LogLevel string

	// HybridConnection configures the optional Azure Relay endpoint
	HybridConnection HybridConnection

	// invalidEnv lists variables that were set but could not be parsed
	invalidEnv []string
}

// HybridConnection holds Azure Relay Hybrid Connection settings
type HybridConnection struct {
	// Namespace is the relay namespace host, e.g. "myrelay.servicebus.windows.net"
	Namespace string

	// Name is the hybrid connection name
	Name string

	// KeyName and Key authenticate with a shared access signature.
	// When both are empty an Azure AD token is used instead.
	KeyName string
	Key     string

	// Inbound accepts relay connections from the hybrid connection instead of a TCP socket
	Inbound bool

	// SubscriptionID and ResourceGroup are needed to provision the hybrid connection
	SubscriptionID string
	ResourceGroup  string
}

// Enabled reports whether a hybrid connection has been configured
func (h HybridConnection) Enabled() bool {
	return h.Namespace != "" && h.Name != ""
}

// Load creates a Config by reading from environment variables
// and applying defaults where values are not set
func Load() *Config {
	env := &envReader{}
	c := &Config{
		ListenAddr:      getEnvOrDefault("RELAYGATE_LISTEN_ADDR", "127.0.0.1:8080"),
		Backlog:         env.intOr("RELAYGATE_BACKLOG", 128),
		MaxConnections:  env.intOr("RELAYGATE_MAX_CONNECTIONS", 0),
		Mode:            TargetMode(getEnvOrDefault("RELAYGATE_MODE", string(ModeConnect))),
		Target:          getEnvOrDefault("RELAYGATE_TARGET", ""),
		UpstreamProxy:   getEnvOrDefault("RELAYGATE_UPSTREAM_PROXY", ""),
		StatusAddr:      getEnvOrDefault("RELAYGATE_STATUS_ADDR", "127.0.0.1:9090"),
		BufferSize:      env.intOr("RELAYGATE_BUFFER_SIZE", 32*1024),
		IdleTimeout:     env.durationOr("RELAYGATE_IDLE_TIMEOUT", 0),
		DialTimeout:     env.durationOr("RELAYGATE_DIAL_TIMEOUT", 10*time.Second),
		ShutdownTimeout: env.durationOr("RELAYGATE_SHUTDOWN_TIMEOUT", 5*time.Second),
		RateLimit:       env.intOr("RELAYGATE_RATE_LIMIT", 0),
		ProxyUser:       getEnvOrDefault("RELAYGATE_PROXY_USER", ""),
		ProxyPassword:   getEnvOrDefault("RELAYGATE_PROXY_PASSWORD", ""),
		LogLevel:        getEnvOrDefault("RELAYGATE_LOG_LEVEL", "info"),
		HybridConnection: HybridConnection{
			Namespace:      getEnvOrDefault("RELAYGATE_HC_NAMESPACE", ""),
			Name:           getEnvOrDefault("RELAYGATE_HC_NAME", ""),
			KeyName:        getEnvOrDefault("RELAYGATE_HC_KEY_NAME", ""),
			Key:            getEnvOrDefault("RELAYGATE_HC_KEY", ""),
			Inbound:        env.boolOr("RELAYGATE_HC_INBOUND", false),
			SubscriptionID: getEnvOrDefault("RELAYGATE_AZURE_SUBSCRIPTION_ID", ""),
			ResourceGroup:  getEnvOrDefault("RELAYGATE_AZURE_RESOURCE_GROUP", ""),
		},
	}
	c.invalidEnv = env.invalid
	return c
}

// Validate checks that required configuration values are present and sane
func (c *Config) Validate() error {
	problems := append([]string(nil), c.invalidEnv...)

	if !c.Mode.IsValid() {
		problems = append(problems, fmt.Sprintf("RELAYGATE_MODE must be %q or %q, got %q", ModeStatic, ModeConnect, c.Mode))
	}
	if c.Mode == ModeStatic && c.Target == "" && !c.hybridOutbound() {
		problems = append(problems, "RELAYGATE_TARGET is required in static mode")
	}
	if !c.HybridConnection.Inbound && c.ListenAddr == "" {
		problems = append(problems, "RELAYGATE_LISTEN_ADDR is required")
	}
	if c.HybridConnection.Inbound && !c.HybridConnection.Enabled() {
		problems = append(problems, "RELAYGATE_HC_NAMESPACE and RELAYGATE_HC_NAME are required for hybrid connection inbound")
	}
	if c.Backlog <= 0 {
		problems = append(problems, "RELAYGATE_BACKLOG must be positive")
	}
	if c.BufferSize <= 0 {
		problems = append(problems, "RELAYGATE_BUFFER_SIZE must be positive")
	}
	if c.MaxConnections < 0 {
		problems = append(problems, "RELAYGATE_MAX_CONNECTIONS must not be negative")
	}
	if c.RateLimit < 0 {
		problems = append(problems, "RELAYGATE_RATE_LIMIT must not be negative")
	}
	if (c.HybridConnection.KeyName == "") != (c.HybridConnection.Key == "") {
		problems = append(problems, "RELAYGATE_HC_KEY_NAME and RELAYGATE_HC_KEY must be set together")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	return nil
}

// hybridOutbound reports whether static traffic goes to the hybrid connection
func (c *Config) hybridOutbound() bool {
	return c.HybridConnection.Enabled() && !c.HybridConnection.Inbound
}

// HybridOutbound reports whether the static target is the hybrid connection
func (c *Config) HybridOutbound() bool {
	return c.Mode == ModeStatic && c.Target == "" && c.hybridOutbound()
}

// getEnvOrDefault retrieves an environment variable or returns a default value
func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// envReader parses typed environment variables. A malformed value keeps the
// default and is recorded so that Validate can report it.
type envReader struct {
	invalid []string
}

func (e *envReader) bad(key, val, want string) {
	e.invalid = append(e.invalid, fmt.Sprintf("%s must be %s, got %q", key, want, val))
}

func (e *envReader) intOr(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		e.bad(key, val, "an integer")
		return defaultValue
	}
	return n
}

// durationOr parses a duration such as "30s" or "1m"
func (e *envReader) durationOr(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		e.bad(key, val, "a duration")
		return defaultValue
	}
	return d
}

func (e *envReader) boolOr(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		e.bad(key, val, "a boolean")
		return defaultValue
	}
	return b
}
