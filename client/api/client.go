package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/julienstroheker/RelayGate/internal/api"
	"github.com/julienstroheker/RelayGate/internal/httpclient"
	"github.com/julienstroheker/RelayGate/internal/logging"
)

// DefaultBaseURL is the status API address relaygate listens on by default
const DefaultBaseURL = "http://127.0.0.1:9090"

// Client reads the relay status API
type Client struct {
	baseURL    string
	httpClient *httpclient.Client
}

// Options contains configuration for the API client
type Options struct {
	// BaseURL is the base URL of the status API
	BaseURL string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts
	MaxRetries int

	// TraceID is attached to every request when set
	TraceID string

	// Logger is used for debug logging (optional)
	Logger *logging.Logger

	// Transport overrides the HTTP transport (optional)
	Transport http.RoundTripper
}

// DefaultOptions returns default options for the API client
func DefaultOptions() *Options {
	return &Options{
		BaseURL:    DefaultBaseURL,
		Timeout:    10 * time.Second,
		MaxRetries: 2,
	}
}

// NewClient creates a new status API client
func NewClient(opts *Options) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}

	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL: baseURL,
		httpClient: httpclient.NewClient(&httpclient.Options{
			Timeout:    opts.Timeout,
			MaxRetries: opts.MaxRetries,
			RetryDelay: 200 * time.Millisecond,
			Logger:     opts.Logger,
			TraceID:    opts.TraceID,
			Transport:  opts.Transport,
			UserAgent:  "relayctl/1.0",
		}),
	}
}

// Stats fetches the relay counters
func (c *Client) Stats(ctx context.Context) (*api.StatsResponse, error) {
	var resp api.StatsResponse
	if err := c.httpClient.GetJSON(ctx, c.baseURL+"/api/stats", &resp); err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &resp, nil
}

// Connections lists the connections the relay is currently handling
func (c *Client) Connections(ctx context.Context) (*api.ConnectionsResponse, error) {
	var resp api.ConnectionsResponse
	if err := c.httpClient.GetJSON(ctx, c.baseURL+"/api/connections", &resp); err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return &resp, nil
}

// Health checks that the relay status API answers
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.httpClient.Get(ctx, c.baseURL+"/healthz")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &httpclient.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}
