package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultHandshakeTimeout bounds each websocket handshake with the relay
const DefaultHandshakeTimeout = 30 * time.Second

// Endpoint identifies one hybrid connection and how to authorize against it
type Endpoint struct {
	// Namespace is the relay namespace, either a bare name or a host such as
	// myrelay.servicebus.windows.net. A ws:// or wss:// URL is used verbatim.
	Namespace string

	// Name is the hybrid connection name
	Name string

	// Tokens authorizes requests; SAS tokens and Entra ID tokens are both accepted
	Tokens TokenSource

	// HandshakeTimeout bounds each websocket handshake (default 30s)
	HandshakeTimeout time.Duration
}

func (e *Endpoint) validate() error {
	if e == nil {
		return errors.New("endpoint cannot be nil")
	}
	if e.Namespace == "" {
		return errors.New("relay namespace is required")
	}
	if e.Name == "" {
		return errors.New("hybrid connection name is required")
	}
	if e.Tokens == nil {
		return errors.New("token source is required")
	}
	return nil
}

// url builds wss://<namespace>/$hc/<name>?sb-hc-action=<action>&sb-hc-id=<id>
func (e *Endpoint) url(action, id string) string {
	base := e.Namespace
	if !strings.HasPrefix(base, "ws://") && !strings.HasPrefix(base, "wss://") {
		base = "wss://" + NamespaceHost(base)
	}
	base = strings.TrimSuffix(base, "/")

	q := url.Values{}
	q.Set("sb-hc-action", action)
	if id != "" {
		q.Set("sb-hc-id", id)
	}
	return fmt.Sprintf("%s/$hc/%s?%s", base, url.PathEscape(e.Name), q.Encode())
}

// header returns the authorization header for the current token
func (e *Endpoint) header(ctx context.Context) (http.Header, error) {
	token, err := e.Tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get relay token: %w", err)
	}

	header := http.Header{}
	if isSASToken(token) {
		header.Set("ServiceBusAuthorization", token)
	} else {
		header.Set("Authorization", "Bearer "+token)
	}
	return header, nil
}

func (e *Endpoint) dialer() *websocket.Dialer {
	timeout := e.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}
}

// dial opens a websocket, folding a failed handshake's status and body into the error
func dial(ctx context.Context, d *websocket.Dialer, target string, header http.Header) (*websocket.Conn, error) {
	conn, resp, err := d.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil && resp.Body != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			_ = resp.Body.Close()
			return nil, fmt.Errorf("relay handshake failed (status %d: %s): %w",
				resp.StatusCode, strings.TrimSpace(string(body)), err)
		}
		return nil, fmt.Errorf("relay handshake failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, nil
}
