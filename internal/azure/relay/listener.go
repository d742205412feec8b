package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/julienstroheker/RelayGate/internal/logging"
)

const (
	defaultAcceptBacklog = 16
	defaultRenewInterval = 20 * time.Minute
)

// ListenerOptions configures a hybrid connection listener
type ListenerOptions struct {
	Endpoint *Endpoint

	// Backlog is the number of rendezvous connections that may wait for Accept.
	// Connections arriving while the queue is full are dropped.
	Backlog int

	// RenewInterval is how often the control channel token is renewed (default 20m)
	RenewInterval time.Duration

	Logger *logging.Logger
}

// Listener accepts connections made to a hybrid connection. It keeps a
// control channel open to the relay and dials the rendezvous address of
// every accept notification. It implements net.Listener.
type Listener struct {
	endpoint      *Endpoint
	listenerID    string
	logger        *logging.Logger
	renewInterval time.Duration

	control *websocket.Conn
	cmu     sync.Mutex

	acceptQueue chan net.Conn
	done        chan struct{}
	closeOnce   sync.Once

	mu  sync.Mutex
	err error
}

// controlMessage is a message received on the control channel
type controlMessage struct {
	Accept *acceptMessage `json:"accept,omitempty"`
}

type acceptMessage struct {
	Address        string            `json:"address"`
	ID             string            `json:"id"`
	ConnectHeaders map[string]string `json:"connectHeaders,omitempty"`
	RemoteEndpoint *struct {
		Address string `json:"address"`
		Port    int    `json:"port"`
	} `json:"remoteEndpoint,omitempty"`
}

type renewTokenMessage struct {
	RenewToken struct {
		Token string `json:"token"`
	} `json:"renewToken"`
}

// Listen opens the control channel and starts accepting connections
func Listen(ctx context.Context, opts *ListenerOptions) (*Listener, error) {
	if opts == nil {
		return nil, errors.New("options cannot be nil")
	}
	if err := opts.Endpoint.validate(); err != nil {
		return nil, err
	}

	backlog := opts.Backlog
	if backlog <= 0 {
		backlog = defaultAcceptBacklog
	}
	renew := opts.RenewInterval
	if renew <= 0 {
		renew = defaultRenewInterval
	}

	l := &Listener{
		endpoint:      opts.Endpoint,
		listenerID:    uuid.New().String(),
		logger:        opts.Logger,
		renewInterval: renew,
		acceptQueue:   make(chan net.Conn, backlog),
		done:          make(chan struct{}),
	}

	header, err := l.endpoint.header(ctx)
	if err != nil {
		return nil, err
	}

	control, err := dial(ctx, l.endpoint.dialer(), l.endpoint.url("listen", l.listenerID), header)
	if err != nil {
		return nil, fmt.Errorf("failed to open control channel: %w", err)
	}
	l.control = control

	if l.logger != nil {
		l.logger.Info("Hybrid connection listener connected",
			logging.String("hybrid_connection", l.endpoint.Name),
			logging.String("listener_id", l.listenerID),
			logging.Int("backlog", backlog))
	}

	go l.controlLoop()
	go l.renewLoop()

	return l, nil
}

// Accept waits for the next rendezvous connection
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.acceptQueue:
		return conn, nil
	case <-l.done:
		return nil, l.closeErr()
	}
}

// Close stops the listener and closes the control channel
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)

		l.cmu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = l.control.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		l.cmu.Unlock()
		err = l.control.Close()

		for {
			select {
			case conn := <-l.acceptQueue:
				_ = conn.Close()
			default:
				return
			}
		}
	})
	return err
}

// Addr returns the hybrid connection as a net.Addr
func (l *Listener) Addr() net.Addr {
	return hcAddr(l.endpoint.Name)
}

// fail records why the control channel went away and stops the listener
func (l *Listener) fail(err error) {
	l.mu.Lock()
	if l.err == nil {
		l.err = err
	}
	l.mu.Unlock()
	_ = l.Close()
}

func (l *Listener) closeErr() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return fmt.Errorf("control channel lost: %w", l.err)
	}
	return net.ErrClosed
}

func (l *Listener) isClosed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *Listener) controlLoop() {
	for {
		messageType, data, err := l.control.ReadMessage()
		if err != nil {
			if l.isClosed() {
				return
			}
			if l.logger != nil {
				l.logger.Error("Control channel read failed", logging.Error(err))
			}
			l.fail(err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if l.logger != nil {
				l.logger.Warn("Invalid control message", logging.Error(err))
			}
			continue
		}
		if msg.Accept == nil || msg.Accept.Address == "" {
			continue
		}

		go l.rendezvous(msg.Accept)
	}
}

// rendezvous completes an accept notification and queues the connection
func (l *Listener) rendezvous(accept *acceptMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultHandshakeTimeout)
	defer cancel()
	go func() {
		select {
		case <-l.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	ws, err := dial(ctx, l.endpoint.dialer(), accept.Address, http.Header{})
	if err != nil {
		if l.logger != nil {
			l.logger.Warn("Rendezvous failed",
				logging.String("connection_id", accept.ID),
				logging.Error(err))
		}
		return
	}

	conn := newWSConn(ws)

	select {
	case l.acceptQueue <- conn:
		if l.logger != nil {
			l.logger.Debug("Rendezvous established", logging.String("connection_id", accept.ID))
		}
	case <-l.done:
		_ = conn.Close()
	default:
		if l.logger != nil {
			l.logger.Warn("Accept queue full, dropping connection",
				logging.String("connection_id", accept.ID))
		}
		_ = conn.Close()
	}
}

// renewLoop sends a fresh token on the control channel before the current one expires
func (l *Listener) renewLoop() {
	ticker := time.NewTicker(l.renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			if err := l.renewToken(); err != nil && l.logger != nil {
				l.logger.Warn("Token renewal failed", logging.Error(err))
			}
		}
	}
}

func (l *Listener) renewToken() error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultHandshakeTimeout)
	defer cancel()

	token, err := l.endpoint.Tokens.Token(ctx)
	if err != nil {
		return err
	}

	var msg renewTokenMessage
	msg.RenewToken.Token = token

	l.cmu.Lock()
	defer l.cmu.Unlock()
	return l.control.WriteJSON(msg)
}

// hcAddr is the net.Addr of a hybrid connection listener
type hcAddr string

func (a hcAddr) Network() string { return "hybridconnection" }
func (a hcAddr) String() string  { return string(a) }
