package proxy

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/julienstroheker/RelayGate/internal/api"
)

// State is the lifecycle state of a relayed connection
type State int32

const (
	// StateConnecting means the target is being resolved or dialed
	StateConnecting State = iota
	// StateActive means bytes are being relayed
	StateActive
	// StateClosing means teardown has started
	StateClosing
	// StateClosed means both streams have been released
	StateClosed
)

// String returns the string representation
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection pairs an accepted inbound stream with its outbound stream
type Connection struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	inbound  net.Conn
	outbound net.Conn
	target   string
	state    atomic.Int32
	once     sync.Once

	bytesUp   atomic.Uint64
	bytesDown atomic.Uint64
}

// NewConnection wraps an accepted inbound stream
func NewConnection(inbound net.Conn) *Connection {
	c := &Connection{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		inbound:   inbound,
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// State returns the current state
func (c *Connection) State() State {
	return State(c.state.Load())
}

// SetInbound replaces the inbound stream, for example with a buffered wrapper
func (c *Connection) SetInbound(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbound = conn
}

// Inbound returns the inbound stream
func (c *Connection) Inbound() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inbound
}

// Activate records the dialed outbound stream and moves the connection to active.
// It returns false if the connection is already closing; the caller then owns outbound.
func (c *Connection) Activate(outbound net.Conn, target string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateActive)) {
		return false
	}
	c.outbound = outbound
	c.target = target
	return true
}

// SetTarget records the resolved target before it is dialed
func (c *Connection) SetTarget(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = target
}

// AddBytes records bytes relayed in one direction
func (c *Connection) AddBytes(upstream bool, n int) {
	if n <= 0 {
		return
	}
	if upstream {
		c.bytesUp.Add(uint64(n))
	} else {
		c.bytesDown.Add(uint64(n))
	}
}

// Close releases both streams. Only the first call has any effect.
func (c *Connection) Close() error {
	var err error
	c.once.Do(func() {
		c.state.Store(int32(StateClosing))

		c.mu.Lock()
		inbound, outbound := c.inbound, c.outbound
		c.mu.Unlock()

		if inbound != nil {
			err = inbound.Close()
		}
		if outbound != nil {
			if cerr := outbound.Close(); err == nil {
				err = cerr
			}
		}

		c.state.Store(int32(StateClosed))
	})
	return err
}

// Info returns a point-in-time snapshot of the connection
func (c *Connection) Info() api.ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := api.ConnectionInfo{
		ID:        c.ID,
		State:     c.State().String(),
		Target:    c.target,
		CreatedAt: c.CreatedAt.UTC(),
		BytesUp:   c.bytesUp.Load(),
		BytesDown: c.bytesDown.Load(),
	}
	if c.inbound != nil && c.inbound.RemoteAddr() != nil {
		info.RemoteAddr = c.inbound.RemoteAddr().String()
	}
	return info
}
