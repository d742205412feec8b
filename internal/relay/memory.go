package relay

import (
	"context"
	"errors"
	"net"
	"sync"
)

// ErrListenerClosed is returned when dialing a closed MemoryListener
var ErrListenerClosed = errors.New("listener is closed")

// memoryAddr is the net.Addr reported by memory connections
type memoryAddr string

func (a memoryAddr) Network() string { return "memory" }
func (a memoryAddr) String() string  { return string(a) }

// MemoryListener is an in-process net.Listener. Each Dial creates a
// synchronous net.Pipe and queues the server end for Accept.
type MemoryListener struct {
	name        string
	connections chan net.Conn
	done        chan struct{}
	mu          sync.Mutex
	closed      bool
}

// NewMemoryListener creates a new in-memory listener with the given accept queue size
func NewMemoryListener(name string, backlog int) *MemoryListener {
	if backlog <= 0 {
		backlog = 1
	}
	return &MemoryListener{
		name:        name,
		connections: make(chan net.Conn, backlog),
		done:        make(chan struct{}),
	}
}

// Accept waits for and returns the next connection
func (l *MemoryListener) Accept() (net.Conn, error) {
	select {
	case <-l.done:
		return nil, net.ErrClosed
	case conn := <-l.connections:
		return conn, nil
	}
}

// Close stops the listener. Pending connections that were never accepted are closed.
func (l *MemoryListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.done)

	for {
		select {
		case conn := <-l.connections:
			_ = conn.Close()
		default:
			return nil
		}
	}
}

// Addr returns the listener's name as a net.Addr
func (l *MemoryListener) Addr() net.Addr {
	return memoryAddr(l.name)
}

// Dial connects to the listener and returns the client end of the pipe.
// It blocks while the accept queue is full.
func (l *MemoryListener) Dial(ctx context.Context) (net.Conn, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrListenerClosed
	}
	l.mu.Unlock()

	client, server := net.Pipe()

	select {
	case <-ctx.Done():
		_ = client.Close()
		_ = server.Close()
		return nil, ctx.Err()
	case <-l.done:
		_ = client.Close()
		_ = server.Close()
		return nil, ErrListenerClosed
	case l.connections <- server:
		return client, nil
	}
}

// DialContext ignores network and address so a MemoryListener can stand in for a dialer
func (l *MemoryListener) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	return l.Dial(ctx)
}
