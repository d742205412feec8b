package proxy

import (
	"context"
	"errors"
	"net"
	"syscall"

	"golang.org/x/net/netutil"
)

// DefaultBacklog is the listen(2) backlog used when none is configured
const DefaultBacklog = 128

// Listen binds address and returns the accept socket. maxConns > 0 caps the
// number of accepted connections that may be open at once.
func Listen(ctx context.Context, address string, backlog, maxConns int) (net.Listener, error) {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}

	ln, err := listenTCP(ctx, address, backlog)
	if err != nil {
		return nil, &BindError{Address: address, Reason: bindReason(err), Err: err}
	}

	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	return ln, nil
}

func bindReason(err error) string {
	switch {
	case errors.Is(err, syscall.EADDRINUSE):
		return "address already in use"
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return "permission denied"
	case errors.Is(err, syscall.EADDRNOTAVAIL):
		return "address not available"
	default:
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return "unknown host"
		}
		return "bind failed"
	}
}
