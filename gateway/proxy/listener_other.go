//go:build !linux

package proxy

import (
	"context"
	"net"
)

// listenTCP binds address. The backlog is left to the platform default.
func listenTCP(ctx context.Context, address string, _ int) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", address)
}
