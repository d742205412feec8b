//go:build linux

package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// listenTCP binds address with an explicit listen(2) backlog. An empty or
// unspecified host binds a dual-stack wildcard, as net.Listen does.
func listenTCP(ctx context.Context, address string, backlog int) (net.Listener, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	port, err := net.LookupPort("tcp", portStr)
	if err != nil {
		return nil, err
	}

	bind, err := resolveBind(ctx, host, port)
	if err != nil {
		return nil, err
	}

	ln, err := bindAndListen(bind, address, backlog)
	if err != nil && bind.wildcard && errors.Is(err, unix.EAFNOSUPPORT) {
		// no IPv6 on this host
		return bindAndListen(bindAddr{family: unix.AF_INET, sa: &unix.SockaddrInet4{Port: port}}, address, backlog)
	}
	return ln, err
}

// bindAddr is the socket address a listener binds
type bindAddr struct {
	family   int
	sa       unix.Sockaddr
	wildcard bool
}

// resolveBind turns host into a socket address. IPv6 zones may be given by
// interface name or index; host names are resolved and the first address used.
func resolveBind(ctx context.Context, host string, port int) (bindAddr, error) {
	var addr netip.Addr
	if host != "" {
		var err error
		if addr, err = netip.ParseAddr(host); err != nil {
			addrs, lerr := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
			if lerr != nil {
				return bindAddr{}, lerr
			}
			if len(addrs) == 0 {
				return bindAddr{}, &net.DNSError{Err: "no addresses", Name: host, IsNotFound: true}
			}
			addr = addrs[0]
		}
	}

	if !addr.IsValid() || addr.Unmap().IsUnspecified() {
		return bindAddr{family: unix.AF_INET6, sa: &unix.SockaddrInet6{Port: port}, wildcard: true}, nil
	}

	if addr = addr.Unmap(); addr.Is4() {
		return bindAddr{family: unix.AF_INET, sa: &unix.SockaddrInet4{Port: port, Addr: addr.As4()}}, nil
	}

	zone, err := zoneIndex(addr.Zone())
	if err != nil {
		return bindAddr{}, err
	}
	return bindAddr{family: unix.AF_INET6, sa: &unix.SockaddrInet6{Port: port, Addr: addr.As16(), ZoneId: zone}}, nil
}

func zoneIndex(zone string) (uint32, error) {
	if zone == "" {
		return 0, nil
	}
	if n, err := strconv.ParseUint(zone, 10, 32); err == nil {
		return uint32(n), nil
	}
	iface, err := net.InterfaceByName(zone)
	if err != nil {
		return 0, fmt.Errorf("unknown zone %q: %w", zone, err)
	}
	return uint32(iface.Index), nil
}

func bindAndListen(b bindAddr, address string, backlog int) (net.Listener, error) {
	fd, err := unix.Socket(b.family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("setsockopt", err)
	}
	if b.wildcard && b.family == unix.AF_INET6 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); err != nil {
			_ = unix.Close(fd)
			return nil, os.NewSyscallError("setsockopt", err)
		}
	}
	if err := unix.Bind(fd, b.sa); err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("listen", err)
	}

	f := os.NewFile(uintptr(fd), "tcp:"+address)
	defer f.Close()

	return net.FileListener(f)
}
