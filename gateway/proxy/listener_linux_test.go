//go:build linux

package proxy

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestResolveBind(t *testing.T) {
	lo, err := net.InterfaceByName("lo")
	if err != nil {
		t.Skipf("loopback interface unavailable: %v", err)
	}

	tests := []struct {
		name     string
		host     string
		family   int
		wildcard bool
		zone     uint32
	}{
		{"empty host", "", unix.AF_INET6, true, 0},
		{"ipv4 unspecified", "0.0.0.0", unix.AF_INET6, true, 0},
		{"ipv6 unspecified", "::", unix.AF_INET6, true, 0},
		{"ipv4", "127.0.0.1", unix.AF_INET, false, 0},
		{"mapped ipv4", "::ffff:127.0.0.1", unix.AF_INET, false, 0},
		{"ipv6", "::1", unix.AF_INET6, false, 0},
		{"zone by name", "fe80::1%lo", unix.AF_INET6, false, uint32(lo.Index)},
		{"zone by index", "fe80::1%" + strconv.Itoa(lo.Index), unix.AF_INET6, false, uint32(lo.Index)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := resolveBind(context.Background(), tt.host, 8080)
			if err != nil {
				t.Fatalf("resolveBind failed: %v", err)
			}
			if b.family != tt.family {
				t.Errorf("Expected family %d, got %d", tt.family, b.family)
			}
			if b.wildcard != tt.wildcard {
				t.Errorf("Expected wildcard %v, got %v", tt.wildcard, b.wildcard)
			}
			if sa6, ok := b.sa.(*unix.SockaddrInet6); ok && sa6.ZoneId != tt.zone {
				t.Errorf("Expected zone %d, got %d", tt.zone, sa6.ZoneId)
			}
		})
	}
}

func TestResolveBind_UnknownZone(t *testing.T) {
	if _, err := resolveBind(context.Background(), "fe80::1%no-such-if0", 80); err == nil {
		t.Error("Expected an error for an unknown zone")
	}
}

func TestListen_WildcardIsDualStack(t *testing.T) {
	ln, err := Listen(context.Background(), ":0", 16, 0)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer ln.Close()

	port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+port, time.Second)
	if err != nil {
		t.Fatalf("Expected IPv4 dial to the wildcard listener to succeed: %v", err)
	}
	_ = conn.Close()

	if v6, err := net.Listen("tcp6", "[::1]:0"); err == nil {
		_ = v6.Close()
		conn, err := net.DialTimeout("tcp", "[::1]:"+port, time.Second)
		if err != nil {
			t.Fatalf("Expected IPv6 dial to the wildcard listener to succeed: %v", err)
		}
		_ = conn.Close()
	}
}
