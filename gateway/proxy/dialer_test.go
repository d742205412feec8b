package proxy

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

// startSOCKS5 runs a minimal no-auth SOCKS5 CONNECT server and counts the tunnels it opens
func startSOCKS5(t *testing.T) (addr string, tunnels *atomic.Int32) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	tunnels = &atomic.Int32{}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSOCKS5(conn, tunnels)
		}
	}()
	return ln.Addr().String(), tunnels
}

func serveSOCKS5(conn net.Conn, tunnels *atomic.Int32) {
	defer conn.Close()

	// greeting: VER NMETHODS METHODS...
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return
	}
	if _, err := io.ReadFull(conn, make([]byte, hdr[1])); err != nil {
		return
	}
	if _, err := conn.Write([]byte{5, 0}); err != nil {
		return
	}

	// request: VER CMD RSV ATYP ADDR PORT
	req := make([]byte, 4)
	if _, err := io.ReadFull(conn, req); err != nil {
		return
	}
	var host string
	switch req[3] {
	case 1:
		ip := make([]byte, 4)
		if _, err := io.ReadFull(conn, ip); err != nil {
			return
		}
		host = net.IP(ip).String()
	case 3:
		n := make([]byte, 1)
		if _, err := io.ReadFull(conn, n); err != nil {
			return
		}
		name := make([]byte, n[0])
		if _, err := io.ReadFull(conn, name); err != nil {
			return
		}
		host = string(name)
	default:
		return
	}
	portBuf := make([]byte, 2)
	if _, err := io.ReadFull(conn, portBuf); err != nil {
		return
	}
	port := binary.BigEndian.Uint16(portBuf)

	target, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		_, _ = conn.Write([]byte{5, 5, 0, 1, 0, 0, 0, 0, 0, 0})
		return
	}
	defer target.Close()
	tunnels.Add(1)

	if _, err := conn.Write([]byte{5, 0, 0, 1, 0, 0, 0, 0, 0, 0}); err != nil {
		return
	}

	go func() { _, _ = io.Copy(target, conn) }()
	_, _ = io.Copy(conn, target)
}

func TestNewDialer_Direct(t *testing.T) {
	backend := startEchoBackend(t)

	d, err := NewDialer(nil)
	if err != nil {
		t.Fatalf("NewDialer failed: %v", err)
	}
	if d.timeout != DefaultDialTimeout {
		t.Errorf("Expected default timeout, got %v", d.timeout)
	}

	conn, err := d.DialContext(context.Background(), "tcp", backend)
	if err != nil {
		t.Fatalf("DialContext failed: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("direct")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	buf := make([]byte, 6)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
}

func TestNewDialer_SOCKS5Upstream(t *testing.T) {
	backend := startEchoBackend(t)
	socksAddr, tunnels := startSOCKS5(t)

	d, err := NewDialer(&DialerOptions{Upstream: "socks5://" + socksAddr, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewDialer failed: %v", err)
	}

	conn, err := d.DialContext(context.Background(), "tcp", backend)
	if err != nil {
		t.Fatalf("DialContext through SOCKS5 failed: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("via socks")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	buf := make([]byte, 9)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(buf) != "via socks" {
		t.Errorf("Expected echo through the upstream, got %q", string(buf))
	}
	if tunnels.Load() != 1 {
		t.Errorf("Expected 1 SOCKS5 tunnel, got %d", tunnels.Load())
	}
}

func TestNewDialer_InvalidUpstream(t *testing.T) {
	tests := []string{
		"http://proxy:8080",
		"://bad",
	}

	for _, upstream := range tests {
		t.Run(upstream, func(t *testing.T) {
			if _, err := NewDialer(&DialerOptions{Upstream: upstream}); err == nil {
				t.Errorf("Expected error for %q", upstream)
			}
		})
	}
}

func TestNetDialer_Timeout(t *testing.T) {
	d, err := NewDialer(&DialerOptions{Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewDialer failed: %v", err)
	}

	// an already expired context fails without touching the network
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.DialContext(ctx, "tcp", "127.0.0.1:1"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
}
