package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

func TestMemoryListener_DialAccept(t *testing.T) {
	ln := NewMemoryListener("mem", 4)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			t.Errorf("Accept failed: %v", err)
			close(accepted)
			return
		}
		accepted <- conn
	}()

	client, err := ln.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	server := <-accepted
	if server == nil {
		t.Fatal("Expected accepted connection")
	}
	defer server.Close()

	go func() {
		_, _ = client.Write([]byte("hello"))
	}()

	buf := make([]byte, 5)
	if _, err := io.ReadFull(server, buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(buf) != "hello" {
		t.Errorf("Expected hello, got %q", string(buf))
	}
}

func TestMemoryListener_Addr(t *testing.T) {
	ln := NewMemoryListener("relay-test", 1)
	defer ln.Close()

	if ln.Addr().Network() != "memory" {
		t.Errorf("Expected network memory, got %s", ln.Addr().Network())
	}
	if ln.Addr().String() != "relay-test" {
		t.Errorf("Expected address relay-test, got %s", ln.Addr().String())
	}
}

func TestMemoryListener_Close(t *testing.T) {
	ln := NewMemoryListener("mem", 1)

	if err := ln.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := ln.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got: %v", err)
	}

	if _, err := ln.Accept(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Expected net.ErrClosed from Accept, got: %v", err)
	}
	if _, err := ln.Dial(context.Background()); !errors.Is(err, ErrListenerClosed) {
		t.Errorf("Expected ErrListenerClosed from Dial, got: %v", err)
	}
}

func TestMemoryListener_CloseUnblocksAccept(t *testing.T) {
	ln := NewMemoryListener("mem", 1)

	errCh := make(chan error, 1)
	go func() {
		_, err := ln.Accept()
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	_ = ln.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, net.ErrClosed) {
			t.Errorf("Expected net.ErrClosed, got: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Accept did not unblock after Close")
	}
}

func TestMemoryListener_DialQueueFull(t *testing.T) {
	ln := NewMemoryListener("mem", 1)
	defer ln.Close()

	first, err := ln.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer first.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := ln.Dial(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded with full queue, got: %v", err)
	}
}

func TestMemoryListener_DialContext(t *testing.T) {
	ln := NewMemoryListener("mem", 1)
	defer ln.Close()

	conn, err := ln.DialContext(context.Background(), "tcp", "ignored:1")
	if err != nil {
		t.Fatalf("DialContext failed: %v", err)
	}
	_ = conn.Close()
}
