package reach

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestCheck_EmptyHost(t *testing.T) {
	t.Parallel()

	if err := (Checker{}).Check(context.Background(), ""); err != nil {
		t.Errorf("Check(\"\") error: %v", err)
	}
}

func TestCheck_TCPListening(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	if err := (Checker{}).Check(context.Background(), ln.Addr().String()); err != nil {
		t.Errorf("Check() error: %v", err)
	}
}

func TestCheck_TCPClosed(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	err = (Checker{Timeout: time.Second}).Check(context.Background(), addr)
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("error = %v, want ErrUnreachable", err)
	}
}

func TestCheck_IPLiteral(t *testing.T) {
	t.Parallel()

	if err := (Checker{}).Check(context.Background(), "127.0.0.1"); err != nil {
		t.Errorf("Check() error: %v", err)
	}
}

func TestCheck_UnresolvableName(t *testing.T) {
	t.Parallel()

	err := (Checker{Timeout: time.Second}).Check(context.Background(), "host.invalid")
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("error = %v, want ErrUnreachable", err)
	}
}
