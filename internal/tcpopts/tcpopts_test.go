package tcpopts

import (
	"context"
	"net"
	"testing"
)

func TestListenAndDialRoundTrip(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	acceptErr := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- conn
	}()

	conn, err := Dialer().DialContext(context.Background(), "tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := SetNoDelay(conn); err != nil {
		t.Fatalf("SetNoDelay: %v", err)
	}

	select {
	case server := <-accepted:
		defer server.Close()
	case err := <-acceptErr:
		t.Fatalf("Accept: %v", err)
	}
}

func TestSetNoDelayIgnoresNonTCPConn(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	if err := SetNoDelay(a); err != nil {
		t.Fatalf("SetNoDelay on a non-TCP conn should be a no-op, got: %v", err)
	}
}
