package sockbuf

import (
	"net"
	"testing"
	"time"
)

func TestSendFlushRecv(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cbuf := New(client, 256)
	sbuf := New(server, 256)

	msg := []byte("hello netplay")
	if err := cbuf.Send(msg); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- cbuf.Flush(true) }()

	got := make([]byte, len(msg))
	if err := waitRecv(sbuf, got); err != nil {
		t.Fatalf("Recv: %v", err)
	}
	sbuf.RecvFlush()

	if err := <-done; err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if string(got) != string(msg) {
		t.Errorf("got %q, want %q", got, msg)
	}
}

func TestRecvResetOnShortRead(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cbuf := New(client, 256)
	sbuf := New(server, 256)

	go func() {
		_ = cbuf.Send([]byte{1, 2})
		_ = cbuf.Flush(true)
	}()

	buf := make([]byte, 5) // more than what will arrive
	n, err := sbuf.Recv(buf, true)
	if err != nil {
		t.Fatal(err)
	}
	if n >= len(buf) {
		t.Fatalf("expected short read, got n=%d", n)
	}

	// A short read must not have committed anything: RecvReset rewinds,
	// and a subsequent full Recv attempt (once the rest arrives) must see
	// the complete prefix again starting from the beginning.
	sbuf.RecvReset()

	go func() {
		_ = cbuf.Send([]byte{3, 4, 5})
		_ = cbuf.Flush(true)
	}()

	full := make([]byte, 5)
	if err := waitRecv(sbuf, full); err != nil {
		t.Fatalf("Recv after reset: %v", err)
	}
	sbuf.RecvFlush()

	want := []byte{1, 2, 3, 4, 5}
	for i := range want {
		if full[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d (full=%v)", i, full[i], want[i], full)
		}
	}
}

func TestByteCountersObserveWireTraffic(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cbuf := New(client, 256)
	sbuf := New(server, 256)

	var sent, recvd int
	cbuf.SetByteCounters(func(n int) { sent += n }, nil)
	sbuf.SetByteCounters(nil, func(n int) { recvd += n })

	msg := []byte("hello netplay")
	if err := cbuf.Send(msg); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- cbuf.Flush(true) }()

	got := make([]byte, len(msg))
	if err := waitRecv(sbuf, got); err != nil {
		t.Fatalf("Recv: %v", err)
	}
	sbuf.RecvFlush()

	if err := <-done; err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if sent != len(msg) {
		t.Errorf("sent counter = %d, want %d", sent, len(msg))
	}
	if recvd != len(msg) {
		t.Errorf("recv counter = %d, want %d", recvd, len(msg))
	}
}

func TestResizeGrows(t *testing.T) {
	client, _ := net.Pipe()
	defer client.Close()

	buf := New(client, 8)
	buf.Resize(64)

	if err := buf.Send(make([]byte, 32)); err != nil {
		t.Fatalf("Send after resize should fit, got: %v", err)
	}
}

// waitRecv polls Recv until buf is fully filled or a timeout elapses.
func waitRecv(b *Buffer, buf []byte) error {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := b.Recv(buf, true)
		if err != nil {
			return err
		}
		if n == len(buf) {
			return nil
		}
	}
	return net.ErrClosed
}
