package transport

import (
	"net"
	"testing"
	"time"
)

func TestClientServerRoundTrip(t *testing.T) {
	srv, err := NewServerTransport(0, 1.0, 1.0, 4)
	if err != nil {
		t.Fatalf("NewServerTransport: %v", err)
	}
	defer srv.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(func(data []byte, from *net.UDPAddr) ([]byte, bool) {
			reply := append([]byte("echo:"), data...)
			return reply, false
		})
	}()

	cli, err := NewClientTransport("127.0.0.1", srv.LocalAddr().Port, time.Second, 1.0, 1.0)
	if err != nil {
		t.Fatalf("NewClientTransport: %v", err)
	}
	defer cli.Close()

	reply, err := cli.SendAndReceive([]byte("hi"))
	if err != nil {
		t.Fatalf("SendAndReceive: %v", err)
	}
	if string(reply) != "echo:hi" {
		t.Fatalf("unexpected reply: %q", reply)
	}

	srv.Close()
	<-done
}

func TestClientSendAndReceiveTimesOutWithNoServer(t *testing.T) {
	// Bind a socket and close it immediately so the port is very likely
	// unoccupied, then expect a timeout rather than a connection error since
	// UDP has no handshake to fail fast on.
	probe, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("probe listen: %v", err)
	}
	port := probe.LocalAddr().(*net.UDPAddr).Port
	probe.Close()

	cli, err := NewClientTransport("127.0.0.1", port, 100*time.Millisecond, 1.0, 1.0)
	if err != nil {
		t.Fatalf("NewClientTransport: %v", err)
	}
	defer cli.Close()

	_, err = cli.SendAndReceive([]byte("hi"))
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestLossyRandKeepBoundaryProbabilities(t *testing.T) {
	l := newLossyRand()
	if !l.keep(1.0) {
		t.Fatalf("probability 1.0 must always keep")
	}
	if l.keep(0.0) {
		t.Fatalf("probability 0.0 must never keep")
	}
}

func TestServerTransportShutdownClosesSocket(t *testing.T) {
	srv, err := NewServerTransport(0, 1.0, 1.0, 2)
	if err != nil {
		t.Fatalf("NewServerTransport: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(func(data []byte, from *net.UDPAddr) ([]byte, bool) {
			return []byte("bye"), true
		})
	}()

	cli, err := NewClientTransport("127.0.0.1", srv.LocalAddr().Port, time.Second, 1.0, 1.0)
	if err != nil {
		t.Fatalf("NewClientTransport: %v", err)
	}
	defer cli.Close()

	if _, err := cli.SendAndReceive([]byte("shutdown")); err != nil {
		t.Fatalf("SendAndReceive: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected server loop to exit after shutdown signal")
	}
}
