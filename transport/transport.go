// Package transport implements the datagram send/receive primitives for both
// client and server, including the directional loss simulation described in
// SPEC_FULL.md §4.2/§4.3. The dice roll behind loss simulation uses
// golang.org/x/exp/rand, the same explicit-PRNG-source choice the sandstore
// example makes for raft election jitter, rather than the global math/rand.
package transport

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"golang.org/x/exp/rand"
)

// ErrTimeout is returned by ClientTransport.SendAndReceive when the socket read
// deadline elapses without a reply.
var ErrTimeout = errors.New("transport: receive timed out")

// lossyRand guards the shared PRNG so both transports can be driven from
// multiple goroutines (the server's worker pool, the client's callback
// listener) without a data race.
type lossyRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newLossyRand() *lossyRand {
	return &lossyRand{rng: rand.New(rand.NewSource(uint64(time.Now().UnixNano())))}
}

// keep reports whether an operation gated by successProb should proceed.
func (l *lossyRand) keep(successProb float64) bool {
	if successProb >= 1.0 {
		return true
	}
	if successProb <= 0.0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64() < successProb
}

// ClientTransport sends requests to a single server address and waits for a
// reply, simulating directional datagram loss per SPEC_FULL.md §4.2.
type ClientTransport struct {
	conn       *net.UDPConn
	serverAddr *net.UDPAddr
	timeout    time.Duration
	sendProb   float64
	recvProb   float64
	loss       *lossyRand
}

// NewClientTransport binds an ephemeral local UDP socket and resolves the
// server address.
func NewClientTransport(serverHost string, serverPort int, timeout time.Duration, sendProb, recvProb float64) (*ClientTransport, error) {
	serverAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", serverHost, serverPort))
	if err != nil {
		return nil, fmt.Errorf("transport: resolve server address: %w", err)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("transport: open client socket: %w", err)
	}
	return &ClientTransport{
		conn:       conn,
		serverAddr: serverAddr,
		timeout:    timeout,
		sendProb:   sendProb,
		recvProb:   recvProb,
		loss:       newLossyRand(),
	}, nil
}

// Close releases the client's UDP socket.
func (c *ClientTransport) Close() error {
	return c.conn.Close()
}

// SendAndReceive sends data to the server and waits up to the configured timeout
// for a reply. It returns (nil, nil) when loss simulation swallows the send or
// receive, and ErrTimeout when no datagram arrives before the deadline.
func (c *ClientTransport) SendAndReceive(data []byte) ([]byte, error) {
	if !c.loss.keep(c.sendProb) {
		return nil, nil // simulated send loss: the datagram never touches the socket.
	}
	if _, err := c.conn.WriteToUDP(data, c.serverAddr); err != nil {
		return nil, fmt.Errorf("transport: send: %w", err)
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("transport: set read deadline: %w", err)
	}
	buf := make([]byte, bufferSize)
	n, _, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("transport: receive: %w", err)
	}

	if !c.loss.keep(c.recvProb) {
		return nil, nil // simulated receive loss: bytes were read but are discarded.
	}
	return buf[:n], nil
}

// ListenForCallback blocks until a server-initiated callback datagram arrives or
// deadline passes, used by the client's monitor listener loop.
func (c *ClientTransport) ListenForCallback(deadline time.Time) ([]byte, error) {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("transport: set read deadline: %w", err)
	}
	buf := make([]byte, bufferSize)
	n, _, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("transport: receive callback: %w", err)
	}
	return buf[:n], nil
}

// bufferSize is the single-datagram buffer enforced by the protocol (SPEC_FULL.md §6).
const bufferSize = 1024

// ServerHandler processes one inbound datagram and returns the bytes to send
// back (nil to send nothing), plus whether the server loop should terminate
// after replying (the distinguished SHUTDOWN signal, SPEC_FULL.md §4.3/§4.5).
type ServerHandler func(data []byte, from *net.UDPAddr) (reply []byte, shutdown bool)

// ServerTransport runs the blocking receive loop and simulates directional loss
// on both the inbound datagram and the outbound reply (SPEC_FULL.md §4.3).
type ServerTransport struct {
	conn     *net.UDPConn
	sendProb float64
	recvProb float64
	loss     *lossyRand
	workers  chan struct{}
}

// NewServerTransport binds a UDP listen socket on port with a bounded worker
// pool of size workerPoolSize dispatching per-request handling, so one slow
// filesystem operation doesn't stall the receive loop for unrelated datagrams.
func NewServerTransport(port int, sendProb, recvProb float64, workerPoolSize int) (*ServerTransport, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, fmt.Errorf("transport: listen on port %d: %w", port, err)
	}
	if workerPoolSize <= 0 {
		workerPoolSize = 1
	}
	return &ServerTransport{
		conn:     conn,
		sendProb: sendProb,
		recvProb: recvProb,
		loss:     newLossyRand(),
		workers:  make(chan struct{}, workerPoolSize),
	}, nil
}

// Close releases the server's UDP socket.
func (s *ServerTransport) Close() error {
	return s.conn.Close()
}

// LocalAddr reports the socket's bound address, useful when NewServerTransport
// was given port 0 and the operating system chose an ephemeral one.
func (s *ServerTransport) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// SendTo delivers a datagram to an arbitrary client endpoint, used by the
// monitor registry for server-initiated callbacks. It is subject to the same
// outbound loss simulation as a normal reply.
func (s *ServerTransport) SendTo(to *net.UDPAddr, data []byte) error {
	if !s.loss.keep(s.sendProb) {
		return nil // simulated send loss.
	}
	_, err := s.conn.WriteToUDP(data, to)
	return err
}

// Serve runs the blocking receive loop until handler signals shutdown or the
// socket is closed. Each datagram is dispatched to a bounded worker pool.
func (s *ServerTransport) Serve(handler ServerHandler) error {
	var wg sync.WaitGroup
	for {
		buf := make([]byte, bufferSize)
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			wg.Wait()
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("transport: receive: %w", err)
		}

		if !s.loss.keep(s.recvProb) {
			continue // simulated receive loss: drop the datagram after reading it.
		}

		data := buf[:n]
		s.workers <- struct{}{}
		wg.Add(1)
		go func(data []byte, from *net.UDPAddr) {
			defer wg.Done()
			defer func() { <-s.workers }()

			reply, shutdown := handler(data, from)
			if reply != nil {
				if !s.loss.keep(s.sendProb) {
					return // simulated send loss.
				}
				if _, err := s.conn.WriteToUDP(reply, from); err != nil {
					log.Printf("transport: send reply to %s: %v", from, err)
				}
			}
			if shutdown {
				if err := s.conn.Close(); err != nil {
					log.Printf("transport: close on shutdown: %v", err)
				}
			}
		}(data, from)
	}
}
