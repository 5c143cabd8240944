package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/cellgate/internal/monitoring"
	"github.com/banshee-data/cellgate/internal/protocol"
	"github.com/banshee-data/cellgate/internal/timeutil"
)

// UDPSocket defines the socket operations the listener needs.
// This abstraction enables unit testing without real network connections.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// ListenUDP binds a UDP socket on addr.
func ListenUDP(addr string) (UDPSocket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	return conn, nil
}

// FrameHandler receives each well-formed frame and its arrival time.
type FrameHandler func(f protocol.EgressFrame, at time.Time)

// ListenerStats counts datagrams seen by a Listener.
type ListenerStats struct {
	Received  int64 `json:"received"`
	Malformed int64 `json:"malformed"`
}

// Listener receives egress frames from the gateway over UDP.
type Listener struct {
	sock        UDPSocket
	clock       timeutil.Clock
	handle      FrameHandler
	pollTimeout time.Duration

	mu    sync.Mutex
	stats ListenerStats
	logf  func(format string, v ...interface{})
}

// NewListener wraps sock. A nil clock uses the wall clock.
func NewListener(sock UDPSocket, clock timeutil.Clock, handle FrameHandler) *Listener {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Listener{
		sock:        sock,
		clock:       clock,
		handle:      handle,
		pollTimeout: 100 * time.Millisecond,
		logf:        monitoring.Tagged("monitor"),
	}
}

// Stats returns a copy of the datagram counters.
func (l *Listener) Stats() ListenerStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Run reads datagrams until ctx ends or the socket fails. Datagrams that are
// not exactly one egress frame are counted and skipped.
func (l *Listener) Run(ctx context.Context) error {
	defer l.sock.Close()
	l.logf("listening on %s", l.sock.LocalAddr())

	buf := make([]byte, 1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Short deadlines let the loop observe ctx.
		l.sock.SetReadDeadline(time.Now().Add(l.pollTimeout))
		n, _, err := l.sock.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("udp read failed: %w", err)
		}
		l.handleDatagram(buf[:n])
	}
}

func (l *Listener) handleDatagram(b []byte) {
	f, err := protocol.ParseFrame(b)

	l.mu.Lock()
	l.stats.Received++
	if err != nil {
		l.stats.Malformed++
	}
	l.mu.Unlock()

	if err != nil {
		l.logf("skipping datagram (%d bytes): %v", len(b), err)
		return
	}
	l.handle(f, l.clock.Now())
}
