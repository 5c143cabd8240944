package monitor

import (
	"net"
	"sync"
	"time"
)

// MockUDPSocket implements UDPSocket for testing. Once Packets are
// exhausted every read times out, as a real socket with a deadline would.
type MockUDPSocket struct {
	mu sync.Mutex
	// Packets holds the datagrams returned from ReadFromUDP.
	Packets [][]byte
	// ReadIndex tracks the current position in Packets.
	ReadIndex int
	// ReadError is returned on the next ReadFromUDP call if set.
	ReadError error
	// Closed indicates whether Close was called.
	Closed bool
	// ReadDeadline holds the last value set by SetReadDeadline.
	ReadDeadline time.Time
	// LocalAddress is returned by LocalAddr.
	LocalAddress *net.UDPAddr
}

func NewMockUDPSocket(packets ...[]byte) *MockUDPSocket {
	return &MockUDPSocket{
		Packets:      packets,
		LocalAddress: &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5000},
	}
}

// ReadFromUDP returns the next queued datagram.
func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Closed {
		return 0, nil, net.ErrClosed
	}
	if m.ReadError != nil {
		err := m.ReadError
		m.ReadError = nil
		return 0, nil, err
	}
	if m.ReadIndex >= len(m.Packets) {
		m.mu.Unlock()
		// Keep an idle listener from spinning.
		time.Sleep(time.Millisecond)
		m.mu.Lock()
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
	pkt := m.Packets[m.ReadIndex]
	m.ReadIndex++
	return copy(b, pkt), &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 40000}, nil
}

// SetReadDeadline records the deadline.
func (m *MockUDPSocket) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadDeadline = t
	return nil
}

// Close marks the socket as closed.
func (m *MockUDPSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (m *MockUDPSocket) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Closed
}

func (m *MockUDPSocket) LocalAddr() net.Addr { return m.LocalAddress }

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
