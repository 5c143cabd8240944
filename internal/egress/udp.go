package egress

import (
	"fmt"
	"io"
	"net"

	"github.com/banshee-data/cellgate/internal/protocol"
)

// UDPSink sends each frame as one 13-byte datagram to a fixed address.
type UDPSink struct {
	conn    io.WriteCloser
	address string
}

// NewUDPSink dials addr ("host:port"). UDP dialing only resolves the peer,
// so this succeeds even when nothing is listening yet.
func NewUDPSink(addr string) (*UDPSink, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve egress address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create egress connection: %w", err)
	}
	return &UDPSink{conn: conn, address: udpAddr.String()}, nil
}

func (s *UDPSink) Emit(f protocol.EgressFrame) error {
	b, err := f.MarshalBinary()
	if err != nil {
		return &SinkError{Sink: s.String(), Err: err}
	}
	if _, err := s.conn.Write(b); err != nil {
		return &SinkError{Sink: s.String(), Err: err}
	}
	return nil
}

func (s *UDPSink) Close() error { return s.conn.Close() }

func (s *UDPSink) String() string { return "udp://" + s.address }
