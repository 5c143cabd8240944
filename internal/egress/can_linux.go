//go:build linux

package egress

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/banshee-data/cellgate/internal/protocol"
)

// CANSink writes frames to a raw SocketCAN interface such as can0 or vcan0.
type CANSink struct {
	fd    int
	iface string
}

// NewCANSink opens a CAN_RAW socket bound to the named interface.
func NewCANSink(iface string) (*CANSink, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("failed to find CAN interface %s: %w", iface, err)
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("failed to open CAN socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to bind CAN socket to %s: %w", iface, err)
	}
	return &CANSink{fd: fd, iface: iface}, nil
}

func (s *CANSink) Emit(f protocol.EgressFrame) error {
	b := canFrameBytes(f)
	n, err := unix.Write(s.fd, b[:])
	if err != nil {
		return &SinkError{Sink: s.String(), Err: err}
	}
	if n != len(b) {
		return &SinkError{Sink: s.String(), Err: fmt.Errorf("short write %d of %d", n, len(b))}
	}
	return nil
}

func (s *CANSink) Close() error { return unix.Close(s.fd) }

func (s *CANSink) String() string { return "can://" + s.iface }
