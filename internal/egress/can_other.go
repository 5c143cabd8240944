//go:build !linux

package egress

import "github.com/banshee-data/cellgate/internal/protocol"

// CANSink is unavailable off linux; NewCANSink always fails.
type CANSink struct{}

func NewCANSink(iface string) (*CANSink, error) { return nil, ErrCANUnsupported }

func (s *CANSink) Emit(protocol.EgressFrame) error { return ErrCANUnsupported }

func (s *CANSink) Close() error { return nil }

func (s *CANSink) String() string { return "can://unsupported" }
