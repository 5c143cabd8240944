package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// FrameID is the CAN identifier carried by every egress frame.
	FrameID uint32 = 0x100

	// FrameDLC is the payload length indicator of every egress frame.
	FrameDLC uint8 = 8

	// FrameSize is the length of the packed wire form: id(4) + len(1) + payload(8).
	FrameSize = 4 + 1 + 8
)

var (
	ErrFrameSize = errors.New("protocol: egress frame must be 13 bytes")
	ErrFrameID   = errors.New("protocol: unexpected egress frame id")
	ErrFrameLen  = errors.New("protocol: unexpected egress frame length")
)

// EgressFrame is the CAN-shaped unit handed to an egress sink.
//
// Payload layout:
//
//	[0] voltage high byte
//	[1] voltage low byte
//	[2] temperature
//	[3] status tag
//	[4..7] zero
type EgressFrame struct {
	ID      uint32
	Len     uint8
	Payload [8]byte
}

// BuildFrame assembles the egress frame for a validated reading. The voltage
// bytes are taken from the encoded ingest packet so the payload matches the
// bytes that passed validation.
func BuildFrame(r Reading, status uint8) EgressFrame {
	pkt := Encode(r)
	f := EgressFrame{ID: FrameID, Len: FrameDLC}
	f.Payload[0] = pkt[1]
	f.Payload[1] = pkt[2]
	f.Payload[2] = r.TempC
	f.Payload[3] = status
	return f
}

// Voltage returns the voltage in millivolts carried in the payload.
func (f EgressFrame) Voltage() uint16 {
	return binary.BigEndian.Uint16(f.Payload[0:2])
}

// Temp returns the temperature in degrees Celsius carried in the payload.
func (f EgressFrame) Temp() uint8 { return f.Payload[2] }

// Status returns the raw status tag carried in the payload.
func (f EgressFrame) Status() uint8 { return f.Payload[3] }

// Reading reconstructs the reading carried in the payload.
func (f EgressFrame) Reading() Reading {
	return Reading{VoltageMV: f.Voltage(), TempC: f.Temp()}
}

func (f EgressFrame) String() string {
	return fmt.Sprintf("id=0x%03X len=%d data=% X", f.ID, f.Len, f.Payload[:])
}

// MarshalBinary packs the frame as the 13-byte datagram the downstream
// monitor expects. The identifier is little-endian, matching the packed
// struct layout of the x86 gateways the monitor was written against.
func (f EgressFrame) MarshalBinary() ([]byte, error) {
	buf := make([]byte, FrameSize)
	binary.LittleEndian.PutUint32(buf[0:4], f.ID)
	buf[4] = f.Len
	copy(buf[5:], f.Payload[:])
	return buf, nil
}

// UnmarshalBinary is the inverse of MarshalBinary. It does not check the
// identifier or length fields; use ParseFrame for validated input.
func (f *EgressFrame) UnmarshalBinary(b []byte) error {
	if len(b) != FrameSize {
		return fmt.Errorf("%w: got %d", ErrFrameSize, len(b))
	}
	f.ID = binary.LittleEndian.Uint32(b[0:4])
	f.Len = b[4]
	copy(f.Payload[:], b[5:])
	return nil
}

// ParseFrame decodes a packed egress frame and rejects frames whose
// identifier or length indicator differ from the gateway constants.
func ParseFrame(b []byte) (EgressFrame, error) {
	var f EgressFrame
	if err := f.UnmarshalBinary(b); err != nil {
		return EgressFrame{}, err
	}
	if f.ID != FrameID {
		return EgressFrame{}, fmt.Errorf("%w: got 0x%X, expected 0x%X", ErrFrameID, f.ID, FrameID)
	}
	if f.Len != FrameDLC {
		return EgressFrame{}, fmt.Errorf("%w: got %d, expected %d", ErrFrameLen, f.Len, FrameDLC)
	}
	return f, nil
}
