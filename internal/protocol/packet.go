// Package protocol implements the two fixed binary layouts the gateway
// speaks: the 5-byte ingest packet produced by the battery sensor and the
// 13-byte CAN-shaped egress frame consumed downstream.
//
// Ingest packet layout:
//
//	[SYNC=0xAA][VOLT_HI][VOLT_LO][TEMP][CHECKSUM]
//
// The checksum is the sum of bytes 0..3 truncated to 8 bits. It only catches
// corruption that changes that sum: two compensating byte errors, or a
// corrupted checksum byte that happens to match, pass validation. The format
// is kept as-is for wire compatibility with deployed sensors.
package protocol

import (
	"errors"
	"fmt"
)

const (
	// PacketSize is the length of an ingest packet in bytes.
	PacketSize = 5

	// SyncByte marks the start of every ingest packet.
	SyncByte byte = 0xAA

	// checksumSpan is the number of leading bytes covered by the checksum.
	checksumSpan = 4
)

var (
	ErrSyncMismatch     = errors.New("protocol: sync byte mismatch")
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")
	ErrShortPacket      = errors.New("protocol: packet must be 5 bytes")
)

// Reading is one battery sample as captured by the sensor.
type Reading struct {
	VoltageMV uint16 `json:"voltage_mv"`
	TempC     uint8  `json:"temp_c"`
}

func (r Reading) String() string {
	return fmt.Sprintf("Volt:%4dmV | Temp:%3dC", r.VoltageMV, r.TempC)
}

// Checksum returns the 8-bit sum of the first four bytes of b.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b[:checksumSpan] {
		sum += v
	}
	return sum
}

// Encode serialises r into an ingest packet.
func Encode(r Reading) [PacketSize]byte {
	var pkt [PacketSize]byte
	pkt[0] = SyncByte
	pkt[1] = byte(r.VoltageMV >> 8)
	pkt[2] = byte(r.VoltageMV)
	pkt[3] = r.TempC
	pkt[4] = Checksum(pkt[:])
	return pkt
}

// Decode validates an ingest packet and returns the reading it carries.
// On failure the returned Reading is the zero value and the error wraps
// ErrSyncMismatch or ErrChecksumMismatch.
func Decode(pkt [PacketSize]byte) (Reading, error) {
	if pkt[0] != SyncByte {
		return Reading{}, fmt.Errorf("%w: got 0x%02X, expected 0x%02X", ErrSyncMismatch, pkt[0], SyncByte)
	}
	if want := Checksum(pkt[:]); pkt[4] != want {
		return Reading{}, fmt.Errorf("%w: got 0x%02X, expected 0x%02X", ErrChecksumMismatch, pkt[4], want)
	}
	return Reading{
		VoltageMV: uint16(pkt[1])<<8 | uint16(pkt[2]),
		TempC:     pkt[3],
	}, nil
}

// DecodeBytes is Decode for callers holding a slice, such as payloads pulled
// out of a capture file.
func DecodeBytes(b []byte) (Reading, error) {
	if len(b) != PacketSize {
		return Reading{}, fmt.Errorf("%w: got %d", ErrShortPacket, len(b))
	}
	return Decode([PacketSize]byte(b))
}
