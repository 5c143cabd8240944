// Package ingest recovers ingest packets from an unframed byte stream.
//
// The sensor link carries back-to-back 5-byte packets with no framing beyond
// the leading sync byte. StreamReader hunts for that byte, accumulates a
// full packet across however many reads it takes, and validates it. A packet
// that fails its checksum is dropped whole; the reader does not rescan its
// bytes for another sync byte.
package ingest

import (
	"errors"
	"io"

	"github.com/banshee-data/cellgate/internal/monitoring"
	"github.com/banshee-data/cellgate/internal/protocol"
)

// ByteSource is the consumption side of the ingest transport.
type ByteSource interface {
	// ReadBytes blocks until at least one byte is available and returns at
	// most max bytes. An empty result with a nil error, or io.EOF, means
	// the stream has closed. The returned slice is only valid until the
	// next call.
	ReadBytes(max int) ([]byte, error)
}

// Stats receives the StreamReader's recoverable drop events.
type Stats interface {
	// AddDroppedBytes counts bytes discarded while hunting for a sync byte.
	AddDroppedBytes(n int)
	// AddRejected counts a complete packet that failed validation.
	AddRejected(err error)
}

type noopStats struct{}

func (noopStats) AddDroppedBytes(int) {}
func (noopStats) AddRejected(error)   {}

// State is the StreamReader's position in the packet recovery cycle.
type State int

const (
	StateAwaitSync State = iota
	StateAccumulate
	StateValidate
)

func (s State) String() string {
	switch s {
	case StateAwaitSync:
		return "await_sync"
	case StateAccumulate:
		return "accumulate"
	case StateValidate:
		return "validate"
	default:
		return "unknown"
	}
}

// StreamReader turns a ByteSource into a sequence of validated readings.
// It is not safe for concurrent use.
type StreamReader struct {
	src   ByteSource
	stats Stats
	logf  func(format string, v ...interface{})

	state State
	buf   [protocol.PacketSize]byte
	n     int

	// pending holds the unconsumed tail of the last chunk. With a source
	// that honours max it is always drained before the next read.
	pending []byte
	// deferred is an error returned alongside data, surfaced once the data
	// has been consumed.
	deferred error
	// err is sticky once set.
	err error
}

// NewStreamReader creates a StreamReader over src. A nil stats discards
// drop events.
func NewStreamReader(src ByteSource, stats Stats) *StreamReader {
	if stats == nil {
		stats = noopStats{}
	}
	return &StreamReader{
		src:   src,
		stats: stats,
		logf:  monitoring.Tagged("ingest"),
		state: StateAwaitSync,
	}
}

// State returns the current recovery state.
func (s *StreamReader) State() State { return s.state }

// Buffered returns the number of packet bytes accumulated so far.
func (s *StreamReader) Buffered() int { return s.n }

// Next blocks until a packet validates and returns its reading. Invalid
// packets are dropped silently apart from stats and logging. The returned
// error is ErrStreamClosed or a *TransportError; once returned, every later
// call returns it again.
func (s *StreamReader) Next() (protocol.Reading, error) {
	if s.err != nil {
		return protocol.Reading{}, s.err
	}
	for {
		for len(s.pending) > 0 {
			b := s.pending[0]
			s.pending = s.pending[1:]
			if r, ok := s.feed(b); ok {
				return r, nil
			}
		}
		if s.deferred != nil {
			s.err = s.deferred
			return protocol.Reading{}, s.err
		}
		if err := s.fill(); err != nil {
			s.err = err
			return protocol.Reading{}, err
		}
	}
}

// fill reads the next chunk, asking only for the bytes the current packet
// still needs.
func (s *StreamReader) fill() error {
	chunk, err := s.src.ReadBytes(protocol.PacketSize - s.n)
	if len(chunk) > 0 {
		s.pending = chunk
		if err != nil {
			s.deferred = classify(err)
		}
		return nil
	}
	if err == nil {
		return ErrStreamClosed
	}
	return classify(err)
}

func classify(err error) error {
	var te *TransportError
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, ErrStreamClosed):
		return ErrStreamClosed
	case errors.As(err, &te):
		return te
	default:
		return &TransportError{Op: "read", Err: err}
	}
}

// feed advances the state machine by one byte and reports a reading when
// that byte completes a valid packet.
func (s *StreamReader) feed(b byte) (protocol.Reading, bool) {
	switch s.state {
	case StateAwaitSync:
		if b != protocol.SyncByte {
			s.stats.AddDroppedBytes(1)
			return protocol.Reading{}, false
		}
		s.buf[0] = b
		s.n = 1
		s.state = StateAccumulate
		return protocol.Reading{}, false

	case StateAccumulate:
		s.buf[s.n] = b
		s.n++
		if s.n < protocol.PacketSize {
			return protocol.Reading{}, false
		}
		s.state = StateValidate
		return s.validate()
	}
	return protocol.Reading{}, false
}

func (s *StreamReader) validate() (protocol.Reading, bool) {
	pkt := s.buf
	s.n = 0
	s.state = StateAwaitSync

	r, err := protocol.Decode(pkt)
	if err != nil {
		s.stats.AddRejected(err)
		s.logf("dropping packet % X: %v", pkt[:], err)
		return protocol.Reading{}, false
	}
	return r, true
}
