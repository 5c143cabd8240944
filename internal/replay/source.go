// Package replay feeds recorded sensor traffic back into the gateway. A
// capture of the sensor's TCP stream becomes an ingest.ByteSource whose
// chunks are the original segment payloads, so framing behaves exactly as
// it did on the wire.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/cellgate/internal/timeutil"
)

// DefaultPort is the mock sensor's TCP port.
const DefaultPort = 4000

// Segment is one captured TCP payload.
type Segment struct {
	Data      []byte
	Timestamp time.Time
}

// SegmentReader yields captured payloads in capture order. NextSegment
// returns io.EOF once the capture is exhausted.
type SegmentReader interface {
	NextSegment() (Segment, error)
	Close() error
}

// Source adapts a SegmentReader to ingest.Source.
type Source struct {
	ctx     context.Context
	r       SegmentReader
	clock   timeutil.Clock
	speed   float64
	name    string
	pending []byte
	last    time.Time

	segments int
	bytes    int
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithPacing sleeps between segments so they arrive with their captured
// spacing divided by speed. speed <= 0 replays as fast as possible.
func WithPacing(clock timeutil.Clock, speed float64) SourceOption {
	return func(s *Source) {
		s.clock = clock
		s.speed = speed
	}
}

// NewSource reads segments from r. Pacing sleeps are abandoned when ctx ends.
func NewSource(ctx context.Context, name string, r SegmentReader, opts ...SourceOption) *Source {
	s := &Source{ctx: ctx, r: r, name: name, clock: timeutil.RealClock{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ReadBytes returns at most max bytes of the current segment, moving to the
// next segment once it is consumed.
func (s *Source) ReadBytes(max int) ([]byte, error) {
	if max <= 0 {
		return nil, fmt.Errorf("replay: invalid read size %d", max)
	}
	if len(s.pending) == 0 {
		if err := s.advance(); err != nil {
			return nil, err
		}
	}
	n := min(max, len(s.pending))
	out := s.pending[:n]
	s.pending = s.pending[n:]
	return out, nil
}

func (s *Source) advance() error {
	for len(s.pending) == 0 {
		seg, err := s.r.NextSegment()
		if err != nil {
			return err
		}
		if err := s.pace(seg.Timestamp); err != nil {
			return err
		}
		s.segments++
		s.bytes += len(seg.Data)
		s.pending = seg.Data
	}
	return nil
}

func (s *Source) pace(at time.Time) error {
	defer func() { s.last = at }()
	if s.speed <= 0 || s.last.IsZero() || !at.After(s.last) {
		return nil
	}
	wait := time.Duration(float64(at.Sub(s.last)) / s.speed)
	if err := s.clock.Sleep(s.ctx, wait); err != nil {
		// The stream reader treats EOF as a clean end of input.
		return io.EOF
	}
	return nil
}

// Replayed returns the segments and bytes handed out so far.
func (s *Source) Replayed() (segments, bytes int) { return s.segments, s.bytes }

func (s *Source) Close() error { return s.r.Close() }

func (s *Source) String() string { return s.name }

// SliceReader is a SegmentReader over in-memory segments.
type SliceReader struct {
	Segments []Segment
	Closed   bool
	next     int
}

func (r *SliceReader) NextSegment() (Segment, error) {
	if r.Closed {
		return Segment{}, errors.New("replay: reader closed")
	}
	if r.next >= len(r.Segments) {
		return Segment{}, io.EOF
	}
	seg := r.Segments[r.next]
	r.next++
	return seg, nil
}

func (r *SliceReader) Close() error {
	r.Closed = true
	return nil
}
