package ingest

import (
	"fmt"
	"io"
)

// Source is a ByteSource owned by a connection that can be closed, such as
// a TCP socket or serial port. Closing it unblocks a pending ReadBytes.
type Source interface {
	ByteSource
	io.Closer
}

// ReaderSource adapts an io.Reader to ByteSource.
type ReaderSource struct {
	name string
	r    io.Reader
	buf  []byte
}

// NewReaderSource wraps r. If r is also an io.Closer, Close closes it.
func NewReaderSource(name string, r io.Reader) *ReaderSource {
	return &ReaderSource{
		name: name,
		r:    r,
		buf:  make([]byte, 64),
	}
}

// ReadBytes performs a single Read of at most max bytes.
func (s *ReaderSource) ReadBytes(max int) ([]byte, error) {
	if max <= 0 {
		return nil, fmt.Errorf("ingest: invalid read size %d", max)
	}
	if max > len(s.buf) {
		s.buf = make([]byte, max)
	}
	n, err := s.r.Read(s.buf[:max])
	return s.buf[:n], err
}

// Close closes the underlying reader when it supports it.
func (s *ReaderSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *ReaderSource) String() string { return s.name }
