package testutil

import (
	"io"
	"sync"

	"github.com/banshee-data/cellgate/internal/protocol"
)

// Chunk is one scripted ReadBytes result.
type Chunk struct {
	Data []byte
	Err  error
}

// ScriptedSource replays a fixed sequence of chunks through ReadBytes. A
// chunk longer than the requested max is split across calls. Once the
// script is exhausted it returns io.EOF.
type ScriptedSource struct {
	mu     sync.Mutex
	chunks []Chunk
	// Requests records the max passed to each ReadBytes call.
	Requests []int
	Closed   bool
}

// NewScriptedSource returns a source that yields each slice as one chunk.
func NewScriptedSource(chunks ...[]byte) *ScriptedSource {
	s := &ScriptedSource{}
	for _, c := range chunks {
		s.chunks = append(s.chunks, Chunk{Data: c})
	}
	return s
}

// Then appends a chunk to the script.
func (s *ScriptedSource) Then(data []byte, err error) *ScriptedSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, Chunk{Data: data, Err: err})
	return s
}

func (s *ScriptedSource) ReadBytes(max int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Requests = append(s.Requests, max)
	if len(s.chunks) == 0 {
		return nil, io.EOF
	}
	c := &s.chunks[0]
	if len(c.Data) > max {
		out := c.Data[:max]
		c.Data = c.Data[max:]
		return out, nil
	}
	s.chunks = s.chunks[1:]
	return c.Data, c.Err
}

func (s *ScriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Packet returns the encoded ingest packet for a reading as a slice.
func Packet(voltageMV uint16, tempC uint8) []byte {
	pkt := protocol.Encode(protocol.Reading{VoltageMV: voltageMV, TempC: tempC})
	return pkt[:]
}

// Concat joins byte slices into one stream.
func Concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
