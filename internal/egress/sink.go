// Package egress delivers egress frames to the downstream bus. Every
// transport implements Sink, so the pipeline body is the same whether frames
// leave as UDP datagrams or raw SocketCAN frames.
package egress

import (
	"errors"
	"fmt"

	"github.com/banshee-data/cellgate/internal/protocol"
)

// Sink accepts egress frames. Emit blocks until the frame has been handed
// to the transport.
type Sink interface {
	Emit(f protocol.EgressFrame) error
}

// SinkError reports a failed Emit. It is not fatal: the pipeline logs it and
// moves on to the next reading.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("egress: %s emit failed: %v", e.Sink, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// SinkFunc adapts a function to Sink.
type SinkFunc func(f protocol.EgressFrame) error

func (fn SinkFunc) Emit(f protocol.EgressFrame) error { return fn(f) }

// Multi emits every frame to each sink in order. A failing sink does not
// stop delivery to the rest; the failures are joined.
type Multi []Sink

func (m Multi) Emit(f protocol.EgressFrame) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
