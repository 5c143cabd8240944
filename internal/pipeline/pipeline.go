// Package pipeline wires the gateway core together: it pulls validated
// readings from a StreamReader, classifies them, builds egress frames and
// hands them to a sink, one reading at a time.
package pipeline

import (
	"errors"

	"github.com/banshee-data/cellgate/internal/egress"
	"github.com/banshee-data/cellgate/internal/ingest"
	"github.com/banshee-data/cellgate/internal/monitoring"
	"github.com/banshee-data/cellgate/internal/protocol"
	"github.com/banshee-data/cellgate/internal/safety"
)

// Pipeline relays readings from one ingest stream to one sink. It is
// single-threaded and has no cancellation of its own: close the source to
// stop Run.
type Pipeline struct {
	reader *ingest.StreamReader
	sink   egress.Sink
	stats  *Stats
	logf   func(format string, v ...interface{})
}

// New builds a pipeline over src. A nil stats allocates a private one.
func New(src ingest.ByteSource, sink egress.Sink, stats *Stats) *Pipeline {
	if stats == nil {
		stats = NewStats()
	}
	return &Pipeline{
		reader: ingest.NewStreamReader(src, stats),
		sink:   sink,
		stats:  stats,
		logf:   monitoring.Tagged("gateway"),
	}
}

// Stats returns the pipeline's counters.
func (p *Pipeline) Stats() *Stats { return p.stats }

// Step relays a single reading. The returned frame is the one handed to the
// sink. A non-nil error is either fatal (ingest.IsFatal) with a zero frame,
// or a *egress.SinkError alongside the frame that failed to send.
func (p *Pipeline) Step() (protocol.EgressFrame, error) {
	r, err := p.reader.Next()
	if err != nil {
		return protocol.EgressFrame{}, err
	}

	status := safety.Classify(r.VoltageMV, r.TempC)
	frame := protocol.BuildFrame(r, uint8(status))
	p.stats.addReading(status)

	p.logf("TX -> %s | Status:0x%02X", r, uint8(status))

	if err := p.sink.Emit(frame); err != nil {
		p.stats.addSinkFailure()
		var se *egress.SinkError
		if !errors.As(err, &se) {
			err = &egress.SinkError{Sink: "sink", Err: err}
		}
		return frame, err
	}
	return frame, nil
}

// Run relays readings until the stream closes or the transport fails and
// returns that error. Sink failures are logged and skipped.
func (p *Pipeline) Run() error {
	for {
		_, err := p.Step()
		if err == nil {
			continue
		}
		if ingest.IsFatal(err) {
			return err
		}
		p.logf("%v", err)
	}
}
