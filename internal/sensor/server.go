package sensor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"time"

	"github.com/banshee-data/cellgate/internal/monitoring"
	"github.com/banshee-data/cellgate/internal/protocol"
	"github.com/banshee-data/cellgate/internal/timeutil"
)

// DefaultInterval is the sensor's sampling period.
const DefaultInterval = 100 * time.Millisecond

// Server streams simulator readings as ingest packets.
type Server struct {
	Sim      *Simulator
	Interval time.Duration
	Clock    timeutil.Clock
	// GarbageRate is the probability of writing one stray non-sync byte
	// before a packet, exercising the gateway's resynchronisation.
	GarbageRate float64
	Rand        *rand.Rand
	// Capture, when set, receives a copy of every write. Capture errors
	// are logged and do not stop the stream.
	Capture io.Writer

	seq  int64
	logf func(format string, v ...interface{})
}

func (s *Server) init() {
	if s.Interval <= 0 {
		s.Interval = DefaultInterval
	}
	if s.Clock == nil {
		s.Clock = timeutil.RealClock{}
	}
	if s.Rand == nil {
		s.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.logf == nil {
		s.logf = monitoring.Tagged("sensor")
	}
}

// Seq returns the number of packets sent so far.
func (s *Server) Seq() int64 { return s.seq }

// Serve accepts gateway connections on ln one at a time and streams to
// each until it disconnects. It returns when ctx ends or ln fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.init()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		s.logf("waiting for gateway connection on %s", ln.Addr())
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		s.logf("gateway connected from %s", conn.RemoteAddr())

		err = s.Stream(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		s.logf("gateway disconnected: %v", err)
	}
}

// Stream writes one packet per tick to w until a write fails or ctx ends.
func (s *Server) Stream(ctx context.Context, w io.Writer) error {
	s.init()
	ticker := s.Clock.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if err := s.send(w); err != nil {
				return err
			}
		}
	}
}

func (s *Server) send(w io.Writer) error {
	r := s.Sim.Next()
	pkt := protocol.Encode(r)

	buf := pkt[:]
	if s.GarbageRate > 0 && s.Rand.Float64() < s.GarbageRate {
		buf = append([]byte{byte(s.Rand.Intn(int(protocol.SyncByte)))}, pkt[:]...)
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}
	if s.Capture != nil {
		if _, err := s.Capture.Write(buf); err != nil {
			s.logf("capture write failed: %v", err)
		}
	}
	s.seq++
	s.logf("TX Seq:%d | %s", s.seq, r)
	return nil
}

// ErrNoSimulator is returned by ListenAndServe without a Sim.
var ErrNoSimulator = errors.New("sensor: server has no simulator")

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if s.Sim == nil {
		return ErrNoSimulator
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
