package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/cellgate/internal/config"
	"github.com/banshee-data/cellgate/internal/egress"
	"github.com/banshee-data/cellgate/internal/ingest"
	"github.com/banshee-data/cellgate/internal/monitoring"
	"github.com/banshee-data/cellgate/internal/pipeline"
	"github.com/banshee-data/cellgate/internal/protocol"
	"github.com/banshee-data/cellgate/internal/testutil"
	"github.com/banshee-data/cellgate/internal/timeutil"
)

type frames struct {
	mu  sync.Mutex
	got []protocol.EgressFrame
}

func (f *frames) Emit(fr protocol.EgressFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, fr)
	return nil
}

func (f *frames) voltages() []uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uint16
	for _, fr := range f.got {
		out = append(out, fr.Voltage())
	}
	return out
}

func newTestGateway(dial ingest.DialFunc, sink egress.Sink, reconnect bool) *gateway {
	return &gateway{
		dial:      dial,
		policy:    ingest.RetryPolicy{InitialDelay: time.Second, Multiplier: 1, MaxDelay: time.Second},
		reconnect: reconnect,
		sink:      sink,
		stats:     pipeline.NewStats(),
		clock:     timeutil.NewMockClock(time.Unix(0, 0)),
	}
}

func TestGateway_ExitsCleanlyWhenStreamCloses(t *testing.T) {
	monitoring.SetLogger(nil)
	out := &frames{}
	src := testutil.NewScriptedSource(testutil.Concat(testutil.Packet(3300, 45), testutil.Packet(3050, 45)))
	dial := func(context.Context) (ingest.Source, error) { return src, nil }

	g := newTestGateway(dial, out, false)
	if err := g.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff([]uint16{3300, 3050}, out.voltages()); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
	if !src.Closed {
		t.Error("source was not closed")
	}
	snap := g.stats.Snapshot()
	if snap.Readings != 2 || snap.StatusWarnLowV != 1 {
		t.Errorf("unexpected stats %+v", snap)
	}
}

func TestGateway_TransportErrorIsReturned(t *testing.T) {
	monitoring.SetLogger(nil)
	boom := errors.New("line noise")
	src := testutil.NewScriptedSource().Then(nil, boom)
	dial := func(context.Context) (ingest.Source, error) { return src, nil }

	err := newTestGateway(dial, &frames{}, false).run(context.Background())
	var te *ingest.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
}

func TestGateway_ReconnectsUntilCancelled(t *testing.T) {
	monitoring.SetLogger(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &frames{}
	dials := 0
	dial := func(context.Context) (ingest.Source, error) {
		dials++
		switch dials {
		case 1:
			return testutil.NewScriptedSource(testutil.Packet(3300, 45)), nil
		case 2:
			return nil, errors.New("connection refused")
		case 3:
			return testutil.NewScriptedSource(testutil.Packet(3400, 45)), nil
		default:
			cancel()
			return nil, errors.New("connection refused")
		}
	}

	g := newTestGateway(dial, out, true)
	if err := g.run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if dials != 4 {
		t.Errorf("expected 4 dials, got %d", dials)
	}
	if diff := cmp.Diff([]uint16{3300, 3400}, out.voltages()); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
	sleeps := g.clock.(*timeutil.MockClock).Sleeps()
	if diff := cmp.Diff([]time.Duration{time.Second}, sleeps); diff != "" {
		t.Errorf("retry sleeps mismatch (-want +got):\n%s", diff)
	}
}

func TestGateway_BacksOffWhenSessionsCloseImmediately(t *testing.T) {
	monitoring.SetLogger(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dials := 0
	dial := func(context.Context) (ingest.Source, error) {
		dials++
		if dials == 5 {
			cancel()
			return nil, errors.New("connection refused")
		}
		return testutil.NewScriptedSource(), nil
	}

	g := newTestGateway(dial, &frames{}, true)
	g.policy.Multiplier = 2
	g.policy.MaxDelay = 4 * time.Second
	if err := g.run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if dials != 5 {
		t.Errorf("expected 5 dials, got %d", dials)
	}
	sleeps := g.clock.(*timeutil.MockClock).Sleeps()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	if diff := cmp.Diff(want, sleeps); diff != "" {
		t.Errorf("reconnect sleeps mismatch (-want +got):\n%s", diff)
	}
}

func TestGateway_ReadingResetsReconnectBackoff(t *testing.T) {
	monitoring.SetLogger(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &frames{}
	dials := 0
	dial := func(context.Context) (ingest.Source, error) {
		dials++
		switch dials {
		case 1, 2, 4:
			return testutil.NewScriptedSource(), nil
		case 3:
			return testutil.NewScriptedSource(testutil.Packet(3300, 45)), nil
		default:
			cancel()
			return nil, errors.New("connection refused")
		}
	}

	g := newTestGateway(dial, out, true)
	g.policy.Multiplier = 2
	g.policy.MaxDelay = 8 * time.Second
	if err := g.run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff([]uint16{3300}, out.voltages()); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
	// Dial 3 relays a reading, so dial 4's empty session starts over at 1s.
	sleeps := g.clock.(*timeutil.MockClock).Sleeps()
	want := []time.Duration{time.Second, 2 * time.Second, time.Second}
	if diff := cmp.Diff(want, sleeps); diff != "" {
		t.Errorf("reconnect sleeps mismatch (-want +got):\n%s", diff)
	}
}

func TestGateway_UnnamedSourceLogsPlaceholder(t *testing.T) {
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	defer monitoring.SetLogger(nil)

	dial := func(context.Context) (ingest.Source, error) {
		return testutil.NewScriptedSource(testutil.Packet(3300, 45)), nil
	}
	if err := newTestGateway(dial, &frames{}, false).run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(lines) == 0 || lines[0] != "[gateway] connected to sensor" {
		t.Errorf("unexpected log lines %q", lines)
	}
}

func TestGateway_ConnectBudgetExhausted(t *testing.T) {
	monitoring.SetLogger(nil)
	dial := func(context.Context) (ingest.Source, error) { return nil, errors.New("refused") }
	g := newTestGateway(dial, &frames{}, false)
	g.policy.MaxAttempts = 2

	err := g.run(context.Background())
	if !errors.Is(err, ingest.ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
}

func TestGateway_CancelClosesBlockedSource(t *testing.T) {
	monitoring.SetLogger(nil)
	client, server := net.Pipe()
	defer server.Close()

	out := &frames{}
	dial := func(context.Context) (ingest.Source, error) {
		return ingest.NewReaderSource("pipe", client), nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newTestGateway(dial, out, true).run(ctx) }()

	pkt := testutil.Packet(3300, 45)
	if _, err := server.Write(pkt); err != nil {
		t.Fatalf("write: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(out.voltages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("gateway did not stop after cancel")
	}
	if diff := cmp.Diff([]uint16{3300}, out.voltages()); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyFlags(t *testing.T) {
	defer func(s, p, a string, b int, r bool, i time.Duration) {
		*source, *serialPath, *adminListen, *baudRate, *reconnect, *statsInterval = s, p, a, b, r, i
	}(*source, *serialPath, *adminListen, *baudRate, *reconnect, *statsInterval)

	*source = config.SourceSerial
	*serialPath = "/dev/ttyACM0"
	*baudRate = 9600
	*reconnect = true
	*statsInterval = 5 * time.Second
	*adminListen = "ignored:1"

	cfg := config.EmptyGatewayConfig()
	set := map[string]bool{"source": true, "serial": true, "baud": true, "reconnect": true, "stats-interval": true}
	if err := applyFlags(cfg, set); err != nil {
		t.Fatalf("applyFlags: %v", err)
	}

	if got := cfg.GetSource(); got != config.SourceSerial {
		t.Errorf("source = %q", got)
	}
	if got := cfg.GetSerialOptions().BaudRate; got != 9600 {
		t.Errorf("baud = %d", got)
	}
	if !cfg.GetReconnect() {
		t.Error("reconnect not applied")
	}
	if got := cfg.GetStatsInterval(); got != 5*time.Second {
		t.Errorf("stats interval = %v", got)
	}
	if got := cfg.GetAdminListen(); got != "" {
		t.Errorf("unset flag leaked into config: %q", got)
	}
	if got := describeSource(cfg); got != "serial:///dev/ttyACM0" {
		t.Errorf("describeSource = %q", got)
	}
	if got := describeSink(cfg); got != "udp://127.0.0.1:5000" {
		t.Errorf("describeSink = %q", got)
	}
}

func TestApplyFlags_RejectsBadSource(t *testing.T) {
	defer func(s string) { *source = s }(*source)
	*source = "carrier-pigeon"
	if err := applyFlags(config.EmptyGatewayConfig(), map[string]bool{"source": true}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestApplyFlags_RejectsNonPositiveStatsInterval(t *testing.T) {
	defer func(i time.Duration) { *statsInterval = i }(*statsInterval)
	for _, d := range []time.Duration{0, -5 * time.Second} {
		*statsInterval = d
		if err := applyFlags(config.EmptyGatewayConfig(), map[string]bool{"stats-interval": true}); err == nil {
			t.Errorf("stats interval %v: expected validation error", d)
		}
	}
}
