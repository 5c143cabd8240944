// Command pcap-replay runs a capture of sensor traffic through the gateway
// pipeline and prints the resulting frames, optionally forwarding them to
// the monitor over UDP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/cellgate/internal/egress"
	"github.com/banshee-data/cellgate/internal/ingest"
	"github.com/banshee-data/cellgate/internal/monitoring"
	"github.com/banshee-data/cellgate/internal/pipeline"
	"github.com/banshee-data/cellgate/internal/protocol"
	"github.com/banshee-data/cellgate/internal/replay"
	"github.com/banshee-data/cellgate/internal/timeutil"
)

// Config holds the replay settings.
type Config struct {
	PCAPFile string
	Port     int
	LibPCAP  bool
	Speed    float64
	UDPAddr  string
	JSON     bool
	Quiet    bool
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.PCAPFile, "pcap", "", "Capture file to replay (required)")
	flag.IntVar(&cfg.Port, "port", replay.DefaultPort, "Sensor TCP port in the capture")
	flag.BoolVar(&cfg.LibPCAP, "libpcap", false, "Read through libpcap with a BPF filter (needs -tags=pcap)")
	flag.Float64Var(&cfg.Speed, "speed", 0, "Replay at this multiple of capture speed (0 = as fast as possible)")
	flag.StringVar(&cfg.UDPAddr, "udp", "", "Also forward frames to this UDP address")
	flag.BoolVar(&cfg.JSON, "json", false, "Print a JSON summary instead of one line per frame")
	flag.BoolVar(&cfg.Quiet, "q", false, "Suppress per-frame logging")
	flag.Parse()

	if cfg.PCAPFile == "" {
		flag.Usage()
		os.Exit(2)
	}
	if cfg.Quiet {
		monitoring.SetLogger(nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snap, err := run(ctx, cfg, os.Stdout)
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}
	if cfg.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(snap)
	}
}

func openReader(cfg Config) (replay.SegmentReader, error) {
	if cfg.LibPCAP {
		return replay.OpenPCAP(cfg.PCAPFile, cfg.Port)
	}
	return replay.OpenFile(cfg.PCAPFile, cfg.Port)
}

// run replays the capture and returns the pipeline counters. Frames are
// printed to out unless cfg.JSON is set.
func run(ctx context.Context, cfg Config, out io.Writer) (pipeline.Snapshot, error) {
	r, err := openReader(cfg)
	if err != nil {
		return pipeline.Snapshot{}, err
	}
	src := replay.NewSource(ctx, "pcap://"+cfg.PCAPFile, r, replay.WithPacing(timeutil.RealClock{}, cfg.Speed))
	defer src.Close()

	var sinks egress.Multi
	if !cfg.JSON {
		sinks = append(sinks, egress.SinkFunc(func(f protocol.EgressFrame) error {
			_, err := fmt.Fprintf(out, "%s | Status:0x%02X | %s\n", f.Reading(), f.Status(), f)
			return err
		}))
	}
	if cfg.UDPAddr != "" {
		udp, err := egress.NewUDPSink(cfg.UDPAddr)
		if err != nil {
			return pipeline.Snapshot{}, err
		}
		defer udp.Close()
		sinks = append(sinks, udp)
	}

	stats := pipeline.NewStats()
	err = pipeline.New(src, sinks, stats).Run()
	if err != nil && !errors.Is(err, ingest.ErrStreamClosed) {
		return stats.Snapshot(), err
	}
	segments, bytes := src.Replayed()
	log.Printf("replayed %d segments (%d bytes) from %s", segments, bytes, cfg.PCAPFile)
	stats.LogStats()
	return stats.Snapshot(), nil
}
