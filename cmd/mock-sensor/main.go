package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/cellgate/internal/ingest"
	"github.com/banshee-data/cellgate/internal/replay"
	"github.com/banshee-data/cellgate/internal/security"
	"github.com/banshee-data/cellgate/internal/sensor"
	"github.com/banshee-data/cellgate/internal/version"
)

var (
	showVersion = flag.Bool("version", false, "Print version and exit")
	listen      = flag.String("listen", ":4000", "TCP listen address")
	serialPath  = flag.String("serial", "", "Write to this serial device instead of serving TCP")
	baudRate    = flag.Int("baud", ingest.DefaultBaudRate, "Serial baud rate")
	interval    = flag.Duration("interval", sensor.DefaultInterval, "Sampling period")
	startMV     = flag.Uint("voltage", sensor.DefaultVoltageMV, "Starting voltage in mV")
	tempC       = flag.Uint("temp", sensor.DefaultTempC, "Temperature in C")
	noFaults    = flag.Bool("no-faults", false, "Disable hard fault injection")
	garbageRate = flag.Float64("garbage", 0, "Probability of a stray byte before each packet")
	seed        = flag.Int64("seed", 0, "Random seed (0 uses the clock)")
	capturePath = flag.String("capture", "", "Also record the stream to this pcap file")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if *startMV > 0xFFFF || *tempC > 0xFF {
		log.Fatal("voltage must fit in 16 bits and temperature in 8 bits")
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	cfg := sensor.DefaultConfig()
	cfg.VoltageMV = uint16(*startMV)
	cfg.TempC = uint8(*tempC)
	cfg.DisableFaults = *noFaults

	srv := &sensor.Server{
		Sim:         sensor.NewSimulator(cfg, rand.New(rand.NewSource(*seed))),
		Interval:    *interval,
		GarbageRate: *garbageRate,
		Rand:        rand.New(rand.NewSource(*seed + 1)),
	}

	if *capturePath != "" {
		if err := security.ValidateOutputPath(*capturePath); err != nil {
			log.Fatalf("invalid capture path: %v", err)
		}
		f, err := os.Create(*capturePath)
		if err != nil {
			log.Fatalf("failed to create capture: %v", err)
		}
		defer f.Close()
		w, err := replay.NewCaptureWriter(f, replay.DefaultPort, 51000)
		if err != nil {
			log.Fatalf("failed to start capture: %v", err)
		}
		srv.Capture = w
		log.Printf("[sensor] recording stream to %s", *capturePath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	if *serialPath != "" {
		err = streamSerial(ctx, srv, *serialPath, ingest.PortOptions{BaudRate: *baudRate})
	} else {
		log.Printf("[sensor] mock battery sensor on %s (seed %d)", *listen, *seed)
		err = srv.ListenAndServe(ctx, *listen)
	}
	if err != nil && ctx.Err() == nil {
		log.Fatalf("[sensor] %v", err)
	}
	log.Printf("[sensor] stopped after %d packets", srv.Seq())
}

func streamSerial(ctx context.Context, srv *sensor.Server, path string, opts ingest.PortOptions) error {
	port, err := ingest.OpenSerialPort(path, opts)
	if err != nil {
		return err
	}
	defer port.Close()
	log.Printf("[sensor] mock battery sensor on serial://%s", path)
	return srv.Stream(ctx, port)
}
