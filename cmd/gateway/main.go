package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/cellgate/internal/db"
	"github.com/banshee-data/cellgate/internal/egress"
	"github.com/banshee-data/cellgate/internal/pipeline"
	"github.com/banshee-data/cellgate/internal/timeutil"
	"github.com/banshee-data/cellgate/internal/version"
)

var (
	showVersion   = flag.Bool("version", false, "Print version and exit")
	configPath    = flag.String("config", "", "Path to a gateway JSON config (defaults built in)")
	source        = flag.String("source", "", "Ingest source: tcp or serial")
	tcpAddr       = flag.String("tcp", "", "Sensor TCP address")
	serialPath    = flag.String("serial", "", "Sensor serial device")
	baudRate      = flag.Int("baud", 0, "Serial baud rate")
	sink          = flag.String("sink", "", "Egress sink: udp or can")
	udpAddr       = flag.String("udp", "", "Monitor UDP address")
	canIface      = flag.String("can", "", "SocketCAN interface")
	dbPath        = flag.String("db", "", "Record frames to this sqlite database")
	adminListen   = flag.String("admin", "", "Admin HTTP listen address (e.g. 127.0.0.1:8080)")
	reconnect     = flag.Bool("reconnect", false, "Reconnect when the sensor stream ends instead of exiting")
	statsInterval = flag.Duration("stats-interval", 0, "Interval between stats log lines")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags]\n       %s [flags] migrate up|down|status|force <version>\n\n", os.Args[0], os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if err := applyFlags(cfg, set); err != nil {
		log.Fatalf("invalid flags: %v", err)
	}

	if flag.Arg(0) == "migrate" {
		if cfg.GetDBPath() == "" {
			log.Fatal("migrate requires -db or db_path in the config")
		}
		if err := db.RunMigrateCommand(flag.Args()[1:], cfg.GetDBPath(), os.Stdout); err != nil {
			log.Fatalf("migrate failed: %v", err)
		}
		return
	}
	if flag.NArg() > 0 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats := pipeline.NewStats()
	tap := egress.NewTap()
	defer tap.Close()

	out, closeSink, err := openSink(cfg)
	if err != nil {
		log.Fatalf("failed to open sink: %v", err)
	}
	defer closeSink()
	sinks := egress.Multi{out, tap}

	var store *db.DB
	var runID string
	if path := cfg.GetDBPath(); path != "" {
		store, err = db.NewDB(path)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer store.Close()

		run, err := store.StartRun("gateway", describeSource(cfg), time.Now())
		if err != nil {
			log.Fatalf("failed to start run: %v", err)
		}
		runID = run.ID
		defer func() {
			if err := store.EndRun(runID, time.Now()); err != nil {
				log.Printf("failed to end run %s: %v", runID, err)
			}
		}()
		sinks = append(sinks, store.NewRecorder(runID, timeutil.RealClock{}))
		log.Printf("[gateway] recording run %s to %s", runID, path)
	}

	var wg sync.WaitGroup

	if addr := cfg.GetAdminListen(); addr != "" {
		mux := http.NewServeMux()
		stats.AttachAdminRoutes(mux)
		tap.AttachAdminRoutes(mux)
		if store != nil {
			if err := store.AttachAdminRoutes(mux); err != nil {
				log.Fatalf("failed to attach db admin routes: %v", err)
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveAdmin(ctx, addr, mux)
		}()
	}

	// periodic stats
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.GetStatsInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stats.LogStats()
			case <-ctx.Done():
				return
			}
		}
	}()

	g := &gateway{
		dial:      dialer(cfg),
		policy:    cfg.GetRetryPolicy(),
		reconnect: cfg.GetReconnect(),
		sink:      sinks,
		stats:     stats,
		clock:     timeutil.RealClock{},
	}
	log.Printf("[gateway] %s: %s -> %s", version.String(), describeSource(cfg), describeSink(cfg))
	runErr := g.run(ctx)

	stop()
	wg.Wait()
	stats.LogStats()
	if runErr != nil {
		log.Fatalf("[gateway] %v", runErr)
	}
	log.Printf("Graceful shutdown complete")
}

func serveAdmin(ctx context.Context, addr string, mux *http.ServeMux) {
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start admin server: %v", err)
		}
	}()
	log.Printf("[gateway] admin routes on http://%s/debug/", addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("admin server shutdown error: %v", err)
		server.Close()
	}
}
