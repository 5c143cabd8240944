package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/cellgate/internal/config"
	"github.com/banshee-data/cellgate/internal/db"
	"github.com/banshee-data/cellgate/internal/monitor"
	"github.com/banshee-data/cellgate/internal/security"
	"github.com/banshee-data/cellgate/internal/timeutil"
	"github.com/banshee-data/cellgate/internal/version"
)

var (
	showVersion = flag.Bool("version", false, "Print version and exit")
	configPath  = flag.String("config", "", "Path to a gateway JSON config; its monitor section is used")
	listen      = flag.String("listen", "", "UDP listen address (overrides config)")
	dbPath      = flag.String("db", "", "Store samples in this sqlite database")
	adminListen = flag.String("admin", "", "Admin HTTP listen address")
	plotPath    = flag.String("plot", "", "Write a voltage plot here on exit (overrides config)")
	verbose     = flag.Bool("v", false, "Log every live sample, not only alerts")
	duration    = flag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	mc, err := loadMonitorConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	addr := mc.GetListenAddr()
	if *listen != "" {
		addr = *listen
	}
	plot := mc.GetPlotPath()
	if *plotPath != "" {
		plot = *plotPath
	}
	if plot != "" {
		if err := security.ValidateOutputPath(plot); err != nil {
			log.Fatalf("invalid plot path: %v", err)
		}
	}

	mon := monitor.New(monitorSettings(mc, *verbose))

	if *dbPath != "" {
		store, err := db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer store.Close()
		run, err := store.StartRun("monitor", "udp://"+addr, time.Now())
		if err != nil {
			log.Fatalf("failed to start run: %v", err)
		}
		defer func() {
			if err := store.EndRun(run.ID, time.Now()); err != nil {
				log.Printf("failed to end run: %v", err)
			}
		}()
		mon.SetStore(store, run.ID)
		log.Printf("[monitor] recording run %s to %s", run.ID, *dbPath)
	}

	sock, err := monitor.ListenUDP(addr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}
	listener := monitor.NewListener(sock, timeutil.RealClock{}, mon.Handle)

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	ctx, stop := withDuration(sigCtx, *duration)
	defer stop()
	if *duration > 0 {
		log.Printf("[monitor] collecting for %v", *duration)
	}

	var wg sync.WaitGroup
	if *adminListen != "" {
		mux := http.NewServeMux()
		mon.AttachAdminRoutes(mux, listener)
		server := &http.Server{Addr: *adminListen, Handler: mux}
		wg.Add(1)
		go func() {
			defer wg.Done()
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Printf("failed to start admin server: %v", err)
				}
			}()
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	log.Printf("[monitor] training on the first %d samples", mc.GetTrainingSamples())
	if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("[monitor] listener stopped: %v", err)
	}
	stop()
	wg.Wait()

	st := listener.Stats()
	log.Printf("[monitor] %d datagrams (%d malformed), %d alerts", st.Received, st.Malformed, mon.Alerts())
	if plot != "" {
		if err := monitor.SavePlot(mon.Recent(0), plot); err != nil {
			log.Printf("[monitor] no plot written: %v", err)
		} else {
			log.Printf("[monitor] plot saved to %s", plot)
		}
	}
}

// withDuration bounds ctx by d when d is positive.
func withDuration(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func loadMonitorConfig(path string) (*config.MonitorConfig, error) {
	if path == "" {
		return config.EmptyGatewayConfig().GetMonitor(), nil
	}
	cfg, err := config.LoadGatewayConfig(path)
	if err != nil {
		return nil, err
	}
	return cfg.GetMonitor(), nil
}

func monitorSettings(mc *config.MonitorConfig, verbose bool) monitor.Config {
	return monitor.Config{
		NoiseWindow:       mc.GetNoiseWindow(),
		TrainingSamples:   mc.GetTrainingSamples(),
		DebounceWindow:    mc.GetDebounceWindow(),
		DebounceThreshold: mc.GetDebounceThreshold(),
		ZThreshold:        mc.GetZThreshold(),
		Verbose:           verbose,
	}
}
