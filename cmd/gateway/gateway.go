package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/banshee-data/cellgate/internal/config"
	"github.com/banshee-data/cellgate/internal/egress"
	"github.com/banshee-data/cellgate/internal/ingest"
	"github.com/banshee-data/cellgate/internal/monitoring"
	"github.com/banshee-data/cellgate/internal/pipeline"
	"github.com/banshee-data/cellgate/internal/timeutil"
)

// loadConfig reads path, or the repository defaults file when it exists,
// or falls back to built-in defaults.
func loadConfig(path string) (*config.GatewayConfig, error) {
	if path != "" {
		return config.LoadGatewayConfig(path)
	}
	if _, err := os.Stat(config.DefaultConfigPath); err == nil {
		return config.LoadGatewayConfig(config.DefaultConfigPath)
	}
	return config.EmptyGatewayConfig(), nil
}

// applyFlags copies explicitly set flags over cfg.
func applyFlags(cfg *config.GatewayConfig, set map[string]bool) error {
	str := func(name string, v *string, dst **string) {
		if set[name] {
			s := *v
			*dst = &s
		}
	}
	str("source", source, &cfg.Source)
	str("tcp", tcpAddr, &cfg.TCPAddr)
	str("serial", serialPath, &cfg.SerialPath)
	str("sink", sink, &cfg.Sink)
	str("udp", udpAddr, &cfg.UDPAddr)
	str("can", canIface, &cfg.CANInterface)
	str("db", dbPath, &cfg.DBPath)
	str("admin", adminListen, &cfg.AdminListen)
	if set["baud"] {
		opts := cfg.GetSerialOptions()
		opts.BaudRate = *baudRate
		cfg.Serial = &opts
	}
	if set["reconnect"] {
		v := *reconnect
		cfg.Reconnect = &v
	}
	if set["stats-interval"] {
		v := statsInterval.String()
		cfg.StatsInterval = &v
	}
	return cfg.Validate()
}

func dialer(cfg *config.GatewayConfig) ingest.DialFunc {
	if cfg.GetSource() == config.SourceSerial {
		return ingest.DialSerial(cfg.GetSerialPath(), cfg.GetSerialOptions())
	}
	return ingest.DialTCP(cfg.GetTCPAddr(), cfg.GetDialTimeout())
}

func openSink(cfg *config.GatewayConfig) (egress.Sink, func(), error) {
	switch cfg.GetSink() {
	case config.SinkCAN:
		s, err := egress.NewCANSink(cfg.GetCANInterface())
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		s, err := egress.NewUDPSink(cfg.GetUDPAddr())
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
}

func describeSource(cfg *config.GatewayConfig) string {
	if cfg.GetSource() == config.SourceSerial {
		return "serial://" + cfg.GetSerialPath()
	}
	return "tcp://" + cfg.GetTCPAddr()
}

func describeSink(cfg *config.GatewayConfig) string {
	if cfg.GetSink() == config.SinkCAN {
		return "can://" + cfg.GetCANInterface()
	}
	return "udp://" + cfg.GetUDPAddr()
}

// gateway drives connect, relay and reconnect around the core pipeline.
type gateway struct {
	dial      ingest.DialFunc
	policy    ingest.RetryPolicy
	reconnect bool
	sink      egress.Sink
	stats     *pipeline.Stats
	clock     timeutil.Clock
}

// run returns nil on shutdown or when the sensor closes the stream, and the
// error otherwise. With reconnect set, sessions that end before relaying a
// reading count as failed attempts and are retried with the policy's backoff.
func (g *gateway) run(ctx context.Context) error {
	logf := monitoring.Tagged("gateway")
	failures := 0
	for {
		src, err := ingest.Connect(ctx, g.dial, g.policy, g.clock)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("connect failed: %w", err)
		}
		logf("connected to %s", sourceName(src))

		before := g.stats.Snapshot().Readings
		err = g.session(ctx, src)
		if ctx.Err() != nil {
			return nil
		}
		logf("stream ended: %v", err)
		if !g.reconnect {
			if errors.Is(err, ingest.ErrStreamClosed) {
				return nil
			}
			return err
		}

		if g.stats.Snapshot().Readings > before {
			failures = 0
			continue
		}
		failures++
		delay := g.policy.Delay(failures, nil)
		logf("%d sessions in a row ended without readings, reconnecting in %v", failures, delay)
		if err := g.clock.Sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

func sourceName(src ingest.Source) string {
	if s, ok := src.(fmt.Stringer); ok {
		return s.String()
	}
	return "sensor"
}

// session relays src until it fails. Cancelling ctx closes src, which is
// how the otherwise uncancellable core is stopped.
func (g *gateway) session(ctx context.Context, src ingest.Source) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			src.Close()
		case <-done:
		}
	}()
	defer src.Close()

	return pipeline.New(src, g.sink, g.stats).Run()
}
