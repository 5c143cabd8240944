package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cellgate/internal/ingest"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestEmptyConfig_Defaults(t *testing.T) {
	cfg := EmptyGatewayConfig()

	assert.Equal(t, SourceTCP, cfg.GetSource())
	assert.Equal(t, "127.0.0.1:4000", cfg.GetTCPAddr())
	assert.Equal(t, SinkUDP, cfg.GetSink())
	assert.Equal(t, "127.0.0.1:5000", cfg.GetUDPAddr())
	assert.Equal(t, "vcan0", cfg.GetCANInterface())
	assert.Equal(t, 3*time.Second, cfg.GetDialTimeout())
	assert.Equal(t, ingest.DefaultRetryPolicy(), cfg.GetRetryPolicy())
	assert.False(t, cfg.GetReconnect())
	assert.Empty(t, cfg.GetDBPath())
	assert.Empty(t, cfg.GetAdminListen())
	assert.Equal(t, 30*time.Second, cfg.GetStatsInterval())
	assert.Equal(t, ingest.PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}, cfg.GetSerialOptions())

	m := cfg.GetMonitor()
	assert.Equal(t, "127.0.0.1:5000", m.GetListenAddr())
	assert.Equal(t, 20, m.GetNoiseWindow())
	assert.Equal(t, 200, m.GetTrainingSamples())
	assert.Equal(t, 10, m.GetDebounceWindow())
	assert.Equal(t, 3, m.GetDebounceThreshold())
	assert.Equal(t, 4.0, m.GetZThreshold())
	assert.Empty(t, m.GetPlotPath())
}

func TestDefaultsFileMatchesGetters(t *testing.T) {
	file := MustLoadDefaultConfig()
	empty := EmptyGatewayConfig()

	if diff := cmp.Diff(empty.GetRetryPolicy(), file.GetRetryPolicy()); diff != "" {
		t.Errorf("retry policy mismatch (-getter +file):\n%s", diff)
	}
	assert.Equal(t, empty.GetSource(), file.GetSource())
	assert.Equal(t, empty.GetSink(), file.GetSink())
	assert.Equal(t, empty.GetTCPAddr(), file.GetTCPAddr())
	assert.Equal(t, empty.GetUDPAddr(), file.GetUDPAddr())
	assert.Equal(t, empty.GetSerialOptions(), file.GetSerialOptions())
	assert.Equal(t, empty.GetStatsInterval(), file.GetStatsInterval())
	assert.Equal(t, empty.GetMonitor().GetTrainingSamples(), file.GetMonitor().GetTrainingSamples())
	assert.Equal(t, empty.GetMonitor().GetZThreshold(), file.GetMonitor().GetZThreshold())
}

func TestLoadGatewayConfig_Partial(t *testing.T) {
	path := writeConfig(t, "gw.json", `{
  "source": "serial",
  "serial_path": "/dev/ttyAMA0",
  "serial": {"baud_rate": 57600, "parity": "even"},
  "sink": "can",
  "retry_initial_delay": "500ms",
  "retry_multiplier": 2,
  "retry_max_delay": "10s",
  "retry_max_attempts": 5,
  "reconnect": true,
  "monitor": {"training_samples": 50}
}`)
	cfg, err := LoadGatewayConfig(path)
	require.NoError(t, err)

	assert.Equal(t, SourceSerial, cfg.GetSource())
	assert.Equal(t, "/dev/ttyAMA0", cfg.GetSerialPath())
	assert.Equal(t, ingest.PortOptions{BaudRate: 57600, DataBits: 8, StopBits: 1, Parity: "E"}, cfg.GetSerialOptions())
	assert.Equal(t, SinkCAN, cfg.GetSink())
	assert.True(t, cfg.GetReconnect())
	assert.Equal(t, ingest.RetryPolicy{
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     10 * time.Second,
		MaxAttempts:  5,
	}, cfg.GetRetryPolicy())
	assert.Equal(t, 50, cfg.GetMonitor().GetTrainingSamples())
	assert.Equal(t, 10, cfg.GetMonitor().GetDebounceWindow())
}

func TestLoadGatewayConfig_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"extension", "gw.yaml", `{}`, ".json extension"},
		{"syntax", "gw.json", `{"source":`, "failed to parse"},
		{"source", "gw.json", `{"source": "bluetooth"}`, "source must be"},
		{"sink", "gw.json", `{"sink": "mqtt"}`, "sink must be"},
		{"serial", "gw.json", `{"serial": {"baud_rate": 1234}}`, "invalid serial options"},
		{"duration", "gw.json", `{"retry_max_delay": "soon"}`, "invalid retry_max_delay"},
		{"zero stats interval", "gw.json", `{"stats_interval": "0s"}`, "stats_interval must be positive"},
		{"negative stats interval", "gw.json", `{"stats_interval": "-5s"}`, "stats_interval must be positive"},
		{"zero dial timeout", "gw.json", `{"dial_timeout": "0s"}`, "dial_timeout must be positive"},
		{"negative retry delay", "gw.json", `{"retry_initial_delay": "-1s"}`, "retry_initial_delay must be positive"},
		{"zero retry max delay", "gw.json", `{"retry_max_delay": "0"}`, "retry_max_delay must be positive"},
		{"multiplier", "gw.json", `{"retry_multiplier": 0.5}`, "retry_multiplier"},
		{"attempts", "gw.json", `{"retry_max_attempts": -1}`, "retry_max_attempts"},
		{"monitor window", "gw.json", `{"monitor": {"noise_window": 0}}`, "noise_window must be positive"},
		{"monitor debounce", "gw.json", `{"monitor": {"debounce_window": 2, "debounce_threshold": 3}}`, "exceeds debounce_window"},
		{"monitor z", "gw.json", `{"monitor": {"z_threshold": 0}}`, "z_threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadGatewayConfig(writeConfig(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadGatewayConfig_TooLarge(t *testing.T) {
	body := `{"tcp_addr": "` + strings.Repeat("x", 1024*1024) + `"}`
	_, err := LoadGatewayConfig(writeConfig(t, "big.json", body))
	assert.ErrorContains(t, err, "too large")
}

func TestLoadGatewayConfig_Missing(t *testing.T) {
	_, err := LoadGatewayConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorContains(t, err, "failed to stat")
}

func TestGetters_BadDurationFallsBack(t *testing.T) {
	cfg := &GatewayConfig{StatsInterval: ptrString("bogus"), DialTimeout: ptrString("")}
	assert.Equal(t, 30*time.Second, cfg.GetStatsInterval())
	assert.Equal(t, 3*time.Second, cfg.GetDialTimeout())

	cfg = &GatewayConfig{StatsInterval: ptrString("0s"), RetryMaxDelay: ptrString("-1s")}
	assert.Equal(t, 30*time.Second, cfg.GetStatsInterval())
	assert.Equal(t, 2*time.Second, cfg.GetRetryPolicy().MaxDelay)
}
