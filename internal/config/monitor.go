package config

import "fmt"

// Validate checks that the monitor values are valid.
func (m *MonitorConfig) Validate() error {
	for name, v := range map[string]*int{
		"noise_window":       m.NoiseWindow,
		"training_samples":   m.TrainingSamples,
		"debounce_window":    m.DebounceWindow,
		"debounce_threshold": m.DebounceThreshold,
	} {
		if v != nil && *v < 1 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}
	if m.DebounceWindow != nil && m.DebounceThreshold != nil && *m.DebounceThreshold > *m.DebounceWindow {
		return fmt.Errorf("debounce_threshold %d exceeds debounce_window %d", *m.DebounceThreshold, *m.DebounceWindow)
	}
	if m.ZThreshold != nil && *m.ZThreshold <= 0 {
		return fmt.Errorf("z_threshold must be positive, got %f", *m.ZThreshold)
	}
	return nil
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// GetListenAddr returns the UDP address the monitor binds.
func (m *MonitorConfig) GetListenAddr() string { return stringOr(m.ListenAddr, "127.0.0.1:5000") }

// GetNoiseWindow returns the rolling window used for the noise feature.
func (m *MonitorConfig) GetNoiseWindow() int { return intOr(m.NoiseWindow, 20) }

// GetTrainingSamples returns the number of samples used to learn the baseline.
func (m *MonitorConfig) GetTrainingSamples() int { return intOr(m.TrainingSamples, 200) }

// GetDebounceWindow returns the number of recent decisions considered.
func (m *MonitorConfig) GetDebounceWindow() int { return intOr(m.DebounceWindow, 10) }

// GetDebounceThreshold returns the anomalies within the window that raise an alert.
func (m *MonitorConfig) GetDebounceThreshold() int { return intOr(m.DebounceThreshold, 3) }

// GetZThreshold returns the z-score above which a feature is an outlier.
func (m *MonitorConfig) GetZThreshold() float64 {
	if m.ZThreshold == nil {
		return 4.0
	}
	return *m.ZThreshold
}

// GetPlotPath returns where to write the end-of-run PNG; empty disables it.
func (m *MonitorConfig) GetPlotPath() string { return stringOr(m.PlotPath, "") }
