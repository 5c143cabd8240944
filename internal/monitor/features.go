// Package monitor watches the gateway's egress frames for abnormal battery
// behaviour. It learns a baseline from an initial run of samples, then
// flags outliers and raises a debounced alert with a plain-language reason
// and a suggested action.
package monitor

import (
	"gonum.org/v1/gonum/stat"
)

// Features are the per-sample inputs to the detector.
type Features struct {
	VoltageMV float64 `json:"voltage_mv"`
	DeltaMV   float64 `json:"delta_mv"`
	NoiseStd  float64 `json:"noise_std"`
	TempC     float64 `json:"temp_c"`
}

// FeatureTracker derives Features from a stream of readings. The first
// reading only primes the tracker since it has no predecessor.
type FeatureTracker struct {
	window   int
	primed   bool
	prev     float64
	voltages []float64
}

func NewFeatureTracker(window int) *FeatureTracker {
	if window < 2 {
		window = 2
	}
	return &FeatureTracker{window: window, voltages: make([]float64, 0, window)}
}

// Observe feeds one reading. It reports false for the priming reading.
func (t *FeatureTracker) Observe(voltageMV uint16, tempC uint8) (Features, bool) {
	v := float64(voltageMV)
	if !t.primed {
		t.primed = true
		t.prev = v
		return Features{}, false
	}

	delta := v - t.prev
	t.prev = v

	if len(t.voltages) == t.window {
		copy(t.voltages, t.voltages[1:])
		t.voltages = t.voltages[:t.window-1]
	}
	t.voltages = append(t.voltages, v)

	var noise float64
	if len(t.voltages) > 1 {
		_, noise = stat.PopMeanStdDev(t.voltages, nil)
	}

	return Features{
		VoltageMV: v,
		DeltaMV:   delta,
		NoiseStd:  noise,
		TempC:     float64(tempC),
	}, true
}

// Reset forgets all history, as after a reconnect.
func (t *FeatureTracker) Reset() {
	t.primed = false
	t.prev = 0
	t.voltages = t.voltages[:0]
}
