package monitor

import "math"

// DefaultZThreshold is the z-score beyond which a feature is an outlier.
const DefaultZThreshold = 4.0

// Detector flags samples that fall outside a learned Baseline.
type Detector struct {
	Baseline Baseline
	Z        float64
}

func NewDetector(b Baseline, z float64) *Detector {
	if z <= 0 {
		z = DefaultZThreshold
	}
	return &Detector{Baseline: b, Z: z}
}

// Score returns the largest standardised deviation of f from the baseline
// across delta and noise, and the out-of-range distance for voltage and
// temperature expressed in the same units.
func (d *Detector) Score(f Features) float64 {
	b := d.Baseline
	score := zscore(f.DeltaMV, b.MeanDelta, b.StdDelta)
	// Noise only counts when it grows.
	if f.NoiseStd > b.MeanNoise {
		score = math.Max(score, zscore(f.NoiseStd, b.MeanNoise, b.StdNoise))
	}
	if f.VoltageMV < b.MinVoltage {
		score = math.Max(score, zscore(f.VoltageMV, b.MinVoltage, b.StdVoltage))
	}
	if f.VoltageMV > b.MaxVoltage {
		score = math.Max(score, zscore(f.VoltageMV, b.MaxVoltage, b.StdVoltage))
	}
	if f.TempC < b.MinTemp || f.TempC > b.MaxTemp {
		// Temperature outside anything seen in training is always an outlier.
		score = math.Max(score, math.Inf(1))
	}
	return score
}

// IsAnomaly reports whether f scores beyond the threshold.
func (d *Detector) IsAnomaly(f Features) bool {
	return d.Score(f) > d.Z
}

func zscore(x, mean, std float64) float64 {
	diff := math.Abs(x - mean)
	if std <= 0 {
		if diff == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return diff / std
}

// Debouncer turns per-sample anomaly decisions into alerts: an alert holds
// while at least Threshold of the last Window decisions were anomalies.
type Debouncer struct {
	Window    int
	Threshold int
	history   []bool
	count     int
}

func NewDebouncer(window, threshold int) *Debouncer {
	if window < 1 {
		window = 1
	}
	if threshold < 1 {
		threshold = 1
	}
	return &Debouncer{Window: window, Threshold: threshold, history: make([]bool, 0, window)}
}

// Push records one decision and reports whether the alert condition holds.
func (d *Debouncer) Push(anomaly bool) bool {
	if len(d.history) == d.Window {
		if d.history[0] {
			d.count--
		}
		copy(d.history, d.history[1:])
		d.history = d.history[:d.Window-1]
	}
	d.history = append(d.history, anomaly)
	if anomaly {
		d.count++
	}
	return d.count >= d.Threshold
}

// Count returns the anomalies currently in the window.
func (d *Debouncer) Count() int { return d.count }
