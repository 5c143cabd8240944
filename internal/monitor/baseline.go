package monitor

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var ErrNotEnoughSamples = errors.New("monitor: at least two training samples are required")

// Baseline summarises normal behaviour learned during training.
type Baseline struct {
	Samples     int     `json:"samples"`
	MeanVoltage float64 `json:"mean_voltage"`
	StdVoltage  float64 `json:"std_voltage"`
	MinVoltage  float64 `json:"min_voltage"`
	MaxVoltage  float64 `json:"max_voltage"`
	MeanDelta   float64 `json:"mean_delta"`
	StdDelta    float64 `json:"std_delta"`
	MeanNoise   float64 `json:"mean_noise"`
	StdNoise    float64 `json:"std_noise"`
	MinTemp     float64 `json:"min_temp"`
	MaxTemp     float64 `json:"max_temp"`
}

// Train computes a Baseline from training samples. Standard deviations are
// the unbiased sample estimates.
func Train(samples []Features) (Baseline, error) {
	if len(samples) < 2 {
		return Baseline{}, ErrNotEnoughSamples
	}
	n := len(samples)
	volts := make([]float64, n)
	deltas := make([]float64, n)
	noise := make([]float64, n)
	temps := make([]float64, n)
	for i, s := range samples {
		volts[i] = s.VoltageMV
		deltas[i] = s.DeltaMV
		noise[i] = s.NoiseStd
		temps[i] = s.TempC
	}

	b := Baseline{Samples: n}
	b.MeanVoltage, b.StdVoltage = stat.MeanStdDev(volts, nil)
	b.MeanDelta, b.StdDelta = stat.MeanStdDev(deltas, nil)
	b.MeanNoise, b.StdNoise = stat.MeanStdDev(noise, nil)
	b.MinVoltage, b.MaxVoltage = floats.Min(volts), floats.Max(volts)
	b.MinTemp, b.MaxTemp = floats.Min(temps), floats.Max(temps)
	return b, nil
}

func (b Baseline) String() string {
	return fmt.Sprintf("voltage %.0f-%.0fmV, delta %.1f±%.1fmV, noise %.2f±%.2f, temp %.0f-%.0fC",
		b.MinVoltage, b.MaxVoltage, b.MeanDelta, b.StdDelta, b.MeanNoise, b.StdNoise, b.MinTemp, b.MaxTemp)
}
