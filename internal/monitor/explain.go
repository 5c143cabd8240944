package monitor

import (
	"math"
	"strings"
)

// Alert reasons.
const (
	ReasonSuddenChange = "Sudden voltage change"
	ReasonNoiseGrowth  = "Noise growth detected"
	ReasonLowVoltage   = "Voltage below learned normal range"
	ReasonTemperature  = "Temperature out of normal range"
	ReasonOutlier      = "Behavioral outlier"
)

// Suggested actions. The monitor only suggests; it never acts.
const (
	ActionDerate  = "Recommend derating (reduce power)"
	ActionSafe    = "Recommend safe mode / stop high load"
	ActionCooling = "Check cooling / thermal system"
	ActionMonitor = "Monitor only - no clear action yet"
)

// Explain lists the rules f breaks against b. It never returns an empty
// list: a sample that breaks none is a behavioural outlier.
func Explain(f Features, b Baseline) []string {
	var reasons []string
	if math.Abs(f.DeltaMV) > 3*b.StdDelta {
		reasons = append(reasons, ReasonSuddenChange)
	}
	if f.NoiseStd > b.MeanNoise+3*b.StdNoise {
		reasons = append(reasons, ReasonNoiseGrowth)
	}
	if f.VoltageMV < b.MinVoltage {
		reasons = append(reasons, ReasonLowVoltage)
	}
	if f.TempC < b.MinTemp || f.TempC > b.MaxTemp {
		reasons = append(reasons, ReasonTemperature)
	}
	if len(reasons) == 0 {
		reasons = append(reasons, ReasonOutlier)
	}
	return reasons
}

// Recommend maps reasons to one action, most urgent first.
func Recommend(reasons []string) string {
	joined := strings.Join(reasons, " + ")
	switch {
	case strings.Contains(joined, "Noise"):
		return ActionDerate
	case strings.Contains(joined, "Voltage below"):
		return ActionSafe
	case strings.Contains(joined, "Temperature"):
		return ActionCooling
	default:
		return ActionMonitor
	}
}
