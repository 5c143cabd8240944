// Package sensor simulates the battery sensor board: a voltage model with
// sawtooth cycling, growing noise, aging sag and injected hard faults, and a
// server that streams its readings as ingest packets.
package sensor

import (
	"math/rand"

	"github.com/banshee-data/cellgate/internal/protocol"
)

// Model constants of the simulated cell.
const (
	SawtoothStepMV    = 10
	SawtoothMaxMV     = 4000
	SawtoothResetMV   = 3000
	NoiseGrowthEvery  = 100
	NoiseGrowthStep   = 0.5
	AgingAfterTicks   = 600
	AgingFloorMV      = 200
	FaultAfterTicks   = 300
	FaultChancePct    = 2
	FaultVoltageMV    = 100
	DefaultVoltageMV  = 3300
	DefaultTempC      = 45
	DefaultNoiseAmpMV = 2.0
)

// Config sets the simulator's starting point.
type Config struct {
	VoltageMV      uint16
	TempC          uint8
	NoiseAmplitude float64
	// DisableFaults turns off hard fault injection.
	DisableFaults bool
}

// DefaultConfig returns the cell the sensor board ships with.
func DefaultConfig() Config {
	return Config{
		VoltageMV:      DefaultVoltageMV,
		TempC:          DefaultTempC,
		NoiseAmplitude: DefaultNoiseAmpMV,
	}
}

// State is the simulator's evolving model.
type State struct {
	VoltageMV      uint16
	TempC          uint8
	NoiseAmplitude float64
	Ticks          int64
	Faults         int64
}

// Simulator produces one reading per tick. It is not safe for concurrent use.
type Simulator struct {
	state         State
	rng           *rand.Rand
	disableFaults bool
}

// NewSimulator creates a simulator drawing randomness from rng.
func NewSimulator(cfg Config, rng *rand.Rand) *Simulator {
	if cfg.NoiseAmplitude <= 0 {
		cfg.NoiseAmplitude = DefaultNoiseAmpMV
	}
	return &Simulator{
		state: State{
			VoltageMV:      cfg.VoltageMV,
			TempC:          cfg.TempC,
			NoiseAmplitude: cfg.NoiseAmplitude,
		},
		rng:           rng,
		disableFaults: cfg.DisableFaults,
	}
}

// State returns a copy of the current model state.
func (s *Simulator) State() State { return s.state }

// Next advances the model by one tick and returns the new reading.
func (s *Simulator) Next() protocol.Reading {
	st := &s.state
	st.Ticks++

	v := int(st.VoltageMV) + SawtoothStepMV
	if v > SawtoothMaxMV {
		v = SawtoothResetMV
	}

	if st.Ticks%NoiseGrowthEvery == 0 {
		st.NoiseAmplitude += NoiseGrowthStep
	}
	amp := int(st.NoiseAmplitude)
	if span := int(st.NoiseAmplitude * 2); span > 0 {
		v += s.rng.Intn(span) - amp
	}

	if st.Ticks > AgingAfterTicks && v > AgingFloorMV {
		v--
	}

	if !s.disableFaults && st.Ticks > FaultAfterTicks && s.rng.Intn(100) < FaultChancePct {
		v = FaultVoltageMV
		st.Faults++
	}

	st.VoltageMV = clampMV(v)
	return protocol.Reading{VoltageMV: st.VoltageMV, TempC: st.TempC}
}

func clampMV(v int) uint16 {
	switch {
	case v < 0:
		return 0
	case v > 0xFFFF:
		return 0xFFFF
	}
	return uint16(v)
}
