// Package safety holds the deterministic rules that tag every relayed
// reading. The rules are fixed; anomaly scoring in the monitor may advise but
// never overrides them.
package safety

import "fmt"

// Status is the tag carried in byte 3 of the egress payload.
type Status uint8

const (
	StatusOK          Status = 0x00
	StatusWarnLowVolt Status = 0x01
	StatusCritTemp    Status = 0x02
)

const (
	// CritTempAboveC is the highest temperature that is not critical.
	CritTempAboveC = 60

	// LowVoltBelowMV is the lowest voltage that does not raise a warning.
	LowVoltBelowMV = 3100
)

// Classify applies the rules in priority order. Temperature is checked first
// so a thermal fault is reported even when the voltage is also low.
func Classify(voltageMV uint16, tempC uint8) Status {
	if tempC > CritTempAboveC {
		return StatusCritTemp
	}
	if voltageMV < LowVoltBelowMV {
		return StatusWarnLowVolt
	}
	return StatusOK
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarnLowVolt:
		return "WARN_LOW_VOLT"
	case StatusCritTemp:
		return "CRIT_TEMP"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(s))
	}
}
