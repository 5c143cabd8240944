package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		voltage uint16
		temp    uint8
		want    Status
	}{
		{"nominal", 3300, 45, StatusOK},
		{"both boundaries ok", 3100, 60, StatusOK},
		{"one below voltage boundary", 3099, 60, StatusWarnLowVolt},
		{"one above temp boundary", 3100, 61, StatusCritTemp},
		{"low volt", 100, 45, StatusWarnLowVolt},
		{"zero volt", 0, 0, StatusWarnLowVolt},
		{"hot and low", 0, 61, StatusCritTemp},
		{"hot and high", 0xFFFF, 255, StatusCritTemp},
		{"max volt cold", 0xFFFF, 0, StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.voltage, tt.temp))
		})
	}
}

func TestClassify_TemperatureDominatesEveryVoltage(t *testing.T) {
	for v := 0; v <= 0xFFFF; v++ {
		if got := Classify(uint16(v), 61); got != StatusCritTemp {
			t.Fatalf("Classify(%d, 61) = %v, want CRIT_TEMP", v, got)
		}
	}
}

func TestClassify_Stateless(t *testing.T) {
	assert.Equal(t, StatusCritTemp, Classify(3300, 90))
	assert.Equal(t, StatusOK, Classify(3300, 45))
	assert.Equal(t, StatusWarnLowVolt, Classify(3000, 45))
	assert.Equal(t, StatusOK, Classify(3300, 45))
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "OK", StatusOK.String())
	assert.Equal(t, "WARN_LOW_VOLT", StatusWarnLowVolt.String())
	assert.Equal(t, "CRIT_TEMP", StatusCritTemp.String())
	assert.Equal(t, "UNKNOWN(0x07)", Status(7).String())
}
