// Package weather derives altitude, a coarse forecast and the pressure trend
// from station-level pressure readings in hPa.
package weather

import (
	"math"
)

const StandardPressure = 1013.25

// TrendThreshold is the change in hPa between two readings below which pressure counts as steady.
const TrendThreshold = 0.3

const DefaultLowPressure = 1000.0

// Altitude returns the height in meters above the level where pressure equals reference.
func Altitude(pressure, reference float64) float64 {
	if pressure <= 0 || reference <= 0 {
		return 0
	}
	return 44330 * (1 - math.Pow(pressure/reference, 0.1903))
}

type Forecast int

const (
	Sunny Forecast = iota
	Cloudy
	Rain
	Storm
)

func (f Forecast) String() string {
	switch f {
	case Storm:
		return "storm"
	case Rain:
		return "rain"
	case Cloudy:
		return "cloudy"
	default:
		return "sunny"
	}
}

func (f Forecast) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func Classify(pressure float64) Forecast {
	switch {
	case pressure < 996:
		return Storm
	case pressure < 1004:
		return Rain
	case pressure < 1010:
		return Cloudy
	default:
		return Sunny
	}
}

type Trend int

const (
	Steady Trend = iota
	Rising
	Falling
)

func (t Trend) String() string {
	switch t {
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	default:
		return "steady"
	}
}

func (t Trend) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// TrendOf compares two consecutive readings. A zero previous reading means there is nothing to compare with.
func TrendOf(previous, current float64) Trend {
	if previous == 0 {
		return Steady
	}
	switch {
	case current > previous+TrendThreshold:
		return Rising
	case current < previous-TrendThreshold:
		return Falling
	default:
		return Steady
	}
}

func LowPressure(pressure, threshold float64) bool {
	return pressure > 0 && pressure < threshold
}
