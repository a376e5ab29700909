package console

import (
	"github.com/fatih/color"

	"github.com/mklimuk/hpa/weather"
)

// Available ANSI colors
var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	Cyan   = color.New(color.FgCyan).SprintFunc()
	White  = color.New(color.FgHiWhite).SprintFunc()
	Bold   = color.New(color.Bold).SprintFunc()
)

// Forecast renders a forecast with its pictogram in a matching color.
func Forecast(f weather.Forecast) string {
	switch f {
	case weather.Storm:
		return PictoStorm + " " + Red(f)
	case weather.Rain:
		return PictoRain + " " + Yellow(f)
	case weather.Cloudy:
		return PictoCloud + " " + White(f)
	default:
		return PictoSun + " " + Green(f)
	}
}

func Trend(t weather.Trend) string {
	switch t {
	case weather.Rising:
		return Green("↑ " + t.String())
	case weather.Falling:
		return Yellow("↓ " + t.String())
	default:
		return White("→ " + t.String())
	}
}
