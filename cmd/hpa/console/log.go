package console

import (
	"fmt"
	"io"
	"os"
)

// Pictograms prefixing station output lines.
const (
	PictoThermometer = "🌡"
	PictoGauge       = "⏲"
	PictoMountain    = "⛰"
	PictoCalendar    = "📅"
	PictoClock       = "🕰"
	PictoPin         = "📌"
	PictoStop        = "🚫"
	PictoAlert       = "⚠"
	PictoStorm       = "⛈"
	PictoRain        = "🌧"
	PictoCloud       = "☁"
	PictoSun         = "☀"
)

var (
	writer    io.Writer = os.Stdout
	errWriter io.Writer = os.Stderr
)

func SetOutput(w, errw io.Writer) {
	writer = w
	errWriter = errw
}

func Errorf(msg string, args ...any) {
	_, _ = fmt.Fprintf(errWriter, "%s: %s\n", Red("ERROR"), fmt.Sprintf(msg, args...))
}

func Warnf(msg string, args ...any) {
	_, _ = fmt.Fprintf(errWriter, "%s: %s\n", Yellow("WARN"), fmt.Sprintf(msg, args...))
}

// Alertf reports a station alarm, such as pressure below the configured threshold.
func Alertf(msg string, args ...any) {
	_, _ = fmt.Fprintf(errWriter, "%s %s\n", PictoAlert, Bold(Red(fmt.Sprintf(msg, args...))))
}

func Infof(msg string, args ...any) {
	_, _ = fmt.Fprintf(writer, "%s %s\n", White("..."), fmt.Sprintf(msg, args...))
}

func PInfof(picto, msg string, args ...any) {
	_, _ = fmt.Fprintf(writer, "%s %s\n", picto, fmt.Sprintf(msg, args...))
}

// Measure prints one measured quantity: the value highlighted, then its unit
// and an optional note.
func Measure(picto string, value any, unit string, note ...string) {
	line := fmt.Sprintf("%s %s %s", picto, White(value), unit)
	for _, n := range note {
		line += " " + n
	}
	_, _ = fmt.Fprintln(writer, line)
}

func Printf(msg string, args ...any) {
	_, _ = fmt.Fprintf(writer, msg, args...)
}
