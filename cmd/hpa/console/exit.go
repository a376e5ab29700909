package console

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/hpa"
	"github.com/mklimuk/hpa/environment"
)

// Exit codes by failure class.
const (
	ExitGeneric     = 1
	ExitBusTimeout  = 3
	ExitNack        = 4
	ExitCalibration = 5
	ExitBusy        = 6
)

func Exit(code int, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}

// Fail maps err to an exit code and prints it after msg.
func Fail(err error, msg string) cli.ExitCoder {
	return Exit(ExitCode(err), "%s: %s", msg, Red(err))
}

func ExitCode(err error) int {
	switch {
	case errors.Is(err, hpa.ErrBusTimeout):
		return ExitBusTimeout
	case errors.Is(err, hpa.ErrNack):
		return ExitNack
	case errors.Is(err, hpa.ErrBusBusy):
		return ExitBusy
	case errors.Is(err, environment.ErrInvalidCalibration), errors.Is(err, environment.ErrZeroDenominator):
		return ExitCalibration
	default:
		return ExitGeneric
	}
}
