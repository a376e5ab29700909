package environment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mklimuk/hpa"
)

var ErrInvalidCalibration = errors.New("invalid calibration")
var ErrZeroDenominator = errors.New("zero compensation denominator")
var ErrUnknownModel = errors.New("unknown sensor model")

// Reading is one compensated sample.
type Reading struct {
	Temperature float32 `yaml:"temperature"`
	Pressure    float32 `yaml:"pressure"`
}

// PressureSensor is implemented by both barometric drivers. Init must be
// called once before Sample. Sample always returns a reading; on failure it
// is zero (or carries only the temperature) and the error says why.
type PressureSensor interface {
	Init(ctx context.Context) error
	Sample(ctx context.Context) (Reading, error)
}

// TemperatureSensor is an auxiliary thermometer.
type TemperatureSensor interface {
	GetTemperature(ctx context.Context) (float32, error)
}

type Model string

const (
	ModelBMP180 Model = "bmp180"
	ModelBMP280 Model = "bmp280"
)

// NewPressureSensor builds the driver for model. A zero address selects the model default.
func NewPressureSensor(model Model, bus hpa.RegisterBus, address byte) (PressureSensor, error) {
	switch model {
	case ModelBMP180:
		var opts []BMP180Opt
		if address != 0 {
			opts = append(opts, WithBMP180Address(address))
		}
		return NewBMP180(bus, opts...), nil
	case ModelBMP280:
		var opts []BMP280Opt
		if address != 0 {
			opts = append(opts, WithBMP280Address(address))
		}
		return NewBMP280(bus, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
}

func validCalibration(first uint16) bool {
	return first != 0x0000 && first != 0xFFFF
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
