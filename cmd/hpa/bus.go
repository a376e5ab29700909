package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/hpa"
	"github.com/mklimuk/hpa/adapter"
	"github.com/mklimuk/hpa/clock"
	"github.com/mklimuk/hpa/config"
	"github.com/mklimuk/hpa/environment"
	"github.com/mklimuk/hpa/i2c"
	"github.com/mklimuk/hpa/snsctx"
	"github.com/mklimuk/hpa/twi"
)

// loadConfig reads the configuration file and applies global flag overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if d := c.String("bus"); d != "" {
		cfg.Bus.Driver = d
	}
	if m := c.String("sensor"); m != "" {
		cfg.Sensor.Model = m
	}
	if a := c.Uint("address"); a != 0 {
		cfg.Sensor.Address = byte(a)
	}
	return cfg, cfg.Validate()
}

func commandContext(c *cli.Context) context.Context {
	return snsctx.SetVerbose(c.Context, c.Bool("verbose"))
}

// device is an opened bus plus the bridge when the bus runs through one.
type device struct {
	bus   hpa.RegisterBus
	mcp   *adapter.MCP2221
	close func() error
}

func (d *device) Close() error {
	if d.close == nil {
		return nil
	}
	return d.close()
}

func openBus(ctx context.Context, cfg config.Bus) (*device, error) {
	slog.Debug("opening bus", "driver", cfg.Driver)
	switch cfg.Driver {
	case config.DriverPeriph:
		bus, err := i2c.NewGenericBus(cfg.Device)
		if err != nil {
			return nil, err
		}
		return &device{bus: bus, close: bus.Close}, nil
	case config.DriverBitBang:
		bb, err := twi.OpenBitBang(cfg.SDA, cfg.SCL, twi.WithFrequency(physic.Frequency(cfg.Frequency)*physic.Hertz))
		if err != nil {
			return nil, err
		}
		return &device{bus: twi.NewBus(bb, twi.WithTimeout(cfg.Timeout))}, nil
	case config.DriverMCP2221:
		mcp := adapter.NewMCP2221(adapter.WithSpeed(cfg.Frequency))
		err := mcp.Init(ctx)
		if err != nil {
			return nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		return &device{bus: mcp, mcp: mcp}, nil
	case config.DriverGobot:
		npi := nanopi.NewNeoAdaptor()
		err := npi.I2cBusAdaptor.Connect()
		if err != nil {
			return nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		bus := i2c.NewGobotBus(npi, cfg.Number)
		return &device{bus: bus, close: func() error {
			_ = bus.Close()
			return npi.I2cBusAdaptor.Finalize()
		}}, nil
	case config.DriverD2R2:
		bus := i2c.NewD2R2Bus(cfg.Number)
		return &device{bus: bus, close: bus.Close}, nil
	default:
		return nil, fmt.Errorf("unknown bus driver %q", cfg.Driver)
	}
}

func newPressureSensor(dev *device, cfg config.Sensor) (environment.PressureSensor, error) {
	if environment.Model(cfg.Model) == environment.ModelBMP280 && cfg.Trimming == config.TrimmingLittleEndian {
		opts := []environment.BMP280Opt{environment.WithBMP280LittleEndianTrimming()}
		if cfg.Address != 0 {
			opts = append(opts, environment.WithBMP280Address(cfg.Address))
		}
		return environment.NewBMP280(dev.bus, opts...), nil
	}
	return environment.NewPressureSensor(environment.Model(cfg.Model), dev.bus, cfg.Address)
}

func openPressureSensor(ctx context.Context, dev *device, cfg config.Sensor) (environment.PressureSensor, error) {
	sensor, err := newPressureSensor(dev, cfg)
	if err != nil {
		return nil, err
	}
	err = sensor.Init(ctx)
	if err != nil {
		return nil, err
	}
	return sensor, nil
}

// openAux returns nil when no auxiliary sensor is configured.
func openAux(ctx context.Context, dev *device, cfg config.Aux) (environment.TemperatureSensor, error) {
	switch cfg.Model {
	case config.AuxLM35:
		if dev.mcp == nil {
			return nil, fmt.Errorf("lm35 needs the mcp2221 ADC")
		}
		err := dev.mcp.EnableADC(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not enable ADC: %w", err)
		}
		return environment.NewLM35(dev.mcp, cfg.Channel, environment.WithVref(cfg.Vref)), nil
	case config.AuxTC74:
		tc74 := environment.NewTC74(dev.bus, environment.WithTC74Address(cfg.Address))
		err := tc74.Wake(ctx)
		if err != nil {
			return nil, err
		}
		return tc74, nil
	default:
		return nil, nil
	}
}

func openClock(dev *device, cfg config.Clock) *clock.DS1307 {
	return clock.NewDS1307(dev.bus, clock.WithAddress(cfg.Address))
}
