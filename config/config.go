// Package config holds the station configuration loaded from YAML and the
// build metadata injected at link time.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	Version = "latest"
	Commit  = ""
	Date    = ""
)

var ErrInvalid = errors.New("invalid configuration")

const (
	DriverPeriph  = "periph"
	DriverBitBang = "bitbang"
	DriverMCP2221 = "mcp2221"
	DriverGobot   = "gobot"
	DriverD2R2    = "d2r2"
)

const (
	TrimmingBigEndian    = "big"
	TrimmingLittleEndian = "little"
)

const (
	AuxNone = "none"
	AuxLM35 = "lm35"
	AuxTC74 = "tc74"
)

type Config struct {
	Bus     Bus     `yaml:"bus"`
	Sensor  Sensor  `yaml:"sensor"`
	Aux     Aux     `yaml:"aux"`
	Clock   Clock   `yaml:"clock"`
	Station Station `yaml:"station"`
	Metrics Metrics `yaml:"metrics"`
}

type Bus struct {
	Driver string `yaml:"driver"`
	// Device is the periph bus name (e.g. "/dev/i2c-1"); empty picks the first bus.
	Device string `yaml:"device"`
	// Number is the Linux i2c-dev bus number used by the gobot and d2r2 drivers.
	Number    int           `yaml:"number"`
	SDA       string        `yaml:"sda"`
	SCL       string        `yaml:"scl"`
	Frequency int           `yaml:"frequency"`
	Timeout   time.Duration `yaml:"timeout"`
}

type Sensor struct {
	Model   string `yaml:"model"`
	Address byte   `yaml:"address"`
	// Trimming is the bmp280 calibration word order: "big" (high byte first) or "little".
	Trimming string `yaml:"trimming"`
}

type Aux struct {
	Model   string  `yaml:"model"`
	Channel int     `yaml:"channel"`
	Address byte    `yaml:"address"`
	Vref    float32 `yaml:"vref"`
}

type Clock struct {
	Enabled bool `yaml:"enabled"`
	Address byte `yaml:"address"`
}

type Station struct {
	Interval time.Duration `yaml:"interval"`
	// Reference is the sea-level pressure for altitude; 0 takes the first reading.
	Reference   float64 `yaml:"reference"`
	LowPressure float64 `yaml:"low_pressure"`
}

type Metrics struct {
	// Listen is the address of the /metrics endpoint; empty disables it.
	Listen string `yaml:"listen"`
}

func Default() Config {
	return Config{
		Bus: Bus{
			Driver:    DriverPeriph,
			Number:    1,
			SDA:       "GPIO2",
			SCL:       "GPIO3",
			Frequency: 100_000,
			Timeout:   100 * time.Millisecond,
		},
		Sensor: Sensor{Model: "bmp180", Address: 0x77, Trimming: TrimmingBigEndian},
		Aux:    Aux{Model: AuxNone, Channel: 1, Address: 0x4D, Vref: 5.0},
		Clock:  Clock{Enabled: true, Address: 0x68},
		Station: Station{
			Interval:    30 * time.Second,
			LowPressure: 1000,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not open config: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Decode(f)
}

func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	err := dec.Decode(&cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("could not decode config: %w", err)
	}
	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Bus.Driver {
	case DriverPeriph, DriverMCP2221, DriverGobot, DriverD2R2:
	case DriverBitBang:
		if c.Bus.SDA == "" || c.Bus.SCL == "" {
			return fmt.Errorf("%w: bitbang bus needs sda and scl pins", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown bus driver %q", ErrInvalid, c.Bus.Driver)
	}
	if c.Bus.Frequency <= 0 {
		return fmt.Errorf("%w: bus frequency must be positive", ErrInvalid)
	}
	if c.Bus.Timeout <= 0 {
		return fmt.Errorf("%w: bus timeout must be positive", ErrInvalid)
	}
	switch c.Sensor.Model {
	case "bmp180", "bmp280":
	default:
		return fmt.Errorf("%w: unknown sensor model %q", ErrInvalid, c.Sensor.Model)
	}
	switch c.Sensor.Trimming {
	case TrimmingBigEndian, TrimmingLittleEndian:
	default:
		return fmt.Errorf("%w: unknown trimming order %q", ErrInvalid, c.Sensor.Trimming)
	}
	if c.Sensor.Address > 0x7F {
		return fmt.Errorf("%w: sensor address %#x is not 7-bit", ErrInvalid, c.Sensor.Address)
	}
	switch c.Aux.Model {
	case AuxNone, "":
	case AuxLM35:
		if c.Bus.Driver != DriverMCP2221 {
			return fmt.Errorf("%w: lm35 needs the mcp2221 ADC", ErrInvalid)
		}
		if c.Aux.Channel < 1 || c.Aux.Channel > 3 {
			return fmt.Errorf("%w: ADC channel %d out of 1..3", ErrInvalid, c.Aux.Channel)
		}
	case AuxTC74:
	default:
		return fmt.Errorf("%w: unknown aux model %q", ErrInvalid, c.Aux.Model)
	}
	if c.Station.Interval <= 0 {
		return fmt.Errorf("%w: station interval must be positive", ErrInvalid)
	}
	if c.Station.Reference < 0 {
		return fmt.Errorf("%w: negative reference pressure", ErrInvalid)
	}
	return nil
}

// Dump renders the configuration as YAML.
func (c Config) Dump() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	err := enc.Encode(c)
	if err != nil {
		return nil, err
	}
	err = enc.Close()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func BuildInfo() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s %s)", Version, Commit, Date)
}
