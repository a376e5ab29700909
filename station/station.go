// Package station samples the barometer, the auxiliary thermometer and the
// clock together and derives the weather figures shown to the user.
package station

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/hpa/environment"
	"github.com/mklimuk/hpa/weather"
)

type Clock interface {
	Now(ctx context.Context) (time.Time, error)
}

// starter is a clock whose oscillator has to be started before it counts.
type starter interface {
	Init(ctx context.Context) error
}

type Report struct {
	Time           time.Time           `yaml:"time"`
	Reading        environment.Reading `yaml:"reading"`
	AuxTemperature *float32            `yaml:"aux_temperature,omitempty"`
	Reference      float64             `yaml:"reference"`
	Altitude       float64             `yaml:"altitude"`
	Forecast       weather.Forecast    `yaml:"forecast"`
	Trend          weather.Trend       `yaml:"trend"`
	LowPressure    bool                `yaml:"low_pressure"`
}

type Station struct {
	mx          sync.Mutex
	pressure    environment.PressureSensor
	aux         environment.TemperatureSensor
	clock       Clock
	metrics     *Metrics
	now         func() time.Time
	reference   float64
	lowPressure float64
	previous    float64
}

type Opt func(*Station)

func WithAux(aux environment.TemperatureSensor) Opt {
	return func(s *Station) {
		s.aux = aux
	}
}

func WithClock(c Clock) Opt {
	return func(s *Station) {
		s.clock = c
	}
}

// WithReference fixes the altitude reference pressure. Without it the first
// valid reading becomes the reference.
func WithReference(pressure float64) Opt {
	return func(s *Station) {
		s.reference = pressure
	}
}

func WithLowPressure(threshold float64) Opt {
	return func(s *Station) {
		s.lowPressure = threshold
	}
}

func WithMetrics(m *Metrics) Opt {
	return func(s *Station) {
		s.metrics = m
	}
}

func WithSystemClock(now func() time.Time) Opt {
	return func(s *Station) {
		s.now = now
	}
}

func New(pressure environment.PressureSensor, opts ...Opt) *Station {
	s := &Station{
		pressure:    pressure,
		now:         time.Now,
		lowPressure: weather.DefaultLowPressure,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init starts the clock when it needs starting. A clock that cannot be
// started is logged and counted; Poll then keeps falling back to system time
// whenever the clock cannot be read.
func (s *Station) Init(ctx context.Context) {
	s.mx.Lock()
	defer s.mx.Unlock()
	c, ok := s.clock.(starter)
	if !ok {
		return
	}
	err := c.Init(ctx)
	if err != nil {
		slog.Warn("rtc start failed", "error", err)
		s.failed("clock")
	}
}

// Poll takes one reading from every device. Auxiliary and clock failures
// are logged and skipped; a barometer failure is returned with whatever
// the sensor did report.
func (s *Station) Poll(ctx context.Context) (Report, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	report := Report{Time: s.timestamp(ctx)}
	if s.aux != nil {
		t, err := s.aux.GetTemperature(ctx)
		if err != nil {
			slog.Warn("aux temperature read failed", "error", err)
			s.failed("aux")
		} else {
			report.AuxTemperature = &t
		}
	}
	reading, err := s.pressure.Sample(ctx)
	report.Reading = reading
	if err != nil {
		s.failed("pressure")
		return report, fmt.Errorf("pressure sample failed: %w", err)
	}
	p := float64(reading.Pressure)
	if s.reference == 0 && p > 0 {
		s.reference = p
		slog.Info("reference pressure set from first reading", "reference", p)
	}
	report.Reference = s.reference
	report.Altitude = weather.Altitude(p, s.reference)
	report.Forecast = weather.Classify(p)
	report.Trend = weather.TrendOf(s.previous, p)
	report.LowPressure = weather.LowPressure(p, s.lowPressure)
	s.previous = p
	if s.metrics != nil {
		s.metrics.observe(report)
	}
	return report, nil
}

func (s *Station) timestamp(ctx context.Context) time.Time {
	if s.clock == nil {
		return s.now()
	}
	t, err := s.clock.Now(ctx)
	if err != nil {
		slog.Warn("rtc read failed, using system time", "error", err)
		s.failed("clock")
		return s.now()
	}
	return t
}

func (s *Station) failed(device string) {
	if s.metrics != nil {
		s.metrics.failed(device)
	}
}

// Run polls immediately and then every interval until ctx is done, handing
// each result to fn.
func (s *Station) Run(ctx context.Context, interval time.Duration, fn func(Report, error)) error {
	if interval <= 0 {
		return fmt.Errorf("invalid poll interval %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		fn(s.Poll(ctx))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
