package station

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/hpa"
	"github.com/mklimuk/hpa/clock"
	"github.com/mklimuk/hpa/environment"
	"github.com/mklimuk/hpa/twi"
	"github.com/mklimuk/hpa/twi/twitest"
	"github.com/mklimuk/hpa/weather"
)

type fakeClock struct {
	t   time.Time
	err error
}

func (c fakeClock) Now(ctx context.Context) (time.Time, error) {
	return c.t, c.err
}

var fixed = time.Date(2025, 11, 16, 19, 35, 40, 0, time.UTC)

func TestStation_PollSequence(t *testing.T) {
	sensor := environment.NewMockPressureSensor(environment.PressureSeries(21.5, 1013.25, 1012.0, 995.0))
	st := New(sensor, WithClock(fakeClock{t: fixed}))
	ctx := context.Background()

	tests := []struct {
		forecast weather.Forecast
		trend    weather.Trend
		low      bool
	}{
		{weather.Sunny, weather.Steady, false},
		{weather.Sunny, weather.Falling, false},
		{weather.Storm, weather.Falling, true},
	}
	for i, tt := range tests {
		r, err := st.Poll(ctx)
		require.NoError(t, err, "poll %d", i)
		assert.Equal(t, fixed, r.Time)
		assert.Equal(t, float32(21.5), r.Reading.Temperature)
		assert.Equal(t, 1013.25, r.Reference, "first reading is the reference")
		assert.Equal(t, tt.forecast, r.Forecast, "poll %d", i)
		assert.Equal(t, tt.trend, r.Trend, "poll %d", i)
		assert.Equal(t, tt.low, r.LowPressure, "poll %d", i)
		assert.Nil(t, r.AuxTemperature)
	}
}

func TestStation_FixedReference(t *testing.T) {
	sensor := environment.NewMockPressureSensor(environment.PressureSeries(15, 699.64))
	st := New(sensor, WithReference(weather.StandardPressure), WithSystemClock(func() time.Time { return fixed }))
	r, err := st.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixed, r.Time)
	assert.InDelta(t, 3016.74, r.Altitude, 0.1)
}

func TestStation_AuxAndClockFailuresAreTolerated(t *testing.T) {
	metrics := NewMetrics()
	sensor := environment.NewMockPressureSensor(environment.PressureSeries(20, 1005))
	aux := environment.NewMockTemperatureSensor(environment.FailingTemperature(hpa.ErrNack))
	st := New(sensor,
		WithAux(aux),
		WithClock(fakeClock{err: hpa.ErrBusTimeout}),
		WithSystemClock(func() time.Time { return fixed }),
		WithMetrics(metrics),
	)
	r, err := st.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixed, r.Time)
	assert.Nil(t, r.AuxTemperature)
	assert.Equal(t, 1, aux.Reads())
	assert.Equal(t, weather.Cloudy, r.Forecast)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Errors.WithLabelValues("aux")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Errors.WithLabelValues("clock")))
}

func TestStation_PressureFailure(t *testing.T) {
	metrics := NewMetrics()
	sensor := environment.NewMockPressureSensor(func(ctx context.Context) (environment.Reading, error) {
		return environment.Reading{Temperature: 22}, environment.ErrZeroDenominator
	})
	st := New(sensor, WithMetrics(metrics))
	r, err := st.Poll(context.Background())
	assert.ErrorIs(t, err, environment.ErrZeroDenominator)
	assert.Equal(t, float32(22), r.Reading.Temperature)
	assert.Equal(t, 0.0, r.Reference, "failed reading never becomes the reference")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Errors.WithLabelValues("pressure")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.Samples))
}

func TestStation_Metrics(t *testing.T) {
	metrics := NewMetrics()
	require.NoError(t, metrics.Register(prometheus.NewRegistry()))

	sensor := environment.NewMockPressureSensor(environment.PressureSeries(18.5, 998))
	aux := environment.NewMockTemperatureSensor(func(ctx context.Context) (float32, error) { return 19, nil })
	st := New(sensor, WithAux(aux), WithMetrics(metrics), WithReference(weather.StandardPressure))
	r, err := st.Poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, r.AuxTemperature)
	assert.Equal(t, float32(19), *r.AuxTemperature)

	assert.Equal(t, 998.0, testutil.ToFloat64(metrics.Pressure))
	assert.Equal(t, 18.5, testutil.ToFloat64(metrics.Temperature))
	assert.Equal(t, 19.0, testutil.ToFloat64(metrics.AuxTemperature))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LowPressure))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Samples))
	assert.InDelta(t, r.Altitude, testutil.ToFloat64(metrics.Altitude), 1e-9)
}

func TestMetrics_DoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, NewMetrics().Register(reg))
	assert.Error(t, NewMetrics().Register(reg))
}

func TestStation_Run(t *testing.T) {
	sensor := environment.NewMockPressureSensor(environment.PressureSeries(20, 1010))
	st := New(sensor)
	ctx, cancel := context.WithCancel(context.Background())
	var polls atomic.Int32
	err := st.Run(ctx, time.Millisecond, func(r Report, err error) {
		assert.NoError(t, err)
		if polls.Add(1) == 3 {
			cancel()
		}
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.GreaterOrEqual(t, polls.Load(), int32(3))

	assert.Error(t, st.Run(context.Background(), 0, func(Report, error) {}))
}

func TestStation_InitStartsHaltedClock(t *testing.T) {
	ctx := context.Background()
	rtc := twitest.NewDevice(clock.DefaultAddress)
	// CH set, 14:30:45, weekday 5, 15.10.2026
	rtc.Set(0x00, 0x80|0x45, 0x30, 0x14, 0x05, 0x15, 0x10, 0x26)
	metrics := NewMetrics()
	sensor := environment.NewMockPressureSensor(environment.PressureSeries(20, 1010))
	st := New(sensor,
		WithClock(clock.NewDS1307(twi.NewBus(twitest.NewBus(rtc)))),
		WithMetrics(metrics),
		WithSystemClock(func() time.Time { return fixed }),
	)

	st.Init(ctx)
	assert.Equal(t, byte(0x45), rtc.Registers[0x00], "halt bit cleared, seconds kept")

	r, err := st.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 15, 14, 30, 45, 0, time.Local), r.Time)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.Errors.WithLabelValues("clock")))
}

func TestStation_InitClockFailureIsCounted(t *testing.T) {
	metrics := NewMetrics()
	sensor := environment.NewMockPressureSensor(environment.PressureSeries(20, 1010))
	st := New(sensor,
		WithClock(clock.NewDS1307(twi.NewBus(twitest.NewBus()))),
		WithMetrics(metrics),
	)
	st.Init(context.Background())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Errors.WithLabelValues("clock")))
}

func TestStation_InitWithoutStartableClock(t *testing.T) {
	metrics := NewMetrics()
	sensor := environment.NewMockPressureSensor(environment.PressureSeries(20, 1010))
	New(sensor, WithClock(fakeClock{t: fixed}), WithMetrics(metrics)).Init(context.Background())
	New(sensor, WithMetrics(metrics)).Init(context.Background())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.Errors.WithLabelValues("clock")))
}
