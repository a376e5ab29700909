package environment

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/hpa/twi"
	"github.com/mklimuk/hpa/twi/twitest"
)

// datasheet example trimming
var bmp280Reference = bmp280Calibration{
	T1: 27504, T2: 26435, T3: -1000,
	P1: 36477, P2: -10685, P3: 3024, P4: 2855, P5: 140, P6: -7, P7: 15500, P8: -14600, P9: 6000,
}

func bmp280ReferenceWords() []int {
	return []int{27504, 26435, -1000, 36477, -10685, 3024, 2855, 140, -7, 15500, -14600, 6000}
}

func trimmingWords(order binary.AppendByteOrder, vals ...int) []byte {
	var out []byte
	for _, v := range vals {
		out = order.AppendUint16(out, uint16(v))
	}
	return out
}

// adc_P=415148, adc_T=519888
var bmp280ReferenceData = []byte{0x65, 0x5A, 0xC0, 0x7E, 0xED, 0x00}

func newSimulatedBMP280(address byte, words []int) (*twitest.Device, *twitest.Bus) {
	dev := twitest.NewDevice(address)
	dev.Set(bmp280RegCalibration, trimmingWords(binary.BigEndian, words...)...)
	dev.Set(bmp280RegData, bmp280ReferenceData...)
	return dev, twitest.NewBus(dev)
}

func TestBMP280_Unpack(t *testing.T) {
	assert.Equal(t, int32(415148), unpack20(bmp280ReferenceData[0:3]))
	assert.Equal(t, int32(519888), unpack20(bmp280ReferenceData[3:6]))
	assert.Equal(t, int32(0xFFFFF), unpack20([]byte{0xFF, 0xFF, 0xFF}))
}

func TestBMP280_Compensate(t *testing.T) {
	temp, tFine := bmp280Reference.compensateTemperature(519888)
	assert.Equal(t, int32(2508), temp)
	assert.Equal(t, int32(128422), tFine)

	p, err := bmp280Reference.compensatePressure(415148, tFine)
	require.NoError(t, err)
	assert.Equal(t, int64(25767233), p)
}

func TestBMP280_InitAndSample(t *testing.T) {
	tests := []struct {
		name    string
		address byte
	}{
		{"low address", BMP280AddrLow},
		{"high address", BMP280AddrHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, sim := newSimulatedBMP280(tt.address, bmp280ReferenceWords())
			sensor := NewBMP280(twi.NewBus(sim), WithBMP280Address(tt.address), WithBMP280InitDelay(0))
			ctx := context.Background()

			require.NoError(t, sensor.Init(ctx))
			assert.Equal(t, bmp280Reference, sensor.cal)
			assert.Equal(t, byte(0x27), dev.Registers[bmp280RegCtrlMeas])
			assert.Equal(t, byte(0xA0), dev.Registers[bmp280RegConfig])
			// two config writes and twelve word reads
			assert.Equal(t, 14, sim.Count(twitest.OpStop))

			sim.Reset()
			reading, err := sensor.Sample(ctx)
			require.NoError(t, err)
			assert.InDelta(t, 25.08, reading.Temperature, 0.0001)
			assert.InDelta(t, 1006.5325, reading.Pressure, 0.001)
			// one burst: start, repeated start, five acks, one nack, stop
			assert.Equal(t, 2, sim.Count(twitest.OpStart))
			assert.Equal(t, 1, sim.Count(twitest.OpStop))
			assert.Equal(t, 5, sim.Count(twitest.OpAck))
			assert.Equal(t, 1, sim.Count(twitest.OpNack))
		})
	}
}

func TestBMP280_TrimmingByteOrder(t *testing.T) {
	tests := []struct {
		name  string
		order binary.AppendByteOrder
		opts  []BMP280Opt
	}{
		{"high byte first by default", binary.BigEndian, nil},
		{"low byte first when asked", binary.LittleEndian, []BMP280Opt{WithBMP280LittleEndianTrimming()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := twitest.NewDevice(BMP280AddrHigh)
			dev.Set(bmp280RegCalibration, trimmingWords(tt.order, bmp280ReferenceWords()...)...)
			dev.Set(bmp280RegData, bmp280ReferenceData...)
			opts := append([]BMP280Opt{WithBMP280InitDelay(0)}, tt.opts...)
			sensor := NewBMP280(twi.NewBus(twitest.NewBus(dev)), opts...)
			ctx := context.Background()

			require.NoError(t, sensor.Init(ctx))
			assert.Equal(t, bmp280Reference, sensor.cal)
			reading, err := sensor.Sample(ctx)
			require.NoError(t, err)
			assert.InDelta(t, 25.08, reading.Temperature, 0.0001)
			assert.InDelta(t, 1006.5325, reading.Pressure, 0.001)
		})
	}
}

func TestBMP280_SwappedTrimmingMisdecodes(t *testing.T) {
	dev := twitest.NewDevice(BMP280AddrHigh)
	dev.Set(bmp280RegCalibration, trimmingWords(binary.BigEndian, bmp280ReferenceWords()...)...)
	sensor := NewBMP280(twi.NewBus(twitest.NewBus(dev)), WithBMP280InitDelay(0), WithBMP280LittleEndianTrimming())

	require.NoError(t, sensor.Init(context.Background()))
	assert.Equal(t, uint16(28779), sensor.cal.T1)
	assert.NotEqual(t, bmp280Reference, sensor.cal)
}

func TestBMP280_ZeroDenominator(t *testing.T) {
	words := bmp280ReferenceWords()
	// dig_P1 = 0 zeroes the first pressure denominator
	words[3] = 0
	_, sim := newSimulatedBMP280(BMP280AddrHigh, words)
	sensor := NewBMP280(twi.NewBus(sim), WithBMP280InitDelay(0))
	ctx := context.Background()
	require.NoError(t, sensor.Init(ctx))

	reading, err := sensor.Sample(ctx)
	assert.ErrorIs(t, err, ErrZeroDenominator)
	assert.Equal(t, float32(0), reading.Pressure)
	assert.InDelta(t, 25.08, reading.Temperature, 0.0001)
}

func TestBMP280_SentinelCalibration(t *testing.T) {
	for _, t1 := range []int{0x0000, 0xFFFF} {
		words := bmp280ReferenceWords()
		words[0] = t1
		_, sim := newSimulatedBMP280(BMP280AddrHigh, words)
		sensor := NewBMP280(twi.NewBus(sim), WithBMP280InitDelay(0))
		ctx := context.Background()

		assert.ErrorIs(t, sensor.Init(ctx), ErrInvalidCalibration)
		sim.Reset()
		reading, err := sensor.Sample(ctx)
		assert.ErrorIs(t, err, ErrInvalidCalibration)
		assert.Equal(t, Reading{}, reading)
		assert.Empty(t, sim.Ops())
	}
}

func TestBMP280_AbsentDevice(t *testing.T) {
	sensor := NewBMP280(twi.NewBus(twitest.NewBus()), WithBMP280InitDelay(0))
	err := sensor.Init(context.Background())
	assert.Error(t, err)
}

func TestNewPressureSensor(t *testing.T) {
	bus := &MockRegisterBus{}
	s, err := NewPressureSensor(ModelBMP180, bus, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(0x77), s.(*BMP180).address)

	s, err = NewPressureSensor(ModelBMP280, bus, BMP280AddrLow)
	require.NoError(t, err)
	assert.Equal(t, byte(BMP280AddrLow), s.(*BMP280).address)

	_, err = NewPressureSensor("bme680", bus, 0)
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestMockPressureSensor_Series(t *testing.T) {
	sensor := NewMockPressureSensor(PressureSeries(20, 1000, 1001))
	ctx := context.Background()
	require.NoError(t, sensor.Init(ctx))
	assert.Equal(t, 1, sensor.Inits())
	for _, expected := range []float32{1000, 1001, 1001} {
		r, err := sensor.Sample(ctx)
		require.NoError(t, err)
		assert.Equal(t, expected, r.Pressure)
		assert.Equal(t, float32(20), r.Temperature)
	}
}
