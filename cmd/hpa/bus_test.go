package main

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/hpa/config"
	"github.com/mklimuk/hpa/environment"
	"github.com/mklimuk/hpa/twi"
	"github.com/mklimuk/hpa/twi/twitest"
)

// datasheet trimming for the reference conversion
var trimming = []uint16{27504, 26435, 64536, 36477, 54851, 3024, 2855, 140, 65529, 15500, 50936, 6000}

func bmp280Device(order binary.AppendByteOrder) *twitest.Device {
	dev := twitest.NewDevice(environment.BMP280AddrLow)
	var cal []byte
	for _, w := range trimming {
		cal = order.AppendUint16(cal, w)
	}
	dev.Set(0x88, cal...)
	dev.Set(0xF7, 0x65, 0x5A, 0xC0, 0x7E, 0xED, 0x00)
	return dev
}

func TestNewPressureSensor_TrimmingOrder(t *testing.T) {
	tests := []struct {
		name     string
		trimming string
		order    binary.AppendByteOrder
	}{
		{"big", config.TrimmingBigEndian, binary.BigEndian},
		{"little", config.TrimmingLittleEndian, binary.LittleEndian},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &device{bus: twi.NewBus(twitest.NewBus(bmp280Device(tt.order)))}
			sensor, err := newPressureSensor(dev, config.Sensor{
				Model:    "bmp280",
				Address:  environment.BMP280AddrLow,
				Trimming: tt.trimming,
			})
			require.NoError(t, err)
			assert.IsType(t, &environment.BMP280{}, sensor)

			ctx := context.Background()
			require.NoError(t, sensor.Init(ctx))
			reading, err := sensor.Sample(ctx)
			require.NoError(t, err)
			assert.InDelta(t, 25.08, reading.Temperature, 0.0001)
			assert.InDelta(t, 1006.5325, reading.Pressure, 0.001)
		})
	}
}
