package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpeedDivider(t *testing.T) {
	tests := []struct {
		hz       int
		expected byte
	}{
		{100_000, 117},
		{400_000, 27},
		{50_000, 237},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, speedDivider(tt.hz), "%d Hz", tt.hz)
	}
}

func TestBufferToStatus(t *testing.T) {
	buf := make([]byte, 64)
	buf[9], buf[10] = 0x16, 0x00
	buf[11], buf[12] = 0x10, 0x00
	buf[13] = 3
	buf[14] = 117
	buf[16], buf[17] = 0xEE, 0x00
	// ADC1=0x0123, ADC2=0x03FF, ADC3=0x0000
	buf[50], buf[51] = 0x23, 0x01
	buf[52], buf[53] = 0xFF, 0x03

	status := bufferToStatus(buf)
	assert.Equal(t, uint16(22), status.LastWriteRequestedSize)
	assert.Equal(t, uint16(16), status.LastWriteSentSize)
	assert.Equal(t, 3, status.I2CDataBufferCounter)
	assert.Equal(t, 117, status.I2CSpeedDivider)
	assert.Equal(t, "ee00", status.CurrentAddress)
	assert.Equal(t, [3]uint16{0x0123, 0x03FF, 0}, status.ADC)
}

func TestDecodeGPIO(t *testing.T) {
	buf := make([]byte, 64)
	buf[4] = byte(GPIOModeOut) | byte(GPIOOperation)
	buf[5] = byte(GPIOModeIn) | byte(GPIO1ADC1)
	buf[6] = byte(GPIOModeIn) | byte(GPIO2ADC2)
	buf[7] = byte(GPIOModeIn)

	params := decodeGPIO(buf[4:8])
	assert.Equal(t, GPIOModeOut, params.GPIO0Mode)
	assert.Equal(t, GPIO1ADC1, params.GPIO1Designation)
	assert.Equal(t, GPIOModeIn, params.GPIO1Mode)
	assert.Equal(t, GPIO2ADC2, params.GPIO2Designation)
	assert.Equal(t, GPIOOperation, params.GPIO3Designation)
	assert.Equal(t, "INPUT", params.GPIO3Mode.String())
	assert.False(t, params.ADCEnabled())
	assert.True(t, withADC(params).ADCEnabled())
	assert.Equal(t, buf[4:8], encodeGPIO(params))
}

func TestEncodeSRAMGPIO(t *testing.T) {
	request := make([]byte, 64)
	params := withADC(MCP2221GPIOParameters{GPIO0Mode: GPIOModeOut})
	encodeSRAMGPIO(request, params)

	assert.Equal(t, byte(0x60), request[0], "SRAM settings, not flash")
	assert.Equal(t, []byte{0, 0, 0, 0, 0}, request[2:7], "clock, DAC, ADC reference and interrupts unchanged")
	assert.Equal(t, byte(0x80), request[7], "alter GP settings")
	assert.Equal(t, []byte{0x00, 0x0A, 0x0A, 0x0A}, request[8:12])
	assert.Equal(t, params, decodeGPIO(request[8:12]))
}

func TestMCP2221_InvalidRequests(t *testing.T) {
	ctx := context.Background()
	d := NewMCP2221(WithSpeed(0))
	assert.Error(t, d.Init(ctx))

	_, err := d.ReadADC(ctx, 0)
	assert.Error(t, err)
	_, err = d.ReadADC(ctx, 4)
	assert.Error(t, err)

	require.Error(t, d.read(ctx, cmdRead, 0x77, nil))
	assert.Error(t, d.write(ctx, cmdWrite, 0x77, make([]byte, 61)))
}
