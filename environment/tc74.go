package environment

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/hpa"
)

const TC74DefaultAddress = 0x4D
const tc74TempRegister = 0x00
const tc74ConfigRegister = 0x01
const tc74DataReady = 0x40
const tc74Standby = 0x80

// TC74 represents a Microchip TC74 Digital Temperature Sensor
// See: https://ww1.microchip.com/downloads/en/DeviceDoc/21462D.pdf
//
// Usage: Instantiate with NewTC74, then call GetTemperature(ctx)
type TC74 struct {
	mx        sync.Mutex
	transport hpa.RegisterBus
	address   byte
	lastTemp  float32
}

type TC74Opt func(*TC74)

func WithTC74Address(address byte) TC74Opt {
	return func(s *TC74) {
		s.address = address
	}
}

// NewTC74 creates a new TC74 sensor connector on the given bus. The default address is 0x4D.
func NewTC74(trans hpa.RegisterBus, opts ...TC74Opt) *TC74 {
	s := &TC74{transport: trans, address: TC74DefaultAddress}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetConfig reads the configuration register (0x01) and returns its value.
func (sensor *TC74) GetConfig(ctx context.Context) (byte, error) {
	resp := make([]byte, 1)
	err := sensor.transport.ReadRegister(ctx, sensor.address, tc74ConfigRegister, resp)
	if err != nil {
		return 0, fmt.Errorf("tc74: could not read config register: %w", err)
	}
	return resp[0], nil
}

// Wake clears the standby bit so the sensor resumes conversions.
func (sensor *TC74) Wake(ctx context.Context) error {
	config, err := sensor.GetConfig(ctx)
	if err != nil {
		return err
	}
	if config&tc74Standby == 0 {
		return nil
	}
	err = sensor.transport.WriteRegister(ctx, sensor.address, tc74ConfigRegister, config&^tc74Standby)
	if err != nil {
		return fmt.Errorf("tc74: could not leave standby: %w", err)
	}
	return nil
}

// GetTemperature reads the current temperature in Celsius. Until the first
// conversion completes (DATA_RDY clear) the previous value is returned.
func (sensor *TC74) GetTemperature(ctx context.Context) (float32, error) {
	sensor.mx.Lock()
	defer sensor.mx.Unlock()
	config, err := sensor.GetConfig(ctx)
	if err != nil {
		return 0, err
	}
	if config&tc74DataReady == 0 {
		return sensor.lastTemp, nil
	}
	resp := make([]byte, 1)
	err = sensor.transport.ReadRegister(ctx, sensor.address, tc74TempRegister, resp)
	if err != nil {
		return 0, fmt.Errorf("tc74: could not read temp register: %w", err)
	}
	// two's complement, 1°C per LSB
	sensor.lastTemp = float32(int8(resp[0]))
	return sensor.lastTemp, nil
}
