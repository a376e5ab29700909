package environment

import (
	"context"
)

type SampleBehaviorFunc func(ctx context.Context) (Reading, error)

type TemperatureBehaviorFunc func(ctx context.Context) (float32, error)

// MockPressureSensor produces readings from a behavior function without any hardware.
//
// Example usage:
//
//	sensor := NewMockPressureSensor(func(ctx context.Context) (Reading, error) {
//		return Reading{Temperature: 21.5, Pressure: 1013.2}, nil
//	})
type MockPressureSensor struct {
	behavior SampleBehaviorFunc
	inits    int
}

func NewMockPressureSensor(behavior SampleBehaviorFunc) *MockPressureSensor {
	return &MockPressureSensor{behavior: behavior}
}

func (m *MockPressureSensor) Init(ctx context.Context) error {
	m.inits++
	return nil
}

// Inits returns how many times Init was called.
func (m *MockPressureSensor) Inits() int {
	return m.inits
}

func (m *MockPressureSensor) Sample(ctx context.Context) (Reading, error) {
	return m.behavior(ctx)
}

// PressureSeries returns a behavior replaying the given pressures in order,
// repeating the last one once exhausted.
func PressureSeries(temperature float32, pressures ...float32) SampleBehaviorFunc {
	i := 0
	return func(ctx context.Context) (Reading, error) {
		if len(pressures) == 0 {
			return Reading{Temperature: temperature}, nil
		}
		p := pressures[i]
		if i < len(pressures)-1 {
			i++
		}
		return Reading{Temperature: temperature, Pressure: p}, nil
	}
}

// MockTemperatureSensor stands in for the TC74 or LM35 aux sensor.
type MockTemperatureSensor struct {
	behavior TemperatureBehaviorFunc
	reads    int
}

func NewMockTemperatureSensor(behavior TemperatureBehaviorFunc) *MockTemperatureSensor {
	return &MockTemperatureSensor{behavior: behavior}
}

func (m *MockTemperatureSensor) GetTemperature(ctx context.Context) (float32, error) {
	m.reads++
	return m.behavior(ctx)
}

// Reads returns how many times GetTemperature was called.
func (m *MockTemperatureSensor) Reads() int {
	return m.reads
}

// FailingTemperature returns a behavior that always fails with err.
func FailingTemperature(err error) TemperatureBehaviorFunc {
	return func(ctx context.Context) (float32, error) {
		return 0, err
	}
}
