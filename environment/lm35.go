package environment

import (
	"context"
	"fmt"
)

const lm35DefaultVref = 5.0
const adcFullScale = 1023

// ADCReader returns a 10-bit conversion of an analog channel.
type ADCReader interface {
	ReadADC(ctx context.Context, channel int) (uint16, error)
}

// LM35 is an analog 10mV/°C sensor sampled through an ADC channel.
type LM35 struct {
	adc     ADCReader
	channel int
	vref    float32
}

type LM35Opt func(*LM35)

// WithVref sets the ADC reference voltage in volts.
func WithVref(v float32) LM35Opt {
	return func(s *LM35) {
		s.vref = v
	}
}

func NewLM35(adc ADCReader, channel int, opts ...LM35Opt) *LM35 {
	s := &LM35{adc: adc, channel: channel, vref: lm35DefaultVref}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LM35) GetTemperature(ctx context.Context) (float32, error) {
	raw, err := s.adc.ReadADC(ctx, s.channel)
	if err != nil {
		return 0, fmt.Errorf("lm35: could not read channel %d: %w", s.channel, err)
	}
	return lm35Celsius(raw, s.vref), nil
}

func lm35Celsius(raw uint16, vref float32) float32 {
	mv := float32(raw) * vref * 1000 / adcFullScale
	return mv / 10
}
