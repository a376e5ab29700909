package environment

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/hpa"
)

const (
	BMP280AddrLow  = 0x76
	BMP280AddrHigh = 0x77
)

const (
	bmp280RegCalibration = 0x88
	bmp280RegCtrlMeas    = 0xF4
	bmp280RegConfig      = 0xF5
	bmp280RegData        = 0xF7

	// normal mode, temperature and pressure oversampling x1
	bmp280CtrlMeas = 0x27
	// standby 1000ms, IIR filter 4
	bmp280Config = 0xA0

	bmp280Coefficients = 12
	bmp280DataSize     = 6
)

// BMP280 represents a Bosch BMP280 sensor in normal (periodic conversion) mode.
// See: https://www.bosch-sensortec.com/media/boschsensortec/downloads/datasheets/bst-bmp280-ds001.pdf
type BMP280 struct {
	mx        sync.Mutex
	transport hpa.RegisterBus
	address   byte
	initDelay time.Duration
	trimming  binary.ByteOrder
	cal       bmp280Calibration
}

type bmp280Calibration struct {
	T1 uint16
	T2 int16
	T3 int16
	P1 uint16
	P2 int16
	P3 int16
	P4 int16
	P5 int16
	P6 int16
	P7 int16
	P8 int16
	P9 int16
}

type BMP280Opt func(*BMP280)

func WithBMP280Address(address byte) BMP280Opt {
	return func(s *BMP280) {
		s.address = address
	}
}

func WithBMP280InitDelay(d time.Duration) BMP280Opt {
	return func(s *BMP280) {
		s.initDelay = d
	}
}

// WithBMP280LittleEndianTrimming decodes the trimming words LSB first, the
// order the datasheet documents for 0x88..0x9F. The default composes each
// word as (high<<8)|low, as the station firmware always has.
func WithBMP280LittleEndianTrimming() BMP280Opt {
	return func(s *BMP280) {
		s.trimming = binary.LittleEndian
	}
}

func NewBMP280(trans hpa.RegisterBus, opts ...BMP280Opt) *BMP280 {
	s := &BMP280{
		transport: trans,
		address:   BMP280AddrHigh,
		initDelay: 200 * time.Millisecond,
		trimming:  binary.BigEndian,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init configures periodic conversion and loads the trimming coefficients.
func (s *BMP280) Init(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	err := sleep(ctx, s.initDelay)
	if err != nil {
		return fmt.Errorf("bmp280: %w", err)
	}
	err = s.transport.WriteRegister(ctx, s.address, bmp280RegCtrlMeas, bmp280CtrlMeas)
	if err != nil {
		return fmt.Errorf("bmp280: could not set measurement control: %w", err)
	}
	err = s.transport.WriteRegister(ctx, s.address, bmp280RegConfig, bmp280Config)
	if err != nil {
		return fmt.Errorf("bmp280: could not set config: %w", err)
	}
	words := make([]uint16, bmp280Coefficients)
	buf := make([]byte, 2)
	for i := range words {
		err = s.transport.ReadRegister(ctx, s.address, bmp280RegCalibration+byte(2*i), buf)
		if err != nil {
			return fmt.Errorf("bmp280: could not read calibration word %d: %w", i, err)
		}
		words[i] = s.trimming.Uint16(buf)
	}
	s.cal = decodeBMP280Calibration(words)
	if !s.cal.valid() {
		return fmt.Errorf("bmp280: dig_T1=%#04x: %w", s.cal.T1, ErrInvalidCalibration)
	}
	slog.Debug("bmp280 calibration loaded", "address", s.address, "calibration", s.cal)
	return nil
}

func decodeBMP280Calibration(w []uint16) bmp280Calibration {
	return bmp280Calibration{
		T1: w[0],
		T2: int16(w[1]),
		T3: int16(w[2]),
		P1: w[3],
		P2: int16(w[4]),
		P3: int16(w[5]),
		P4: int16(w[6]),
		P5: int16(w[7]),
		P6: int16(w[8]),
		P7: int16(w[9]),
		P8: int16(w[10]),
		P9: int16(w[11]),
	}
}

func (c bmp280Calibration) valid() bool {
	return validCalibration(c.T1)
}

// Sample reads the latest conversion with one burst. When the pressure
// cannot be compensated the temperature is still reported.
func (s *BMP280) Sample(ctx context.Context) (Reading, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if !s.cal.valid() {
		return Reading{}, fmt.Errorf("bmp280: %w", ErrInvalidCalibration)
	}
	buf := make([]byte, bmp280DataSize)
	err := s.transport.ReadRegister(ctx, s.address, bmp280RegData, buf)
	if err != nil {
		return Reading{}, fmt.Errorf("bmp280: could not read data block: %w", err)
	}
	adcP := unpack20(buf[0:3])
	adcT := unpack20(buf[3:6])
	t, tFine := s.cal.compensateTemperature(adcT)
	reading := Reading{Temperature: float32(t) / 100}
	p, err := s.cal.compensatePressure(adcP, tFine)
	if err != nil {
		return reading, fmt.Errorf("bmp280: pressure: %w", err)
	}
	reading.Pressure = float32(float64(p) / 256 / 100)
	return reading, nil
}

func unpack20(b []byte) int32 {
	return int32(b[0])<<12 | int32(b[1])<<4 | int32(b[2])>>4
}

// compensateTemperature returns the temperature in 0.01°C and t_fine.
func (c bmp280Calibration) compensateTemperature(adcT int32) (int32, int32) {
	t1 := int32(c.T1)
	var1 := (((adcT >> 3) - (t1 << 1)) * int32(c.T2)) >> 11
	var2 := (((((adcT >> 4) - t1) * ((adcT >> 4) - t1)) >> 12) * int32(c.T3)) >> 14
	tFine := var1 + var2
	return (tFine*5 + 128) >> 8, tFine
}

// compensatePressure returns the pressure in Pa as Q24.8.
func (c bmp280Calibration) compensatePressure(adcP, tFine int32) (int64, error) {
	var1 := int64(tFine) - 128000
	var2 := var1 * var1 * int64(c.P6)
	var2 += (var1 * int64(c.P5)) << 17
	var2 += int64(c.P4) << 35
	var1 = ((var1 * var1 * int64(c.P3)) >> 8) + ((var1 * int64(c.P2)) << 12)
	var1 = (((int64(1) << 47) + var1) * int64(c.P1)) >> 33
	if var1 == 0 {
		return 0, ErrZeroDenominator
	}
	p := 1048576 - int64(adcP)
	p = (((p << 31) - var2) * 3125) / var1
	var1 = (int64(c.P9) * (p >> 13) * (p >> 13)) >> 25
	var2 = (int64(c.P8) * p) >> 19
	return ((p + var1 + var2) >> 8) + (int64(c.P7) << 4), nil
}
