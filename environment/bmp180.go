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

const bmp180DefaultAddress = 0x77

const (
	bmp180RegCalibration = 0xAA
	bmp180RegID          = 0xD0
	bmp180RegControl     = 0xF4
	bmp180RegResult      = 0xF6
	bmp180RegResultXLSB  = 0xF8

	bmp180CmdTemperature = 0x2E
	bmp180CmdPressure    = 0x34

	bmp180CalibrationSize = 22
	bmp180WakeReads       = 5
)

// BMP180 represents a Bosch BMP180 barometric pressure sensor running at oversampling setting 0.
// See: https://cdn-shop.adafruit.com/datasheets/BST-BMP180-DS000-09.pdf
//
// Usage: Instantiate with NewBMP180, call Init(ctx) once, then Sample(ctx).
type BMP180 struct {
	mx        sync.Mutex
	transport hpa.RegisterBus
	address   byte
	cal       bmp180Calibration

	powerOnDelay      time.Duration
	wakeInterval      time.Duration
	temperatureSettle time.Duration
	pressureSettle    time.Duration
}

type bmp180Calibration struct {
	AC1 int16
	AC2 int16
	AC3 int16
	AC4 uint16
	AC5 uint16
	AC6 uint16
	B1  int16
	B2  int16
	MB  int16
	MC  int16
	MD  int16
}

type BMP180Opt func(*BMP180)

func WithBMP180Address(address byte) BMP180Opt {
	return func(s *BMP180) {
		s.address = address
	}
}

// WithBMP180PowerOnDelay sets the wait before the first bus access in Init.
func WithBMP180PowerOnDelay(d time.Duration) BMP180Opt {
	return func(s *BMP180) {
		s.powerOnDelay = d
	}
}

// WithBMP180WakeInterval sets the spacing of the identity reads issued in Init.
func WithBMP180WakeInterval(d time.Duration) BMP180Opt {
	return func(s *BMP180) {
		s.wakeInterval = d
	}
}

// WithBMP180Settle sets the conversion wait times. Both must exceed the
// device worst case (4.5ms and 7.5ms) on real hardware.
func WithBMP180Settle(temperature, pressure time.Duration) BMP180Opt {
	return func(s *BMP180) {
		s.temperatureSettle = temperature
		s.pressureSettle = pressure
	}
}

func NewBMP180(trans hpa.RegisterBus, opts ...BMP180Opt) *BMP180 {
	s := &BMP180{
		transport:         trans,
		address:           bmp180DefaultAddress,
		powerOnDelay:      time.Second,
		wakeInterval:      10 * time.Millisecond,
		temperatureSettle: 5 * time.Millisecond,
		pressureSettle:    8 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init waits for the sensor to power up, wakes it with a few identity reads
// and loads the factory calibration.
func (s *BMP180) Init(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	err := sleep(ctx, s.powerOnDelay)
	if err != nil {
		return fmt.Errorf("bmp180: %w", err)
	}
	id := make([]byte, 1)
	for i := range bmp180WakeReads {
		err = s.transport.ReadRegister(ctx, s.address, bmp180RegID, id)
		if err != nil {
			slog.Debug("bmp180 wake read failed", "attempt", i, "error", err)
		}
		err = sleep(ctx, s.wakeInterval)
		if err != nil {
			return fmt.Errorf("bmp180: %w", err)
		}
	}
	buf := make([]byte, bmp180CalibrationSize)
	err = s.transport.ReadRegister(ctx, s.address, bmp180RegCalibration, buf)
	if err != nil {
		return fmt.Errorf("bmp180: could not read calibration: %w", err)
	}
	s.cal = decodeBMP180Calibration(buf)
	if !s.cal.valid() {
		return fmt.Errorf("bmp180: AC1=%#04x: %w", uint16(s.cal.AC1), ErrInvalidCalibration)
	}
	slog.Debug("bmp180 calibration loaded", "address", s.address, "calibration", s.cal)
	return nil
}

func decodeBMP180Calibration(buf []byte) bmp180Calibration {
	word := func(i int) uint16 {
		return binary.BigEndian.Uint16(buf[2*i:])
	}
	return bmp180Calibration{
		AC1: int16(word(0)),
		AC2: int16(word(1)),
		AC3: int16(word(2)),
		AC4: word(3),
		AC5: word(4),
		AC6: word(5),
		B1:  int16(word(6)),
		B2:  int16(word(7)),
		MB:  int16(word(8)),
		MC:  int16(word(9)),
		MD:  int16(word(10)),
	}
}

func (c bmp180Calibration) valid() bool {
	return validCalibration(uint16(c.AC1))
}

// Sample triggers a temperature and then a pressure conversion and
// compensates both. With an invalid calibration it returns a zero reading
// without touching the bus.
func (s *BMP180) Sample(ctx context.Context) (Reading, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if !s.cal.valid() {
		return Reading{}, fmt.Errorf("bmp180: %w", ErrInvalidCalibration)
	}
	ut, err := s.readTemperature(ctx)
	if err != nil {
		return Reading{}, err
	}
	t, b5, err := s.cal.compensateTemperature(ut)
	if err != nil {
		return Reading{}, fmt.Errorf("bmp180: temperature: %w", err)
	}
	up, err := s.readPressure(ctx)
	if err != nil {
		return Reading{}, err
	}
	p, err := s.cal.compensatePressure(up, b5)
	if err != nil {
		return Reading{}, fmt.Errorf("bmp180: pressure: %w", err)
	}
	return Reading{
		Temperature: float32(t) / 10,
		Pressure:    float32(float64(p) / 100),
	}, nil
}

func (s *BMP180) readTemperature(ctx context.Context) (int32, error) {
	err := s.transport.WriteRegister(ctx, s.address, bmp180RegControl, bmp180CmdTemperature)
	if err != nil {
		return 0, fmt.Errorf("bmp180: could not trigger temperature conversion: %w", err)
	}
	err = sleep(ctx, s.temperatureSettle)
	if err != nil {
		return 0, fmt.Errorf("bmp180: %w", err)
	}
	buf := make([]byte, 2)
	err = s.transport.ReadRegister(ctx, s.address, bmp180RegResult, buf)
	if err != nil {
		return 0, fmt.Errorf("bmp180: could not read raw temperature: %w", err)
	}
	return int32(binary.BigEndian.Uint16(buf)), nil
}

func (s *BMP180) readPressure(ctx context.Context) (int32, error) {
	err := s.transport.WriteRegister(ctx, s.address, bmp180RegControl, bmp180CmdPressure)
	if err != nil {
		return 0, fmt.Errorf("bmp180: could not trigger pressure conversion: %w", err)
	}
	err = sleep(ctx, s.pressureSettle)
	if err != nil {
		return 0, fmt.Errorf("bmp180: %w", err)
	}
	word := make([]byte, 2)
	err = s.transport.ReadRegister(ctx, s.address, bmp180RegResult, word)
	if err != nil {
		return 0, fmt.Errorf("bmp180: could not read raw pressure: %w", err)
	}
	xlsb := make([]byte, 1)
	err = s.transport.ReadRegister(ctx, s.address, bmp180RegResultXLSB, xlsb)
	if err != nil {
		return 0, fmt.Errorf("bmp180: could not read raw pressure xlsb: %w", err)
	}
	raw := int32(word[0])<<16 | int32(word[1])<<8 | int32(xlsb[0])
	// oss 0 leaves the low byte empty
	return raw >> 8, nil
}

// compensateTemperature returns the temperature in 0.1°C and the fine
// temperature b5 consumed by compensatePressure.
func (c bmp180Calibration) compensateTemperature(ut int32) (int32, int32, error) {
	x1 := (ut - int32(c.AC6)) * int32(c.AC5) / (1 << 15)
	if x1+int32(c.MD) == 0 {
		return 0, 0, ErrZeroDenominator
	}
	x2 := int32(c.MC) * (1 << 11) / (x1 + int32(c.MD))
	b5 := x1 + x2
	return (b5 + 8) >> 4, b5, nil
}

// compensatePressure returns the pressure in Pa. Shifts are arithmetic.
func (c bmp180Calibration) compensatePressure(up, b5 int32) (int32, error) {
	b6 := b5 - 4000
	x1 := (int32(c.B2) * ((b6 * b6) >> 12)) >> 11
	x2 := (int32(c.AC2) * b6) >> 11
	x3 := x1 + x2
	b3 := ((int32(c.AC1)*4 + x3) + 2) >> 2
	x1 = (int32(c.AC3) * b6) >> 13
	x2 = (int32(c.B1) * ((b6 * b6) >> 12)) >> 16
	x3 = ((x1 + x2) + 2) >> 2
	b4 := (uint32(c.AC4) * uint32(x3+32768)) >> 15
	if b4 == 0 {
		return 0, ErrZeroDenominator
	}
	b7 := uint32(up-b3) * 50000
	var p int32
	if b7 < 0x80000000 {
		p = int32((b7 * 2) / b4)
	} else {
		p = int32((b7 / b4) * 2)
	}
	x1 = (p >> 8) * (p >> 8)
	x1 = (x1 * 3038) >> 16
	x2 = (-7357 * p) >> 16
	return p + ((x1 + x2 + 3791) >> 4), nil
}
