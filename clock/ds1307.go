// Package clock drives the DS1307 real-time clock. Registers hold BCD
// digits; the driver converts at its boundary so callers see plain integers.
package clock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mklimuk/hpa"
)

const DefaultAddress = 0x68

const (
	regSeconds = 0x00
	regWeekday = 0x03

	clockHalt = 0x80
	mode12h   = 0x40
	pm        = 0x20

	yearBase = 2000
)

var ErrInvalidTime = errors.New("invalid time")
var ErrInvalidDate = errors.New("invalid date")

type Time struct {
	Seconds int `yaml:"seconds"`
	Minutes int `yaml:"minutes"`
	Hours   int `yaml:"hours"`
}

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hours, t.Minutes, t.Seconds)
}

func (t Time) validate() error {
	if t.Seconds < 0 || t.Seconds > 59 || t.Minutes < 0 || t.Minutes > 59 || t.Hours < 0 || t.Hours > 23 {
		return fmt.Errorf("%w: %s", ErrInvalidTime, t)
	}
	return nil
}

// Date carries a 4-digit year. Weekday is 1..7 with 1 meaning Sunday.
type Date struct {
	Weekday int `yaml:"weekday"`
	Day     int `yaml:"day"`
	Month   int `yaml:"month"`
	Year    int `yaml:"year"`
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d (%d)", d.Year, d.Month, d.Day, d.Weekday)
}

func (d Date) validate() error {
	if d.Weekday < 1 || d.Weekday > 7 || d.Day < 1 || d.Day > 31 || d.Month < 1 || d.Month > 12 ||
		d.Year < yearBase || d.Year > yearBase+99 {
		return fmt.Errorf("%w: %s", ErrInvalidDate, d)
	}
	return nil
}

// DS1307 represents a Maxim DS1307 serial real-time clock.
// See: https://www.analog.com/media/en/technical-documentation/data-sheets/DS1307.pdf
type DS1307 struct {
	mx        sync.Mutex
	transport hpa.I2CBus
	address   byte
}

type Opt func(*DS1307)

func WithAddress(address byte) Opt {
	return func(c *DS1307) {
		c.address = address
	}
}

func NewDS1307(trans hpa.I2CBus, opts ...Opt) *DS1307 {
	c := &DS1307{transport: trans, address: DefaultAddress}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init starts the oscillator by clearing the clock halt bit. The seconds
// count is kept.
func (c *DS1307) Init(ctx context.Context) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	buf, err := c.read(ctx, regSeconds, 1)
	if err != nil {
		return err
	}
	if buf[0]&clockHalt == 0 {
		return nil
	}
	err = c.transport.WriteToAddr(ctx, c.address, []byte{regSeconds, buf[0] &^ clockHalt})
	if err != nil {
		return fmt.Errorf("ds1307: could not clear clock halt: %w", err)
	}
	return nil
}

// Halted reports whether the oscillator is stopped.
func (c *DS1307) Halted(ctx context.Context) (bool, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	buf, err := c.read(ctx, regSeconds, 1)
	if err != nil {
		return false, err
	}
	return buf[0]&clockHalt != 0, nil
}

func (c *DS1307) Time(ctx context.Context) (Time, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	buf, err := c.read(ctx, regSeconds, 3)
	if err != nil {
		return Time{}, err
	}
	return decodeTime(buf), nil
}

// SetTime writes the time in 24h mode. It also clears the clock halt bit.
func (c *DS1307) SetTime(ctx context.Context, t Time) error {
	err := t.validate()
	if err != nil {
		return err
	}
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.write(ctx, regSeconds, encodeTime(t)...)
}

func (c *DS1307) Date(ctx context.Context) (Date, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	buf, err := c.read(ctx, regWeekday, 4)
	if err != nil {
		return Date{}, err
	}
	return decodeDate(buf), nil
}

func (c *DS1307) SetDate(ctx context.Context, d Date) error {
	err := d.validate()
	if err != nil {
		return err
	}
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.write(ctx, regWeekday, encodeDate(d)...)
}

// Now reads time and date in one burst so a rollover cannot split them.
func (c *DS1307) Now(ctx context.Context) (time.Time, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	buf, err := c.read(ctx, regSeconds, 7)
	if err != nil {
		return time.Time{}, err
	}
	t := decodeTime(buf[0:3])
	d := decodeDate(buf[3:7])
	if err := d.validate(); err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year, time.Month(d.Month), d.Day, t.Hours, t.Minutes, t.Seconds, 0, time.Local), nil
}

// SetNow writes the wall clock of now, in its own location.
func (c *DS1307) SetNow(ctx context.Context, now time.Time) error {
	t, d := Split(now)
	if err := d.validate(); err != nil {
		return err
	}
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.write(ctx, regSeconds, append(encodeTime(t), encodeDate(d)...)...)
}

// Split breaks a time.Time into the clock's time and date records.
func Split(now time.Time) (Time, Date) {
	return Time{Seconds: now.Second(), Minutes: now.Minute(), Hours: now.Hour()},
		Date{Weekday: int(now.Weekday()) + 1, Day: now.Day(), Month: int(now.Month()), Year: now.Year()}
}

// read positions the register pointer, stops, then reads n bytes.
func (c *DS1307) read(ctx context.Context, register byte, n int) ([]byte, error) {
	err := c.transport.WriteToAddr(ctx, c.address, []byte{register})
	if err != nil {
		return nil, fmt.Errorf("ds1307: could not set register pointer %#x: %w", register, err)
	}
	buf := make([]byte, n)
	err = c.transport.ReadFromAddr(ctx, c.address, buf)
	if err != nil {
		return nil, fmt.Errorf("ds1307: could not read %d bytes from %#x: %w", n, register, err)
	}
	return buf, nil
}

func (c *DS1307) write(ctx context.Context, register byte, data ...byte) error {
	err := c.transport.WriteToAddr(ctx, c.address, append([]byte{register}, data...))
	if err != nil {
		return fmt.Errorf("ds1307: could not write %d bytes to %#x: %w", len(data), register, err)
	}
	return nil
}

func decodeTime(buf []byte) Time {
	return Time{
		Seconds: FromBCD(buf[0] &^ clockHalt),
		Minutes: FromBCD(buf[1] & 0x7F),
		Hours:   decodeHours(buf[2]),
	}
}

func decodeHours(v byte) int {
	if v&mode12h == 0 {
		return FromBCD(v & 0x3F)
	}
	h := FromBCD(v & 0x1F)
	if h == 12 {
		h = 0
	}
	if v&pm != 0 {
		h += 12
	}
	return h
}

func encodeTime(t Time) []byte {
	return []byte{ToBCD(t.Seconds), ToBCD(t.Minutes), ToBCD(t.Hours)}
}

func decodeDate(buf []byte) Date {
	return Date{
		Weekday: FromBCD(buf[0] & 0x07),
		Day:     FromBCD(buf[1] & 0x3F),
		Month:   FromBCD(buf[2] & 0x1F),
		Year:    yearBase + FromBCD(buf[3]),
	}
}

func encodeDate(d Date) []byte {
	return []byte{ToBCD(d.Weekday), ToBCD(d.Day), ToBCD(d.Month), ToBCD(d.Year - yearBase)}
}

// ToBCD packs 0..99 into two decimal nibbles.
func ToBCD(v int) byte {
	return byte(v/10)<<4 | byte(v%10)
}

func FromBCD(v byte) int {
	return int(v>>4)*10 + int(v&0x0F)
}
