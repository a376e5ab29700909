package twi

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/mklimuk/hpa"
)

const defaultStretchTimeout = 10 * time.Millisecond

// Line is the part of gpio.PinIO needed to drive one open-drain bus line:
// driving it low, releasing it to the pull-up and sampling it.
type Line interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	Out(l gpio.Level) error
	Read() gpio.Level
}

// BitBang implements Transport by toggling two GPIO lines. A line is never
// driven high; it is released and the pull-up brings it up, so a slave
// holding SCL low (clock stretching) is waited for, up to StretchTimeout.
type BitBang struct {
	sda        Line
	scl        Line
	halfPeriod time.Duration
	stretch    time.Duration
}

type BitBangOpt func(*BitBang)

func WithFrequency(f physic.Frequency) BitBangOpt {
	return func(b *BitBang) {
		b.halfPeriod = f.Period() / 2
	}
}

func WithStretchTimeout(d time.Duration) BitBangOpt {
	return func(b *BitBang) {
		b.stretch = d
	}
}

func NewBitBang(sda, scl Line, opts ...BitBangOpt) *BitBang {
	b := &BitBang{
		sda:        sda,
		scl:        scl,
		halfPeriod: (100 * physic.KiloHertz).Period() / 2,
		stretch:    defaultStretchTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OpenBitBang initializes the host drivers and looks up both pins by name (e.g. "GPIO2").
func OpenBitBang(sdaName, sclName string, opts ...BitBangOpt) (*BitBang, error) {
	_, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	sda := gpioreg.ByName(sdaName)
	if sda == nil {
		return nil, fmt.Errorf("unknown SDA pin %q", sdaName)
	}
	scl := gpioreg.ByName(sclName)
	if scl == nil {
		return nil, fmt.Errorf("unknown SCL pin %q", sclName)
	}
	return NewBitBang(sda, scl, opts...), nil
}

func (b *BitBang) SetSpeed(f physic.Frequency) error {
	if f <= 0 {
		return fmt.Errorf("invalid bus frequency %s", f)
	}
	b.halfPeriod = f.Period() / 2
	return nil
}

// Start works both on an idle bus and as a repeated start while SCL is held low.
func (b *BitBang) Start(ctx context.Context) error {
	err := b.release(b.sda)
	if err != nil {
		return err
	}
	err = b.releaseClock(ctx)
	if err != nil {
		return err
	}
	b.wait()
	// SDA falling while SCL is high
	err = b.sda.Out(gpio.Low)
	if err != nil {
		return fmt.Errorf("could not drive SDA: %w", err)
	}
	b.wait()
	return b.holdClock()
}

func (b *BitBang) Stop(ctx context.Context) error {
	err := b.sda.Out(gpio.Low)
	if err != nil {
		return fmt.Errorf("could not drive SDA: %w", err)
	}
	b.wait()
	err = b.releaseClock(ctx)
	if err != nil {
		return err
	}
	b.wait()
	// SDA rising while SCL is high
	err = b.release(b.sda)
	if err != nil {
		return err
	}
	b.wait()
	return nil
}

func (b *BitBang) Send(ctx context.Context, v byte) error {
	for i := 7; i >= 0; i-- {
		err := b.writeBit(ctx, v&(1<<i) != 0)
		if err != nil {
			return err
		}
	}
	nack, err := b.readBit(ctx)
	if err != nil {
		return err
	}
	if nack {
		return hpa.ErrNack
	}
	return nil
}

func (b *BitBang) Receive(ctx context.Context, ack bool) (byte, error) {
	var v byte
	for range 8 {
		bit, err := b.readBit(ctx)
		if err != nil {
			return 0, err
		}
		v <<= 1
		if bit {
			v |= 1
		}
	}
	// ack is SDA held low during the ninth clock
	err := b.writeBit(ctx, !ack)
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (b *BitBang) writeBit(ctx context.Context, bit bool) error {
	var err error
	if bit {
		err = b.release(b.sda)
	} else {
		err = b.sda.Out(gpio.Low)
	}
	if err != nil {
		return fmt.Errorf("could not set SDA: %w", err)
	}
	b.wait()
	err = b.releaseClock(ctx)
	if err != nil {
		return err
	}
	b.wait()
	return b.holdClock()
}

func (b *BitBang) readBit(ctx context.Context) (bool, error) {
	err := b.release(b.sda)
	if err != nil {
		return false, err
	}
	b.wait()
	err = b.releaseClock(ctx)
	if err != nil {
		return false, err
	}
	bit := b.sda.Read() == gpio.High
	b.wait()
	return bit, b.holdClock()
}

// releaseClock lets SCL go high and waits while a slave stretches the clock.
func (b *BitBang) releaseClock(ctx context.Context) error {
	err := b.release(b.scl)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(b.stretch)
	for b.scl.Read() == gpio.Low {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: SCL held low: %w", hpa.ErrBusTimeout, err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: SCL held low for %s", hpa.ErrBusTimeout, b.stretch)
		}
		b.wait()
	}
	return nil
}

func (b *BitBang) holdClock() error {
	err := b.scl.Out(gpio.Low)
	if err != nil {
		return fmt.Errorf("could not drive SCL: %w", err)
	}
	return nil
}

func (b *BitBang) release(l Line) error {
	err := l.In(gpio.PullUp, gpio.NoEdge)
	if err != nil {
		return fmt.Errorf("could not release line: %w", err)
	}
	return nil
}

func (b *BitBang) wait() {
	if b.halfPeriod > 0 {
		time.Sleep(b.halfPeriod)
	}
}
