// Package twi implements the two-wire bus protocol on top of a byte-level
// transport: start and repeated start conditions, addressed writes, ack/nack
// terminated reads and the stop condition.
package twi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/hpa"
)

const (
	dirWrite = 0x00
	dirRead  = 0x01
)

const defaultTimeout = 100 * time.Millisecond

var ErrEmptyRead = errors.New("read of zero bytes requested")

// Transport is the set of primitives every bus controller provides. Each call
// blocks until the controller signals completion or ctx is done.
type Transport interface {
	// Start issues a start condition, or a repeated start when the bus is already held.
	Start(ctx context.Context) error
	// Send clocks one byte out and returns hpa.ErrNack if the slave did not acknowledge it.
	Send(ctx context.Context, b byte) error
	// Receive clocks one byte in, acknowledging it when more bytes will follow.
	Receive(ctx context.Context, ack bool) (byte, error)
	// Stop issues a stop condition and waits for the bus to become idle.
	Stop(ctx context.Context) error
}

type speedSetter interface {
	SetSpeed(f physic.Frequency) error
}

var _ hpa.RegisterBus = &Bus{}
var _ i2c.Bus = &Bus{}

// Bus composes Transport primitives into whole transactions. Only one
// transaction is in flight at a time: the lock is held from start to stop.
type Bus struct {
	mx        sync.Mutex
	transport Transport
	timeout   time.Duration
}

type BusOpt func(*Bus)

// WithTimeout bounds every transaction. Zero disables the deadline.
func WithTimeout(d time.Duration) BusOpt {
	return func(b *Bus) {
		b.timeout = d
	}
}

func NewBus(t Transport, opts ...BusOpt) *Bus {
	b := &Bus{transport: t, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) ReadRegister(ctx context.Context, address byte, register byte, buffer []byte) error {
	if len(buffer) == 0 {
		return ErrEmptyRead
	}
	err := b.tx(ctx, address, []byte{register}, buffer)
	if err != nil {
		return fmt.Errorf("could not read register %#x of %#x: %w", register, address, err)
	}
	return nil
}

func (b *Bus) WriteRegister(ctx context.Context, address byte, register byte, data ...byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, register)
	w = append(w, data...)
	err := b.tx(ctx, address, w, nil)
	if err != nil {
		return fmt.Errorf("could not write register %#x of %#x: %w", register, address, err)
	}
	return nil
}

func (b *Bus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.tx(ctx, address, buffer, nil)
	if err != nil {
		return fmt.Errorf("could not write to %#x: %w", address, err)
	}
	return nil
}

func (b *Bus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) == 0 {
		return ErrEmptyRead
	}
	err := b.tx(ctx, address, nil, buffer)
	if err != nil {
		return fmt.Errorf("could not read from %#x: %w", address, err)
	}
	return nil
}

// Release issues a lone stop condition, which frees slaves left mid-transfer.
func (b *Bus) Release(ctx context.Context) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	ctx, cancel := b.deadline(ctx)
	defer cancel()
	return b.transport.Stop(ctx)
}

// Tx implements periph's i2c.Bus so periph device drivers can run on any Transport.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	if addr > 0x7F {
		return fmt.Errorf("twi: 10-bit address %#x not supported", addr)
	}
	return b.tx(context.Background(), byte(addr), w, r)
}

func (b *Bus) SetSpeed(f physic.Frequency) error {
	s, ok := b.transport.(speedSetter)
	if !ok {
		return fmt.Errorf("twi: transport %T has a fixed speed", b.transport)
	}
	return s.SetSpeed(f)
}

func (b *Bus) String() string {
	return fmt.Sprintf("twi(%T)", b.transport)
}

// tx runs one transaction: the write phase when w is set (or when nothing is
// read, which leaves an address-only probe), then a repeated start and the
// read phase when r is set.
func (b *Bus) tx(ctx context.Context, address byte, w, r []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	ctx, cancel := b.deadline(ctx)
	defer cancel()

	err := b.transport.Start(ctx)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	err = b.exchange(ctx, address, w, r)
	// the bus is released even when the transaction ran out of time
	stopCtx, stopCancel := b.stopDeadline(ctx)
	defer stopCancel()
	stopErr := b.transport.Stop(stopCtx)
	if err != nil {
		return err
	}
	if stopErr != nil {
		return fmt.Errorf("stop: %w", stopErr)
	}
	return nil
}

func (b *Bus) exchange(ctx context.Context, address byte, w, r []byte) error {
	if len(w) > 0 || len(r) == 0 {
		err := b.transport.Send(ctx, address<<1|dirWrite)
		if err != nil {
			return fmt.Errorf("address %#x (write): %w", address, err)
		}
		for i, v := range w {
			err = b.transport.Send(ctx, v)
			if err != nil {
				return fmt.Errorf("byte %d: %w", i, err)
			}
		}
		if len(r) == 0 {
			return nil
		}
		err = b.transport.Start(ctx)
		if err != nil {
			return fmt.Errorf("repeated start: %w", err)
		}
	}
	err := b.transport.Send(ctx, address<<1|dirRead)
	if err != nil {
		return fmt.Errorf("address %#x (read): %w", address, err)
	}
	last := len(r) - 1
	for i := range r {
		r[i], err = b.transport.Receive(ctx, i < last)
		if err != nil {
			return fmt.Errorf("byte %d: %w", i, err)
		}
	}
	return nil
}

func (b *Bus) stopDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

func (b *Bus) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}
