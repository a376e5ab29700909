//go:build linux

package i2c

import (
	"context"
	"fmt"
	"sync"

	d2r2 "github.com/d2r2/go-i2c"
	"github.com/d2r2/go-logger"

	"github.com/mklimuk/hpa"
)

var _ hpa.RegisterBus = &D2R2Bus{}

// D2R2Bus drives /dev/i2c-N through github.com/d2r2/go-i2c. The library binds
// a file handle to one slave address, so handles are cached per address.
// Register reads are a write followed by a separate read (stop in between).
type D2R2Bus struct {
	mx    sync.Mutex
	busNr int
	conns map[byte]*d2r2.I2C
}

func NewD2R2Bus(busNr int) *D2R2Bus {
	// the library logs every transfer at debug level
	_ = logger.ChangePackageLogLevel("i2c", logger.InfoLevel)
	return &D2R2Bus{busNr: busNr, conns: make(map[byte]*d2r2.I2C)}
}

func (b *D2R2Bus) conn(address byte) (*d2r2.I2C, error) {
	c, ok := b.conns[address]
	if ok {
		return c, nil
	}
	c, err := d2r2.NewI2C(address, b.busNr)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c-%d for %#x: %w", b.busNr, address, err)
	}
	b.conns[address] = c
	return c, nil
}

func (b *D2R2Bus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	c, err := b.conn(address)
	if err != nil {
		return err
	}
	n, err := c.ReadBytes(buffer)
	if err != nil {
		return fmt.Errorf("could not read from %#x: %w", address, err)
	}
	if n != len(buffer) {
		return fmt.Errorf("short read from %#x: %d of %d", address, n, len(buffer))
	}
	return nil
}

func (b *D2R2Bus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	c, err := b.conn(address)
	if err != nil {
		return err
	}
	_, err = c.WriteBytes(buffer)
	if err != nil {
		return fmt.Errorf("could not write to %#x: %w", address, err)
	}
	return nil
}

func (b *D2R2Bus) ReadRegister(ctx context.Context, address byte, register byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	c, err := b.conn(address)
	if err != nil {
		return err
	}
	data, _, err := c.ReadRegBytes(register, len(buffer))
	if err != nil {
		return fmt.Errorf("could not read register %#x of %#x: %w", register, address, err)
	}
	copy(buffer, data)
	return nil
}

func (b *D2R2Bus) WriteRegister(ctx context.Context, address byte, register byte, data ...byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	c, err := b.conn(address)
	if err != nil {
		return err
	}
	_, err = c.WriteBytes(append([]byte{register}, data...))
	if err != nil {
		return fmt.Errorf("could not write register %#x of %#x: %w", register, address, err)
	}
	return nil
}

func (b *D2R2Bus) Release(ctx context.Context) error {
	return nil
}

func (b *D2R2Bus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var firstErr error
	for addr, c := range b.conns {
		err := c.Close()
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("could not close handle for %#x: %w", addr, err)
		}
		delete(b.conns, addr)
	}
	return firstErr
}
