//go:build !linux

package i2c

import (
	"context"
	"errors"
)

var ErrUnsupportedPlatform = errors.New("i2c-dev is only available on linux")

// D2R2Bus is only functional on linux.
type D2R2Bus struct{}

func NewD2R2Bus(busNr int) *D2R2Bus {
	return &D2R2Bus{}
}

func (b *D2R2Bus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	return ErrUnsupportedPlatform
}

func (b *D2R2Bus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	return ErrUnsupportedPlatform
}

func (b *D2R2Bus) ReadRegister(ctx context.Context, address byte, register byte, buffer []byte) error {
	return ErrUnsupportedPlatform
}

func (b *D2R2Bus) WriteRegister(ctx context.Context, address byte, register byte, data ...byte) error {
	return ErrUnsupportedPlatform
}

func (b *D2R2Bus) Release(ctx context.Context) error {
	return nil
}

func (b *D2R2Bus) Close() error {
	return nil
}
