package hpa

import (
	"context"
	"errors"
)

// ErrBusBusy is returned when the bus controller is still completing an earlier command.
var ErrBusBusy = errors.New("I2C engine is busy (command not completed)")

// ErrBusTimeout is returned when a bus wait (clock release, completion flag,
// transaction deadline) did not finish in time.
var ErrBusTimeout = errors.New("bus timeout")

// ErrNack is returned when the addressed device did not acknowledge a byte.
var ErrNack = errors.New("no acknowledge from device")

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// RegisterReader sets the device register pointer and reads len(buffer) bytes
// back using a repeated start.
type RegisterReader interface {
	ReadRegister(ctx context.Context, address byte, register byte, buffer []byte) error
}

// RegisterWriter writes data starting at register in a single transaction.
type RegisterWriter interface {
	WriteRegister(ctx context.Context, address byte, register byte, data ...byte) error
}

// RegisterBus is implemented by every bus backend and consumed by device drivers.
type RegisterBus interface {
	I2CBus
	RegisterReader
	RegisterWriter
}
