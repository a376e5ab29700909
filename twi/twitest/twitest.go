// Package twitest provides a simulated two-wire bus with register-file slaves
// for testing drivers without hardware. It records every primitive it sees.
package twitest

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/hpa"
)

type OpKind int

const (
	OpStart OpKind = iota
	OpStop
	OpSend
	OpAck
	OpNack
)

func (k OpKind) String() string {
	switch k {
	case OpStart:
		return "START"
	case OpStop:
		return "STOP"
	case OpSend:
		return "SEND"
	case OpAck:
		return "ACK"
	case OpNack:
		return "NACK"
	default:
		return "UNKNOWN"
	}
}

// Op is one recorded primitive. Value holds the byte sent or received.
type Op struct {
	Kind  OpKind
	Value byte
}

func (o Op) String() string {
	switch o.Kind {
	case OpStart, OpStop:
		return o.Kind.String()
	default:
		return fmt.Sprintf("%s(%#02x)", o.Kind, o.Value)
	}
}

// Device is a slave with 256 byte-wide registers and an auto-incrementing
// register pointer, which is how every device on the station bus behaves.
type Device struct {
	Address   byte
	Registers [256]byte
	// OnWrite runs after a register is written by the master.
	OnWrite func(d *Device, register, value byte)
	pointer byte
}

func NewDevice(address byte) *Device {
	return &Device{Address: address}
}

// Set copies data into consecutive registers starting at register.
func (d *Device) Set(register byte, data ...byte) {
	for i, v := range data {
		d.Registers[register+byte(i)] = v
	}
}

// Pointer returns the current register pointer.
func (d *Device) Pointer() byte {
	return d.pointer
}

// Bus implements twi.Transport. Unknown addresses are not acknowledged and
// reads with no addressed slave return 0xFF, as a floating bus would.
type Bus struct {
	mx      sync.Mutex
	devices map[byte]*Device
	ops     []Op

	// Stalled makes every Start block until ctx is done.
	Stalled bool

	active        *Device
	reading       bool
	expectAddress bool
	expectPointer bool
}

func NewBus(devices ...*Device) *Bus {
	b := &Bus{devices: make(map[byte]*Device)}
	for _, d := range devices {
		b.devices[d.Address] = d
	}
	return b
}

func (b *Bus) Attach(d *Device) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.devices[d.Address] = d
}

func (b *Bus) Start(ctx context.Context) error {
	b.mx.Lock()
	stalled := b.Stalled
	b.mx.Unlock()
	if stalled {
		<-ctx.Done()
		return fmt.Errorf("%w: %w", hpa.ErrBusTimeout, ctx.Err())
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	b.ops = append(b.ops, Op{Kind: OpStart})
	b.expectAddress = true
	b.expectPointer = false
	return nil
}

func (b *Bus) Send(ctx context.Context, v byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.ops = append(b.ops, Op{Kind: OpSend, Value: v})
	if b.expectAddress {
		b.expectAddress = false
		dev, ok := b.devices[v>>1]
		if !ok {
			b.active = nil
			return hpa.ErrNack
		}
		b.active = dev
		b.reading = v&0x01 == 0x01
		b.expectPointer = !b.reading
		return nil
	}
	if b.active == nil || b.reading {
		return hpa.ErrNack
	}
	if b.expectPointer {
		b.expectPointer = false
		b.active.pointer = v
		return nil
	}
	reg := b.active.pointer
	b.active.Registers[reg] = v
	b.active.pointer++
	if b.active.OnWrite != nil {
		b.active.OnWrite(b.active, reg, v)
	}
	return nil
}

func (b *Bus) Receive(ctx context.Context, ack bool) (byte, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	v := byte(0xFF)
	if b.active != nil && b.reading {
		v = b.active.Registers[b.active.pointer]
		b.active.pointer++
	}
	kind := OpNack
	if ack {
		kind = OpAck
	}
	b.ops = append(b.ops, Op{Kind: kind, Value: v})
	return v, nil
}

func (b *Bus) Stop(ctx context.Context) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.ops = append(b.ops, Op{Kind: OpStop})
	b.active = nil
	b.expectAddress = false
	b.expectPointer = false
	return nil
}

// Ops returns a copy of the recorded primitives.
func (b *Bus) Ops() []Op {
	b.mx.Lock()
	defer b.mx.Unlock()
	res := make([]Op, len(b.ops))
	copy(res, b.ops)
	return res
}

// Count returns how many primitives of the given kind were recorded.
func (b *Bus) Count(kind OpKind) int {
	b.mx.Lock()
	defer b.mx.Unlock()
	n := 0
	for _, op := range b.ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Reset drops the recorded primitives.
func (b *Bus) Reset() {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.ops = nil
}
