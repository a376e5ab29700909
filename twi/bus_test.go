package twi

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c"

	"github.com/mklimuk/hpa"
	"github.com/mklimuk/hpa/twi/twitest"
)

func newTestBus(t *testing.T) (*Bus, *twitest.Bus, *twitest.Device) {
	t.Helper()
	dev := twitest.NewDevice(0x77)
	for i := range dev.Registers {
		dev.Registers[i] = byte(i)
	}
	sim := twitest.NewBus(dev)
	return NewBus(sim, WithTimeout(20*time.Millisecond)), sim, dev
}

func TestBus_ReadRegisterBurst(t *testing.T) {
	tests := []struct {
		name     string
		register byte
		length   int
	}{
		{"single byte", 0xD0, 1},
		{"word", 0xF6, 2},
		{"sample block", 0xF7, 6},
		{"16 byte block", 0x88, 16},
		{"calibration block", 0xAA, 22},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus, sim, _ := newTestBus(t)
			buf := make([]byte, tt.length)
			err := bus.ReadRegister(context.Background(), 0x77, tt.register, buf)
			require.NoError(t, err)

			for i, v := range buf {
				assert.Equal(t, tt.register+byte(i), v)
			}
			assert.Equal(t, 2, sim.Count(twitest.OpStart), "start and repeated start")
			assert.Equal(t, 1, sim.Count(twitest.OpStop))
			assert.Equal(t, tt.length-1, sim.Count(twitest.OpAck))
			assert.Equal(t, 1, sim.Count(twitest.OpNack))

			ops := sim.Ops()
			require.Len(t, ops, 6+tt.length)
			assert.Equal(t, []twitest.Op{
				{Kind: twitest.OpStart},
				{Kind: twitest.OpSend, Value: 0xEE},
				{Kind: twitest.OpSend, Value: tt.register},
				{Kind: twitest.OpStart},
				{Kind: twitest.OpSend, Value: 0xEF},
			}, ops[:5])
			assert.Equal(t, twitest.OpNack, ops[len(ops)-2].Kind, "only the final byte is nacked")
			assert.Equal(t, twitest.OpStop, ops[len(ops)-1].Kind)
		})
	}
}

func TestBus_WriteRegister(t *testing.T) {
	bus, sim, dev := newTestBus(t)
	err := bus.WriteRegister(context.Background(), 0x77, 0xF4, 0x2E)
	require.NoError(t, err)
	assert.Equal(t, byte(0x2E), dev.Registers[0xF4])
	assert.Equal(t, []twitest.Op{
		{Kind: twitest.OpStart},
		{Kind: twitest.OpSend, Value: 0xEE},
		{Kind: twitest.OpSend, Value: 0xF4},
		{Kind: twitest.OpSend, Value: 0x2E},
		{Kind: twitest.OpStop},
	}, sim.Ops())
}

func TestBus_PointerThenRead(t *testing.T) {
	bus, sim, _ := newTestBus(t)
	ctx := context.Background()
	require.NoError(t, bus.WriteToAddr(ctx, 0x77, []byte{0x03}))
	buf := make([]byte, 4)
	require.NoError(t, bus.ReadFromAddr(ctx, 0x77, buf))

	assert.Equal(t, []byte{0x03, 0x04, 0x05, 0x06}, buf)
	assert.Equal(t, []twitest.Op{
		{Kind: twitest.OpStart},
		{Kind: twitest.OpSend, Value: 0xEE},
		{Kind: twitest.OpSend, Value: 0x03},
		{Kind: twitest.OpStop},
		{Kind: twitest.OpStart},
		{Kind: twitest.OpSend, Value: 0xEF},
		{Kind: twitest.OpAck, Value: 0x03},
		{Kind: twitest.OpAck, Value: 0x04},
		{Kind: twitest.OpAck, Value: 0x05},
		{Kind: twitest.OpNack, Value: 0x06},
		{Kind: twitest.OpStop},
	}, sim.Ops())
}

func TestBus_NackStillStops(t *testing.T) {
	bus, sim, _ := newTestBus(t)
	err := bus.ReadRegister(context.Background(), 0x50, 0x00, make([]byte, 2))
	assert.ErrorIs(t, err, hpa.ErrNack)
	assert.Equal(t, 1, sim.Count(twitest.OpStart))
	assert.Equal(t, 1, sim.Count(twitest.OpStop))
}

func TestBus_StalledBusTimesOut(t *testing.T) {
	bus, sim, _ := newTestBus(t)
	sim.Stalled = true

	start := time.Now()
	err := bus.ReadRegister(context.Background(), 0x77, 0xAA, make([]byte, 22))
	assert.ErrorIs(t, err, hpa.ErrBusTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, sim.Ops())
}

func TestBus_EmptyRead(t *testing.T) {
	bus, sim, _ := newTestBus(t)
	assert.ErrorIs(t, bus.ReadRegister(context.Background(), 0x77, 0x00, nil), ErrEmptyRead)
	assert.ErrorIs(t, bus.ReadFromAddr(context.Background(), 0x77, []byte{}), ErrEmptyRead)
	assert.Empty(t, sim.Ops())
}

func TestBus_PeriphDev(t *testing.T) {
	bus, _, _ := newTestBus(t)
	dev := i2c.Dev{Bus: bus, Addr: 0x77}
	buf := make([]byte, 1)
	require.NoError(t, dev.Tx([]byte{0xD0}, buf))
	assert.Equal(t, byte(0xD0), buf[0])

	assert.Error(t, bus.Tx(0x3FF, nil, buf))
	assert.Error(t, bus.SetSpeed(0), "simulated transport has no speed")
}

func TestBus_TransactionsDoNotInterleave(t *testing.T) {
	bus, sim, _ := newTestBus(t)
	const workers = 8
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			assert.NoError(t, bus.ReadRegister(context.Background(), 0x77, 0xF6, make([]byte, 2)))
		}()
	}
	wg.Wait()

	ops := sim.Ops()
	require.Len(t, ops, workers*8)
	for i := 0; i < len(ops); i += 8 {
		kinds := []twitest.OpKind{}
		for _, op := range ops[i : i+8] {
			kinds = append(kinds, op.Kind)
		}
		assert.Equal(t, []twitest.OpKind{
			twitest.OpStart, twitest.OpSend, twitest.OpSend,
			twitest.OpStart, twitest.OpSend,
			twitest.OpAck, twitest.OpNack, twitest.OpStop,
		}, kinds)
	}
}

// stretchedTransport holds every byte until the deadline, as a slave
// stretching the clock would.
type stretchedTransport struct {
	stopped  bool
	stopErr  error
	deadline bool
}

func (s *stretchedTransport) Start(ctx context.Context) error { return nil }

func (s *stretchedTransport) Send(ctx context.Context, v byte) error {
	<-ctx.Done()
	return fmt.Errorf("%w: %w", hpa.ErrBusTimeout, ctx.Err())
}

func (s *stretchedTransport) Receive(ctx context.Context, ack bool) (byte, error) {
	return 0, nil
}

func (s *stretchedTransport) Stop(ctx context.Context) error {
	s.stopped = true
	s.stopErr = ctx.Err()
	_, s.deadline = ctx.Deadline()
	return nil
}

func TestBus_StopAfterTimeoutGetsItsOwnDeadline(t *testing.T) {
	tr := &stretchedTransport{}
	bus := NewBus(tr, WithTimeout(10*time.Millisecond))

	err := bus.WriteRegister(context.Background(), 0x77, 0xF4, 0x2E)
	assert.ErrorIs(t, err, hpa.ErrBusTimeout)
	require.True(t, tr.stopped)
	assert.NoError(t, tr.stopErr, "stop runs on a live context")
	assert.True(t, tr.deadline, "stop is still bounded")
}

func TestBus_StopAfterCallerCancel(t *testing.T) {
	tr := &stretchedTransport{}
	bus := NewBus(tr, WithTimeout(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := bus.WriteRegister(ctx, 0x77, 0xF4, 0x2E)
	assert.ErrorIs(t, err, hpa.ErrBusTimeout)
	require.True(t, tr.stopped)
	assert.NoError(t, tr.stopErr)
}
