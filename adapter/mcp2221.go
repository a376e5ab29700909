package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/hpa"
	"github.com/mklimuk/hpa/snsctx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

var ErrCommandUnsupported = errors.New("unsupported command")
var ErrCommandFailed = errors.New("command failed")

// HID command codes
const (
	cmdStatus           = 0x10
	cmdGetI2CData       = 0x40
	cmdWrite            = 0x90
	cmdRead             = 0x91
	cmdReadRepeated     = 0x93
	cmdWriteNoStop      = 0x94
	cmdSetSRAMSettings  = 0x60
	cmdGetSRAMSettings  = 0x61
	cmdGetGPIOParams    = 0xB0
	cmdSetGPIOParams    = 0xB1
	sramAlterGPIO       = 0x80
	sramGPIOOffset      = 22
	subCancelTransfer   = 0x10
	subSetSpeed         = 0x20
	getDataMaxPayload   = 60
	clockHz             = 12_000_000
	defaultSpeedHz      = 100_000
	statusADCOffset     = 50
	adcChannels         = 3
	responseFailureFlag = 0x01
)

type MCP2221 struct {
	mx           sync.Mutex
	request      []byte
	response     []byte
	responseWait time.Duration
	speed        int
}

type MCP2221Status struct {
	I2CDataBufferCounter   int       `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int       `yaml:"i2c_speed_divider"`
	I2CTimeout             int       `yaml:"i2c_timeout"`
	CurrentAddress         string    `yaml:"current_address"`
	LastWriteRequestedSize uint16    `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16    `yaml:"last_write_sent_size"`
	ReadPending            int       `yaml:"read_pending"`
	ADC                    [3]uint16 `yaml:"adc"`
}

type GPIOMode byte

const (
	GPIOModeOut         GPIOMode = 0b00000000
	GPIOModeIn          GPIOMode = 0b00001000
	GPIOModeNoOperation GPIOMode = 0xEF
)

func (m GPIOMode) String() string {
	switch m {
	case GPIOModeIn:
		return "INPUT"
	case GPIOModeOut:
		return "OUTPUT"
	default:
		return "NOOP"
	}
}

type GPIODesignation byte

const (
	GPIOOperation GPIODesignation = 0b00000000
	// This is the alternate function 0 of GPIO1
	GPIO1ADC1 GPIODesignation = 0b00000010
	// This is the alternate function 0 of GPIO2
	GPIO2ADC2 GPIODesignation = 0b00000010
	// This is the alternate function 0 of GPIO3
	GPIO3ADC3 GPIODesignation = 0b00000010
)

const gpioModeMask = 0b00001000
const gpioOperationMask = 0b00000111

type MCP2221GPIOParameters struct {
	GPIO0Mode        GPIOMode        `yaml:"GP0_mode"`
	GPIO0Designation GPIODesignation `yaml:"GP0_designation"`
	GPIO1Mode        GPIOMode        `yaml:"GP1_mode"`
	GPIO1Designation GPIODesignation `yaml:"GP1_designation"`
	GPIO2Mode        GPIOMode        `yaml:"GP2_mode"`
	GPIO2Designation GPIODesignation `yaml:"GP2_designation"`
	GPIO3Mode        GPIOMode        `yaml:"GP3_mode"`
	GPIO3Designation GPIODesignation `yaml:"GP3_designation"`
}

var _ hpa.RegisterBus = &MCP2221{}

type MCP2221Opt func(*MCP2221)

// WithSpeed sets the I2C clock applied by Init, in Hz.
func WithSpeed(hz int) MCP2221Opt {
	return func(d *MCP2221) {
		d.speed = hz
	}
}

func WithResponseWait(wait time.Duration) MCP2221Opt {
	return func(d *MCP2221) {
		d.responseWait = wait
	}
}

func NewMCP2221(opts ...MCP2221Opt) *MCP2221 {
	d := &MCP2221{
		request:      make([]byte, 64),
		response:     make([]byte, 64),
		responseWait: 50 * time.Millisecond,
		speed:        defaultSpeedHz,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Init cancels any transfer left pending in the bridge and sets the bus clock.
func (d *MCP2221) Init(ctx context.Context) error {
	if d.speed <= 0 || d.speed > clockHz/4 {
		return fmt.Errorf("unsupported i2c speed %d Hz", d.speed)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	if _, err := d.releaseBus(ctx); err != nil {
		return fmt.Errorf("could not cancel pending transfer: %w", err)
	}
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[3] = subSetSpeed
	d.request[4] = speedDivider(d.speed)
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("set speed request failed: %w", err)
	}
	// byte 3 echoes 0x20 when the new speed was accepted
	if d.response[3] != subSetSpeed {
		return fmt.Errorf("speed %d Hz rejected: %w", d.speed, hpa.ErrBusBusy)
	}
	return nil
}

func speedDivider(hz int) byte {
	return byte(clockHz/hz - 3)
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	err := d.write(ctx, cmdWrite, address, buffer)
	if err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	err := d.read(ctx, cmdRead, address, buffer)
	if err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	return nil
}

// ReadRegister writes the register pointer without a stop and reads back
// with a repeated start, which is what the bridge's 0x94/0x93 pair does.
func (d *MCP2221) ReadRegister(ctx context.Context, address byte, register byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	err := d.write(ctx, cmdWriteNoStop, address, []byte{register})
	if err != nil {
		return fmt.Errorf("register %#x select on %x failed: %w", register, address, err)
	}
	err = d.read(ctx, cmdReadRepeated, address, buffer)
	if err != nil {
		return fmt.Errorf("register %#x read from %x failed: %w", register, address, err)
	}
	return nil
}

func (d *MCP2221) WriteRegister(ctx context.Context, address byte, register byte, data ...byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	err := d.write(ctx, cmdWrite, address, append([]byte{register}, data...))
	if err != nil {
		return fmt.Errorf("register %#x write to %x failed: %w", register, address, err)
	}
	return nil
}

func (d *MCP2221) write(ctx context.Context, cmd byte, address byte, buffer []byte) error {
	if len(buffer) > getDataMaxPayload {
		return fmt.Errorf("write of %d bytes exceeds single report", len(buffer))
	}
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	if len(buffer) > 0 {
		copy(d.request[4:], buffer)
	}
	err := d.send(ctx, true)
	if err != nil {
		return err
	}
	// write could not be performed
	if d.response[1] == responseFailureFlag {
		slog.Debug("adapter busy", "address", address)
		return hpa.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) read(ctx context.Context, cmd byte, address byte, buffer []byte) error {
	if len(buffer) == 0 || len(buffer) > getDataMaxPayload {
		return fmt.Errorf("unsupported read size %d", len(buffer))
	}
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	err := d.send(ctx, true)
	if err != nil {
		return err
	}
	if d.response[1] == responseFailureFlag {
		return hpa.ErrBusBusy
	}
	d.request[0] = cmdGetI2CData
	resetBuffer(d.response)
	err = d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == 0x41 {
		return fmt.Errorf("error reading the I2C slave data from the I2C engine")
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:])
	return nil
}

// SetGPIOParameters writes the power-up GP settings to flash. They take
// effect after the bridge is reset.
func (d *MCP2221) SetGPIOParameters(ctx context.Context, params MCP2221GPIOParameters) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdSetGPIOParams
	d.request[1] = 0x01
	copy(d.request[2:6], encodeGPIO(params))
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("set GP parameters command write failed: %w", err)
	}
	if d.response[1] == responseFailureFlag {
		return ErrCommandFailed
	}
	return nil
}

// GetGPIOParameters reads the power-up GP settings from flash.
func (d *MCP2221) GetGPIOParameters(ctx context.Context) (MCP2221GPIOParameters, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdGetGPIOParams
	d.request[1] = 0x01
	err := d.send(ctx, true)
	if err != nil {
		return MCP2221GPIOParameters{}, fmt.Errorf("get GP parameters command write failed: %w", err)
	}
	if d.response[1] == responseFailureFlag {
		return MCP2221GPIOParameters{}, ErrCommandUnsupported
	}
	return decodeGPIO(d.response[4:8]), nil
}

// SetGPIOSettings changes the running GP settings in SRAM. Flash is left untouched.
func (d *MCP2221) SetGPIOSettings(ctx context.Context, params MCP2221GPIOParameters) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	encodeSRAMGPIO(d.request, params)
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("set SRAM settings command write failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return ErrCommandFailed
	}
	return nil
}

// GetGPIOSettings reads the running GP settings from SRAM.
func (d *MCP2221) GetGPIOSettings(ctx context.Context) (MCP2221GPIOParameters, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdGetSRAMSettings
	err := d.send(ctx, true)
	if err != nil {
		return MCP2221GPIOParameters{}, fmt.Errorf("get SRAM settings command write failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return MCP2221GPIOParameters{}, ErrCommandUnsupported
	}
	return decodeGPIO(d.response[sramGPIOOffset : sramGPIOOffset+4]), nil
}

// encodeSRAMGPIO fills a set SRAM settings request that alters only the GP
// settings; clock, DAC, ADC reference and interrupt bytes keep bit 7 clear.
func encodeSRAMGPIO(request []byte, params MCP2221GPIOParameters) {
	request[0] = cmdSetSRAMSettings
	request[7] = sramAlterGPIO
	copy(request[8:12], encodeGPIO(params))
}

func encodeGPIO(params MCP2221GPIOParameters) []byte {
	return []byte{
		byte(params.GPIO0Designation) | byte(params.GPIO0Mode),
		byte(params.GPIO1Designation) | byte(params.GPIO1Mode),
		byte(params.GPIO2Designation) | byte(params.GPIO2Mode),
		byte(params.GPIO3Designation) | byte(params.GPIO3Mode),
	}
}

// decodeGPIO reads the four GP setting bytes, GP0 first.
func decodeGPIO(gp []byte) MCP2221GPIOParameters {
	return MCP2221GPIOParameters{
		GPIO0Mode:        GPIOMode(gp[0] & gpioModeMask),
		GPIO0Designation: GPIODesignation(gp[0] & gpioOperationMask),
		GPIO1Mode:        GPIOMode(gp[1] & gpioModeMask),
		GPIO1Designation: GPIODesignation(gp[1] & gpioOperationMask),
		GPIO2Mode:        GPIOMode(gp[2] & gpioModeMask),
		GPIO2Designation: GPIODesignation(gp[2] & gpioOperationMask),
		GPIO3Mode:        GPIOMode(gp[3] & gpioModeMask),
		GPIO3Designation: GPIODesignation(gp[3] & gpioOperationMask),
	}
}

// ADCEnabled reports whether GP1..GP3 are all designated as analog inputs.
func (p MCP2221GPIOParameters) ADCEnabled() bool {
	return p.GPIO1Designation == GPIO1ADC1 && p.GPIO2Designation == GPIO2ADC2 && p.GPIO3Designation == GPIO3ADC3
}

func withADC(params MCP2221GPIOParameters) MCP2221GPIOParameters {
	params.GPIO1Designation, params.GPIO1Mode = GPIO1ADC1, GPIOModeIn
	params.GPIO2Designation, params.GPIO2Mode = GPIO2ADC2, GPIOModeIn
	params.GPIO3Designation, params.GPIO3Mode = GPIO3ADC3, GPIOModeIn
	return params
}

// EnableADC switches GP1..GP3 to their analog input function in SRAM. It
// writes nothing when they already are.
func (d *MCP2221) EnableADC(ctx context.Context) error {
	params, err := d.GetGPIOSettings(ctx)
	if err != nil {
		return err
	}
	if params.ADCEnabled() {
		return nil
	}
	return d.SetGPIOSettings(ctx, withADC(params))
}

// PersistADC stores the analog designations in flash so the bridge comes up
// with them after a reset. Flash is only written when it differs.
func (d *MCP2221) PersistADC(ctx context.Context) error {
	params, err := d.GetGPIOParameters(ctx)
	if err != nil {
		return err
	}
	if params.ADCEnabled() {
		return nil
	}
	return d.SetGPIOParameters(ctx, withADC(params))
}

// ReadADC returns the last 10-bit conversion of channel 1..3 reported in the status response.
func (d *MCP2221) ReadADC(ctx context.Context, channel int) (uint16, error) {
	if channel < 1 || channel > adcChannels {
		return 0, fmt.Errorf("invalid ADC channel %d", channel)
	}
	status, err := d.Status(ctx)
	if err != nil {
		return 0, err
	}
	return status.ADC[channel-1], nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	err := d.send(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
		50..55: ADC channel 0..2 values, little endian
	*/
	status := &MCP2221Status{
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	for i := range status.ADC {
		off := statusADCOffset + 2*i
		status.ADC[i] = binary.LittleEndian.Uint16(buffer[off : off+2])
	}
	return status
}

func (d *MCP2221) Release(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	_, err := d.releaseBus(ctx)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.releaseBus(ctx)
}

func (d *MCP2221) releaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = subCancelTransfer
	err := d.send(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

// Devices lists the bridges currently attached over USB.
func Devices() []hid.DeviceInfo {
	return hid.Enumerate(VendorID, ProductID)
}

func (d *MCP2221) send(ctx context.Context, response bool) error {
	devs := Devices()
	if len(devs) > 1 {
		return fmt.Errorf("ambiguous device identification")
	}
	if len(devs) == 0 {
		return fmt.Errorf("MCP2221 device not found")
	}
	dev, err := devs[0].Open()
	if err != nil {
		return fmt.Errorf("error opening device: %w", err)
	}
	defer func() {
		_ = dev.Close()
	}()
	verbose := snsctx.IsVerbose(ctx)
	if verbose {
		slog.Debug("sending message to adapter", "request", hex.Dump(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short write: %d", n)
	}
	if !response {
		return nil
	}
	timer := time.NewTimer(d.responseWait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", hpa.ErrBusTimeout, ctx.Err())
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		slog.Debug("read message from adapter", "response", hex.Dump(d.response))
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	resetBuffer(d.request)
	resetBuffer(d.response)
}

func resetBuffer(buf []byte) {
	for i := range buf {
		buf[i] = 0x00
	}
}
