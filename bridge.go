// Package mimasprog programs the SPI configuration flash of a Mimas V2 FPGA
// board through the board's USB serial bridge.
//
// The package is layered the same way the data travels. Transport frames
// commands into fixed 70 byte packets. Bridge maps SPI and GPIO operations on
// the remote microcontroller onto those packets. Flash drives the M25P16 SPI
// flash through the bridge, and Programmer sequences detection, erase,
// program, verify and reset, reporting to a Listener.
//
// A command line host program is found in the cmd/mimasprog directory.
package mimasprog

import (
	"fmt"

	"github.com/pkg/errors"
)

// Bridge packet types.
const (
	commandSPIOpen       = 0x00
	commandSPIClose      = 0x01
	commandSPIGetString  = 0x02
	commandSPIPutString  = 0x03
	commandSPIPutChar    = 0x07
	commandSPISetIODir   = 0x08
	commandSPISetIOValue = 0x09
)

const (
	spiUnit           = 0x01
	spiSyncModeFosc64 = 0x02
	spiBusMode00      = 0x00
	spiSampleMiddle   = 0x00

	maxPutString = 64
	maxGetString = DataFrameSize - DataFrameHeader
)

// Pin identifies one of the bridge's GPIO lines.
type Pin uint8

// Configuration pins wired between the bridge and the FPGA.
const (
	PinSI Pin = iota
	PinSO
	PinCS
	PinCLK
	PinPROGB
	PinDONE
	PinINITB
)

var pinNames = [...]string{"SI", "SO", "CS", "CLK", "PROGB", "DONE", "INITB"}

func (p Pin) String() string {
	if int(p) < len(pinNames) {
		return pinNames[p]
	}
	return fmt.Sprintf("Pin(%d)", uint8(p))
}

// Direction of a GPIO line.
type Direction uint8

// Pin directions understood by the bridge.
const (
	Output Direction = 0
	Input  Direction = 1
)

// command is one bridge request: a packet type followed by its arguments.
type command struct {
	packetType byte
	args       []byte
}

// bytes returns the frame payload: sync, packet type, SPI unit, arguments.
func (c command) bytes() []byte {
	b := []byte{SyncByte, c.packetType, spiUnit}
	return append(b, c.args...)
}

func newSPIOpenCommand() command {
	return command{packetType: commandSPIOpen, args: []byte{spiSyncModeFosc64, spiBusMode00, spiSampleMiddle}}
}

func newSPICloseCommand() command {
	return command{packetType: commandSPIClose}
}

func newSetIODirectionCommand(pin Pin, dir Direction) command {
	return command{packetType: commandSPISetIODir, args: []byte{byte(pin), byte(dir)}}
}

func newSetIOValueCommand(pin Pin, value byte) command {
	return command{packetType: commandSPISetIOValue, args: []byte{byte(pin), value}}
}

func newPutCharCommand(b byte) command {
	return command{packetType: commandSPIPutChar, args: []byte{b}}
}

func newPutStringCommand(data []byte) command {
	args := append([]byte{byte(len(data)), 0, 0}, data...)
	return command{packetType: commandSPIPutString, args: args}
}

func newGetStringCommand(length int) command {
	return command{packetType: commandSPIGetString, args: []byte{byte(length)}}
}

// Bridge exposes the SPI unit and GPIO lines of the board's bridge controller.
type Bridge struct {
	t *Transport
}

// NewBridge creates a bridge speaking over the given transport.
func NewBridge(t *Transport) *Bridge {
	return &Bridge{t: t}
}

// Transport returns the transport the bridge sends frames on.
func (b *Bridge) Transport() *Transport {
	return b.t
}

func (b *Bridge) send(c command) error {
	return b.t.SendCommand(c.bytes())
}

// SPIOpen sets up the bridge's SPI peripheral.
func (b *Bridge) SPIOpen() error {
	return errors.Wrap(b.send(newSPIOpenCommand()), "spi open")
}

// SPIClose releases the bridge's SPI peripheral.
func (b *Bridge) SPIClose() error {
	return errors.Wrap(b.send(newSPICloseCommand()), "spi close")
}

// SetIODirection configures a GPIO line as input or output.
func (b *Bridge) SetIODirection(pin Pin, dir Direction) error {
	return errors.Wrapf(b.send(newSetIODirectionCommand(pin, dir)), "set %v direction", pin)
}

// SetIOValue drives a GPIO line low (0) or high (1).
func (b *Bridge) SetIOValue(pin Pin, value byte) error {
	return errors.Wrapf(b.send(newSetIOValueCommand(pin, value)), "set %v value", pin)
}

// SendByte clocks a single byte out on SPI.
func (b *Bridge) SendByte(v byte) error {
	return errors.Wrap(b.send(newPutCharCommand(v)), "spi send byte")
}

// SendBytes clocks out a block of at most 64 bytes on SPI.
func (b *Bridge) SendBytes(data []byte) error {
	if len(data) > maxPutString {
		return protocolErrorf("spi block of %v bytes exceeds %v", len(data), maxPutString)
	}
	return errors.Wrap(b.send(newPutStringCommand(data)), "spi send bytes")
}

// GetBytes clocks in length bytes (at most 32) from SPI.
func (b *Bridge) GetBytes(length int) ([]byte, error) {
	if length > maxGetString {
		return nil, protocolErrorf("spi read of %v bytes exceeds %v", length, maxGetString)
	}
	if err := b.send(newGetStringCommand(length)); err != nil {
		return nil, errors.Wrap(err, "spi get bytes")
	}
	resp, err := b.t.ReadExact(DataFrameSize)
	if err != nil {
		return nil, errors.Wrap(err, "spi get bytes")
	}
	if len(resp) != DataFrameSize {
		return nil, protocolErrorf("error on get bytes: expected byte count %v, received %v", DataFrameSize, len(resp))
	}
	data := make([]byte, length)
	copy(data, resp[DataFrameHeader:DataFrameHeader+length])
	return data, nil
}

// ToggleCS pulses chip select: output, high, then low. Every flash
// transaction starts with this pulse.
func (b *Bridge) ToggleCS() error {
	if err := b.SetIODirection(PinCS, Output); err != nil {
		return err
	}
	if err := b.SetIOValue(PinCS, 1); err != nil {
		return err
	}
	return b.SetIOValue(PinCS, 0)
}

// ReleaseCS de-asserts chip select, ending the current flash transaction.
func (b *Bridge) ReleaseCS() error {
	return b.SetIOValue(PinCS, 1)
}
