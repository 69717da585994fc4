package mimasprog

import (
	"bytes"
	"time"

	"github.com/pkg/errors"
)

// M25P16 instruction set.
const (
	flashReadID       = 0x9F
	flashWriteEnable  = 0x06
	flashReadStatus   = 0x05
	flashSectorErase  = 0xD8
	flashPageProgram  = 0x02
	flashRead         = 0x03
	statusWriteInProg = 0x01
)

// Flash geometry.
const (
	SectorSize = 0x10000
	PageSize   = 0x100
	// FlashSize is the capacity of the M25P16 in bytes.
	FlashSize = 0x200000

	// DeviceIDM25P16 is the READ ID response of the Micron M25P16,
	// manufacturer in the low byte.
	DeviceIDM25P16 = 0x152020

	pollInterval = 10 * time.Millisecond
)

// ProgressFunc receives the amount of work done so far.
type ProgressFunc func(value int)

// Flash drives the M25P16 16 Mbit SPI NOR flash through the bridge.
type Flash struct {
	bridge *Bridge
}

// NewFlash creates a flash driver on top of a bridge.
func NewFlash(b *Bridge) *Flash {
	return &Flash{bridge: b}
}

// ReadDeviceID returns the three identification bytes combined with the
// first byte in the low position.
func (f *Flash) ReadDeviceID() (uint32, error) {
	if err := f.bridge.ToggleCS(); err != nil {
		return 0, err
	}
	if err := f.bridge.SendByte(flashReadID); err != nil {
		return 0, err
	}
	if err := f.bridge.Transport().FlushInput(); err != nil {
		return 0, err
	}
	data, err := f.bridge.GetBytes(3)
	if err != nil {
		return 0, errors.Wrap(err, "read device id")
	}
	return uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16, nil
}

// WriteEnable sets the write enable latch. The part clears it after every
// erase or program, so each of those needs a fresh call.
func (f *Flash) WriteEnable() error {
	if err := f.bridge.ToggleCS(); err != nil {
		return err
	}
	if err := f.bridge.SendByte(flashWriteEnable); err != nil {
		return err
	}
	return f.bridge.ReleaseCS()
}

// ReadStatus returns the status register.
func (f *Flash) ReadStatus() (byte, error) {
	if err := f.bridge.ToggleCS(); err != nil {
		return 0, err
	}
	if err := f.bridge.SendByte(flashReadStatus); err != nil {
		return 0, err
	}
	if err := f.bridge.Transport().FlushInput(); err != nil {
		return 0, err
	}
	data, err := f.bridge.GetBytes(1)
	if err != nil {
		return 0, errors.Wrap(err, "read status")
	}
	return data[0], nil
}

// WaitReady polls the status register until the write-in-progress bit clears.
// There is no retry limit: an erase or program always finishes in hardware.
func (f *Flash) WaitReady() error {
	for {
		status, err := f.ReadStatus()
		if err != nil {
			return err
		}
		if status&statusWriteInProg == 0 {
			return nil
		}
		time.Sleep(pollInterval)
	}
}

func (f *Flash) sendAddress(address uint32) error {
	for _, b := range []byte{byte(address >> 16), byte(address >> 8), byte(address)} {
		if err := f.bridge.SendByte(b); err != nil {
			return err
		}
	}
	return nil
}

// EraseBound returns endAddress rounded up to the last byte of its sector,
// limited to the last byte of the flash.
func EraseBound(endAddress uint32) uint32 {
	bound := endAddress | (SectorSize - 1)
	if bound >= FlashSize {
		bound = FlashSize - 1
	}
	return bound
}

// SectorErase erases the sectors from address 0 up to EraseBound(endAddress),
// waiting for each erase to finish. progress, when not nil, receives the
// address erased up to.
func (f *Flash) SectorErase(endAddress uint32, progress ProgressFunc) error {
	bound := EraseBound(endAddress)
	for addr := uint32(0); addr < bound; addr += SectorSize {
		if err := f.WriteEnable(); err != nil {
			return err
		}
		if err := f.bridge.ToggleCS(); err != nil {
			return err
		}
		if err := f.bridge.SendByte(flashSectorErase); err != nil {
			return err
		}
		if err := f.sendAddress(addr); err != nil {
			return err
		}
		if err := f.bridge.ReleaseCS(); err != nil {
			return err
		}
		if err := f.WaitReady(); err != nil {
			return errors.Wrapf(err, "erase sector %X", addr)
		}
		pkgLog.Debugf("erased sector at %X", addr)
		if progress != nil {
			done := addr + SectorSize
			if done > bound {
				done = bound
			}
			progress(int(done))
		}
	}
	return nil
}

// PageProgram writes at most one page at address. The caller must wait for
// the program to complete before issuing the next command.
func (f *Flash) PageProgram(data []byte, address uint32) error {
	if len(data) > PageSize {
		return protocolErrorf("buffer too large: page holds %v bytes, got %v", PageSize, len(data))
	}
	if err := f.WriteEnable(); err != nil {
		return err
	}
	if err := f.bridge.ToggleCS(); err != nil {
		return err
	}
	if err := f.bridge.SendByte(flashPageProgram); err != nil {
		return err
	}
	if err := f.sendAddress(address); err != nil {
		return err
	}
	for len(data) > 0 {
		chunk := data
		if len(chunk) > maxPutString {
			chunk = data[:maxPutString]
		}
		if err := f.bridge.SendBytes(chunk); err != nil {
			return errors.Wrapf(err, "program page at %X", address)
		}
		data = data[len(chunk):]
	}
	return f.bridge.ReleaseCS()
}

// readChunks starts a READ at address and hands each received chunk of at
// most 32 bytes to fn together with its offset. fn stops the read early by
// returning false.
func (f *Flash) readChunks(address uint32, length int, fn func(offset int, chunk []byte) bool) error {
	if err := f.bridge.ToggleCS(); err != nil {
		return err
	}
	if err := f.bridge.SendByte(flashRead); err != nil {
		return err
	}
	if err := f.sendAddress(address); err != nil {
		return err
	}
	if err := f.bridge.Transport().FlushInput(); err != nil {
		return err
	}
	for offset := 0; offset < length; {
		count := length - offset
		if count > maxGetString {
			count = maxGetString
		}
		chunk, err := f.bridge.GetBytes(count)
		if err != nil {
			return errors.Wrapf(err, "read flash at %X", address+uint32(offset))
		}
		if !fn(offset, chunk) {
			return nil
		}
		offset += count
	}
	return nil
}

// Read returns length bytes of flash starting at address.
func (f *Flash) Read(address uint32, length int) ([]byte, error) {
	data := make([]byte, 0, length)
	err := f.readChunks(address, length, func(_ int, chunk []byte) bool {
		data = append(data, chunk...)
		return true
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Verify compares the flash, starting at address 0, against image and
// returns a *VerificationError for the first chunk that differs. progress,
// when not nil, receives the number of bytes compared.
func (f *Flash) Verify(image []byte, progress ProgressFunc) error {
	mismatch := -1
	err := f.readChunks(0, len(image), func(offset int, chunk []byte) bool {
		if !bytes.Equal(chunk, image[offset:offset+len(chunk)]) {
			mismatch = offset
			return false
		}
		if progress != nil {
			progress(offset + len(chunk))
		}
		return true
	})
	if err != nil {
		return err
	}
	if mismatch >= 0 {
		return &VerificationError{Offset: mismatch}
	}
	return nil
}

// VerifyRange reports whether the flash, starting at address 0, holds image.
func (f *Flash) VerifyRange(image []byte, progress ProgressFunc) (bool, error) {
	err := f.Verify(image, progress)
	var verr *VerificationError
	if errors.As(err, &verr) {
		return false, nil
	}
	return err == nil, err
}
