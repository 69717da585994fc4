package mimasprog

import (
	"bytes"
	"io"
)

// bufferChannel is a Channel backed by buffers. Reads return io.EOF when
// nothing is queued, the way a serial port reports a read timeout.
type bufferChannel struct {
	rx       bytes.Buffer
	tx       bytes.Buffer
	writes   []int
	writeErr error
	// Accept at most this many bytes per write when positive.
	writeLimit int
	flushes    int
	closed     int
}

func (c *bufferChannel) Read(p []byte) (int, error) {
	if c.rx.Len() == 0 {
		return 0, io.EOF
	}
	return c.rx.Read(p)
}

func (c *bufferChannel) Write(p []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	if c.writeLimit > 0 && len(p) > c.writeLimit {
		p = p[:c.writeLimit]
	}
	c.writes = append(c.writes, len(p))
	return c.tx.Write(p)
}

func (c *bufferChannel) Flush() error {
	c.flushes++
	c.rx.Reset()
	return nil
}

func (c *bufferChannel) Close() error {
	c.closed++
	return nil
}

// fakeBridge simulates the bridge firmware with an M25P16 attached. It
// reassembles command frames from the written chunks, answers them the way
// the firmware does and models the flash array.
type fakeBridge struct {
	bufferChannel

	id [3]byte
	// Number of status reads reporting busy after each erase or program.
	busyPolls int
	// Truncate "get string" responses to this many bytes when positive.
	shortResponse int
	// Flip the bits of data read back from the flash.
	corruptReads bool
	// Fail every write once this many frames have been received.
	failAfterFrames int

	pending []byte
	frames  [][]byte

	flash     []byte
	pins      map[Pin]byte
	dirs      map[Pin]Direction
	csLow     bool
	spi       []byte
	readPos   int
	wel       bool
	busy      int
	statusReq int

	erases   []uint32
	programs []uint32
	spiCmds  []byte
}

func newFakeBridge() *fakeBridge {
	b := &fakeBridge{
		id:    [3]byte{0x20, 0x20, 0x15},
		flash: bytes.Repeat([]byte{0xFF}, 2*1024*1024),
		pins:  map[Pin]byte{},
		dirs:  map[Pin]Direction{},
	}
	return b
}

func (b *fakeBridge) Write(p []byte) (int, error) {
	if b.failAfterFrames > 0 && len(b.frames) >= b.failAfterFrames {
		return 0, io.ErrClosedPipe
	}
	n, err := b.bufferChannel.Write(p)
	if err != nil {
		return n, err
	}
	b.pending = append(b.pending, p[:n]...)
	for len(b.pending) >= CommandFrameSize {
		frame := append([]byte(nil), b.pending[:CommandFrameSize]...)
		b.pending = b.pending[CommandFrameSize:]
		b.handle(frame)
	}
	return n, nil
}

func (b *fakeBridge) reply(p []byte) {
	b.rx.Write(p)
}

func (b *fakeBridge) handle(frame []byte) {
	b.frames = append(b.frames, frame)
	op := frame[1]
	switch op {
	case commandSPISetIODir:
		b.dirs[Pin(frame[3])] = Direction(frame[4])
	case commandSPISetIOValue:
		pin, value := Pin(frame[3]), frame[4]
		b.pins[pin] = value
		if pin == PinCS {
			if value == 1 {
				b.endTransaction()
			} else {
				b.csLow = true
				b.spi = nil
				b.readPos = 0
			}
		}
	case commandSPIPutChar:
		b.clockOut(frame[3])
	case commandSPIPutString:
		n := int(frame[3])
		for _, v := range frame[6 : 6+n] {
			b.clockOut(v)
		}
	case commandSPIGetString:
		b.getString(int(frame[3]))
		return
	}
	b.reply([]byte{SyncByte, 0x00, 0x00, 0x00, op})
}

func (b *fakeBridge) clockOut(v byte) {
	if !b.csLow {
		return
	}
	if len(b.spi) == 0 {
		b.spiCmds = append(b.spiCmds, v)
	}
	b.spi = append(b.spi, v)
}

func spiAddress(p []byte) uint32 {
	return uint32(p[0])<<16 | uint32(p[1])<<8 | uint32(p[2])
}

func (b *fakeBridge) endTransaction() {
	spi := b.spi
	b.csLow = false
	b.spi = nil
	if len(spi) == 0 {
		return
	}
	switch spi[0] {
	case flashWriteEnable:
		b.wel = true
	case flashSectorErase:
		if !b.wel || len(spi) != 4 {
			return
		}
		addr := spiAddress(spi[1:]) &^ (SectorSize - 1)
		copy(b.flash[addr:addr+SectorSize], bytes.Repeat([]byte{0xFF}, SectorSize))
		b.erases = append(b.erases, spiAddress(spi[1:]))
		b.wel = false
		b.busy = b.busyPolls
	case flashPageProgram:
		if !b.wel || len(spi) < 4 {
			return
		}
		addr := spiAddress(spi[1:])
		page := addr &^ (PageSize - 1)
		for i, v := range spi[4:] {
			pos := page + (addr+uint32(i))%PageSize
			b.flash[pos] &= v
		}
		b.programs = append(b.programs, addr)
		b.wel = false
		b.busy = b.busyPolls
	}
}

func (b *fakeBridge) getString(n int) {
	data := make([]byte, n)
	if len(b.spi) > 0 {
		switch b.spi[0] {
		case flashReadID:
			for i := range data {
				if b.readPos+i < len(b.id) {
					data[i] = b.id[b.readPos+i]
				}
			}
		case flashReadStatus:
			b.statusReq++
			if b.busy > 0 {
				b.busy--
				data[0] = statusWriteInProg
			}
		case flashRead:
			addr := int(spiAddress(b.spi[1:4])) + b.readPos
			copy(data, b.flash[addr:addr+n])
			if b.corruptReads {
				for i := range data {
					data[i] ^= 0xFF
				}
			}
		}
	}
	b.readPos += n

	resp := make([]byte, DataFrameSize)
	resp[0] = SyncByte
	resp[1] = 0x01
	resp[3] = byte(n)
	copy(resp[DataFrameHeader:], data)
	if b.shortResponse > 0 {
		resp = resp[:b.shortResponse]
	}
	b.reply(resp)
}

// framesOf returns the received frames with the given packet type.
func (b *fakeBridge) framesOf(op byte) [][]byte {
	var out [][]byte
	for _, f := range b.frames {
		if f[1] == op {
			out = append(out, f)
		}
	}
	return out
}

func (b *fakeBridge) newFlash() *Flash {
	return NewFlash(NewBridge(NewTransport(b)))
}

// stallChannel reports a read timeout as (0, nil) instead of io.EOF, the
// way tarm/serial does on Windows.
type stallChannel struct {
	bufferChannel
	reads int
}

func (c *stallChannel) Read(p []byte) (int, error) {
	c.reads++
	if c.rx.Len() == 0 {
		return 0, nil
	}
	return c.rx.Read(p)
}
