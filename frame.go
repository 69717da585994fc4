package mimasprog

import (
	"io"
	"time"
)

// Frame layout of the bridge protocol.
const (
	SyncByte = 0x7E

	// CommandFrameSize is the fixed length of every frame sent to the bridge.
	CommandFrameSize = 70
	// DataFrameSize is the fixed length of a "get string" response.
	DataFrameSize = 38
	// DataFrameHeader is the number of bytes preceding the payload in a data frame.
	DataFrameHeader = 6

	// The bridge cannot receive more than this in one transaction.
	maxWriteChunk = 30
	framePadding  = ' '
	flushDelay    = 10 * time.Millisecond
)

// BuildCommandFrame pads payload with spaces to CommandFrameSize bytes.
// Payloads longer than a frame are rejected.
func BuildCommandFrame(payload []byte) ([]byte, error) {
	if len(payload) > CommandFrameSize {
		return nil, protocolErrorf("command of %v bytes exceeds the %v byte frame", len(payload), CommandFrameSize)
	}
	frame := make([]byte, CommandFrameSize)
	n := copy(frame, payload)
	for i := n; i < len(frame); i++ {
		frame[i] = framePadding
	}
	return frame, nil
}

// Transport moves fixed-size frames over a Channel.
type Transport struct {
	ch Channel
}

// NewTransport creates a transport over an opened channel.
func NewTransport(ch Channel) *Transport {
	return &Transport{ch: ch}
}

// SendRaw writes data in chunks of at most 30 bytes and returns the number of bytes written.
func (t *Transport) SendRaw(data []byte) (int, error) {
	written := 0
	for len(data) > 0 {
		chunk := data
		if len(chunk) > maxWriteChunk {
			chunk = data[:maxWriteChunk]
		}
		n, err := t.ch.Write(chunk)
		written += n
		if err != nil {
			return written, &TransportError{Op: "write", Err: err}
		}
		data = data[len(chunk):]
	}
	return written, nil
}

// SendCommand frames payload and transmits it.
func (t *Transport) SendCommand(payload []byte) error {
	frame, err := BuildCommandFrame(payload)
	if err != nil {
		return err
	}
	n, err := t.SendRaw(frame)
	if err != nil {
		return err
	}
	if n != CommandFrameSize {
		return protocolErrorf("short write: sent %v bytes, expected %v", n, CommandFrameSize)
	}
	pkgLog.Debugf("sent command % X", payload)
	return nil
}

// ReadExact reads up to n bytes, stopping early when the channel's read
// timeout elapses. A short result is not an error; callers check the length.
func (t *Transport) ReadExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := t.ch.Read(buf[got:])
		got += m
		if err == io.EOF || (err == nil && m == 0) {
			// Read timed out.
			break
		}
		if err != nil {
			return buf[:got], &TransportError{Op: "read", Err: err}
		}
	}
	return buf[:got], nil
}

// FlushInput waits for in-flight responses to settle and discards them.
func (t *Transport) FlushInput() error {
	time.Sleep(flushDelay)
	if err := t.ch.Flush(); err != nil {
		return &TransportError{Op: "flush", Err: err}
	}
	return nil
}

// Close closes the underlying channel.
func (t *Transport) Close() error {
	if err := t.ch.Close(); err != nil {
		return &TransportError{Op: "close", Err: err}
	}
	return nil
}
