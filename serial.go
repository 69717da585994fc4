package mimasprog

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// Serial parameters expected by the bridge firmware.
const (
	BaudRate    = 115200
	ReadTimeout = 2000 * time.Millisecond
)

// Channel is the duplex byte stream connecting the host to the bridge.
// Reads must return after the configured read timeout even when no data
// arrived. Flush discards any data queued on the receive path.
type Channel interface {
	io.ReadWriteCloser
	Flush() error
}

// OpenChannel opens the named serial port with the bridge's fixed
// 115200-8-N-1 settings and a 2 second read timeout.
func OpenChannel(port string) (Channel, error) {
	config := &serial.Config{
		Name:        port,
		Baud:        BaudRate,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: ReadTimeout,
	}
	p, err := serial.OpenPort(config)
	if err != nil {
		return nil, &TransportError{Op: "open " + port, Err: err}
	}
	// On Linux with USB serial ports, in order for flush to work properly
	// we need to delay a little before flushing to make sure that any
	// received data has made its way up the driver stack.
	time.Sleep(time.Millisecond * 100)
	if err := p.Flush(); err != nil {
		p.Close()
		return nil, &TransportError{Op: "flush " + port, Err: errors.WithStack(err)}
	}
	pkgLog.Debugf("opened %v at %v baud", port, BaudRate)
	return p, nil
}
