package mimasprog

import (
	"fmt"
)

// TransportError reports a failure of the underlying channel.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed exchange with the bridge: a short write,
// an unexpected response length or a request the protocol cannot carry.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Message
}

func protocolErrorf(format string, args ...interface{}) error {
	return &ProtocolError{Message: fmt.Sprintf(format, args...)}
}

// DetectionError indicates that the flash part on the board is not the supported one.
type DetectionError struct {
	Expected uint32
	Actual   uint32
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("unknown flash part: '%x'", e.Actual)
}

// VerificationError indicates that the flash contents differ from the image.
// Offset is the start of the first chunk that did not match.
type VerificationError struct {
	Offset int
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("flash verification failed at offset %X", e.Offset)
}
