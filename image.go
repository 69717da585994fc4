package mimasprog

import (
	"io"
	"os"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
)

// Gaps between Intel HEX records are filled with the erased flash value.
const imageFill = 0xFF

// ImageFormat selects how a source file becomes a flash image.
type ImageFormat int

const (
	// FormatRaw programs the file byte for byte, whatever its name.
	FormatRaw ImageFormat = iota
	// FormatHex parses the file as Intel HEX (.hex, .mcs) and flattens it
	// into an image starting at flash address 0.
	FormatHex
)

// LoadImage reads the bitstream to program in the given format.
func LoadImage(fileName string, format ImageFormat) ([]byte, error) {
	if format != FormatHex {
		return os.ReadFile(fileName)
	}
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return loadHex(file)
}

func loadHex(r io.Reader) ([]byte, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, errors.Wrap(err, "failed to parse hex file")
	}

	var end uint32
	for _, segment := range mem.GetDataSegments() {
		if e := segment.Address + uint32(len(segment.Data)); e > end {
			end = e
		}
		pkgLog.Debugf("loaded segment at %X length %v", segment.Address, len(segment.Data))
	}
	return mem.ToBinary(0, end, imageFill), nil
}
