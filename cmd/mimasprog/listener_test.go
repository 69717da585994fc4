package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestConsoleListenerProgress(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	l := newConsoleListener(&out)

	l.UpdateTitle("Programming FPGA Board ...")
	l.InitProgress(512)
	l.UpdateProgress(256)
	l.UpdateProgress(257)
	l.UpdateProgress(512)
	l.ErrorMessage("unknown flash part: '261f'")

	assert.Equal(t, "Programming FPGA Board ...\n\r 50%\r100%\nunknown flash part: '261f'\n", out.String())
}
