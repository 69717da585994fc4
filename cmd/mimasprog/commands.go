package main

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/amrbekhit/mimasprog"
	log "github.com/sirupsen/logrus"
)

// openFlash holds the FPGA in configuration mode and opens the SPI bus.
// The returned function releases the FPGA again.
func openFlash(ch mimasprog.Channel) (*mimasprog.Flash, func()) {
	bridge := mimasprog.NewBridge(mimasprog.NewTransport(ch))
	if err := bridge.SetIODirection(mimasprog.PinPROGB, mimasprog.Output); err != nil {
		log.Fatal(err)
	}
	if err := bridge.SetIOValue(mimasprog.PinPROGB, 0); err != nil {
		log.Fatal(err)
	}
	if err := bridge.SPIOpen(); err != nil {
		log.Fatal(err)
	}
	release := func() {
		if err := bridge.SPIClose(); err != nil {
			log.Warnf("failed to close spi: %v", err)
		}
		if err := bridge.SetIODirection(mimasprog.PinCS, mimasprog.Input); err != nil {
			log.Warnf("failed to release CS: %v", err)
		}
		if err := bridge.SetIOValue(mimasprog.PinPROGB, 1); err != nil {
			log.Warnf("failed to release PROGB: %v", err)
		}
	}
	return mimasprog.NewFlash(bridge), release
}

func processReadID(f *mimasprog.Flash, args []string) {
	id, err := f.ReadDeviceID()
	if err != nil {
		log.Fatalf("failed to read device id: %v", err)
	}
	log.Infof("device id: %06X (supported: %v)", id, id == mimasprog.DeviceIDM25P16)
}

func processReadStatus(f *mimasprog.Flash, args []string) {
	status, err := f.ReadStatus()
	if err != nil {
		log.Fatalf("failed to read status: %v", err)
	}
	log.Infof("status: %02X", status)
}

func parseUint(s, what string, bits int) uint64 {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		log.Fatalf("invalid %v: %v", what, err)
	}
	return v
}

func processRead(f *mimasprog.Flash, args []string) {
	if len(args) != 2 {
		log.Fatalf("expected: addr len")
	}
	addr := parseUint(args[0], "address", 24)
	length := parseUint(args[1], "length", 24)
	data, err := f.Read(uint32(addr), int(length))
	if err != nil {
		log.Fatalf("failed to read flash: %v", err)
	}
	fmt.Print(hex.Dump(data))
}

func processErase(f *mimasprog.Flash, args []string) {
	if len(args) != 1 {
		log.Fatalf("expected: endaddr")
	}
	end := parseUint(args[0], "address", 24)
	err := f.SectorErase(uint32(end), func(v int) {
		log.Debugf("erased up to %X", v)
	})
	if err != nil {
		log.Fatalf("failed to erase flash: %v", err)
	}
}
