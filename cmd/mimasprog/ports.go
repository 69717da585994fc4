package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

func listPorts() {
	ports, err := serial.GetPortsList()
	if err != nil {
		log.Fatalf("failed to list serial ports: %v", err)
	}
	if len(ports) == 0 {
		log.Infof("no serial ports found")
		return
	}
	for _, port := range ports {
		fmt.Println(port)
	}
}
