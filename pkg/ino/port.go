// Package ino drives the INO hotend controller board over its NUL-framed
// serial protocol. The Link owns the connection lifecycle and the reactor
// timers for reading, writing and sampling; the Codec classifies inbound
// frames; the Router maps named host operations onto board commands.
package ino

import (
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the board's fixed line speed (8N1).
	DefaultBaudRate = 115200

	// readPollTimeout keeps port reads from blocking the reactor. A read
	// that hits the timeout returns n=0 and no error.
	readPollTimeout = 5 * time.Millisecond
)

// Port is the minimal serial device surface the link needs. Production
// ports come from OpenSerial; tests supply in-memory fakes.
type Port interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error
}

// Dialer opens the named device.
type Dialer func(device string) (Port, error)

// OpenSerial opens device at 115200 8N1 with a short read timeout so the
// read task can drain pending bytes without stalling the reactor.
func OpenSerial(device string) (Port, error) {
	mode := &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(readPollTimeout); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}
