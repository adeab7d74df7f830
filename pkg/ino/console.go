package ino

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"ino-host/pkg/errors"
	"ino-host/pkg/log"
)

// Console is the line-oriented command surface of the host. Each inbound
// line is one named command with KEY=VALUE parameters, mirroring the
// commands the boards are driven with from a printer console:
//
//	INO_FREQUENCY F=1000 [T=<n>]
//	INO_PID_TUNE PID=250 [T=<n>]
//	INO_SET_PID_VALUES KP=21.73 KI=1.54 KD=7.77 [T=<n>]
//	INO_READ_PID_VALUES [T=<n>]
//	INO_RESET_ERROR_FLAGS [T=<n>]
//	INO_DEBUG_OUT [T=<n>]
//	INO_FIRMWARE_VERSION [T=<n>]
//
// The optional T parameter selects an extruder by index; without it the
// command targets the active extruder. Replies are "ok", "ok <text>" for
// commands with output, or "!! <error>".
type Console struct {
	router *Router
	logger *log.Logger
}

// NewConsole creates a console over the router.
func NewConsole(r *Router) *Console {
	return &Console{
		router: r,
		logger: log.GetLogger("ino console"),
	}
}

// Execute runs one command line and returns the reply body. A blank line
// is a no-op.
func (c *Console) Execute(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	name := strings.ToUpper(fields[0])
	params := make(map[string]string)
	for _, field := range fields[1:] {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return "", errors.Newf(errors.ErrConfigValidation,
				"malformed parameter %q in %s", field, name)
		}
		params[strings.ToUpper(key)] = value
	}

	index, err := paramIndex(params)
	if err != nil {
		return "", err
	}

	switch name {
	case "INO_FREQUENCY":
		freq, err := paramFloat(params, "F")
		if err != nil {
			return "", err
		}
		return "", c.router.Frequency(index, freq)
	case "INO_PID_TUNE":
		target, err := paramFloat(params, "PID")
		if err != nil {
			return "", err
		}
		return "", c.router.PIDTune(index, target)
	case "INO_SET_PID_VALUES":
		kp, err := paramFloat(params, "KP")
		if err != nil {
			return "", err
		}
		ki, err := paramFloat(params, "KI")
		if err != nil {
			return "", err
		}
		kd, err := paramFloat(params, "KD")
		if err != nil {
			return "", err
		}
		return "", c.router.SetPIDValues(index, kp, ki, kd)
	case "INO_READ_PID_VALUES":
		return "", c.router.ReadPIDValues(index)
	case "INO_RESET_ERROR_FLAGS":
		return "", c.router.ResetErrorFlags(index)
	case "INO_FIRMWARE_VERSION":
		return "", c.router.FirmwareVersion(index)
	case "INO_DEBUG_OUT":
		return c.router.DebugDump(index)
	}
	return "", errors.Newf(errors.ErrConfigValidation, "unknown command %q", name)
}

// ServeConn reads command lines from one connection until it closes.
func (c *Console) ServeConn(conn io.ReadWriteCloser) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		reply, err := c.Execute(scanner.Text())
		switch {
		case err != nil:
			fmt.Fprintf(conn, "!! %s\n", err)
			if !errors.IsConfig(err) {
				c.logger.WithError(err).Error("console command failed")
			}
		case reply != "":
			fmt.Fprintf(conn, "ok %s\n", reply)
		default:
			fmt.Fprintln(conn, "ok")
		}
	}
}

// Serve accepts console connections until the listener closes.
func (c *Console) Serve(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go c.ServeConn(conn)
	}
}

func paramIndex(params map[string]string) (*int, error) {
	raw, ok := params["T"]
	if !ok {
		return nil, nil
	}
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		return nil, errors.Newf(errors.ErrConfigValidation, "invalid extruder index %q", raw)
	}
	return &index, nil
}

func paramFloat(params map[string]string, key string) (float64, error) {
	raw, ok := params[key]
	if !ok {
		return 0, errors.Newf(errors.ErrConfigValidation, "missing parameter %s", key)
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.Newf(errors.ErrConfigValidation, "parameter %s=%q is not a number", key, raw)
	}
	return value, nil
}
