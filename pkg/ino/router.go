package ino

import (
	"fmt"

	"ino-host/pkg/errors"
	"ino-host/pkg/heater"
	"ino-host/pkg/log"
)

// Router maps named host operations onto INO board commands. Every
// operation takes an optional extruder index; a nil index resolves to the
// active extruder's heater. Operations against a heater that is not
// serial-controlled fail with a configuration error.
type Router struct {
	heaters *heater.Manager
	logger  *log.Logger
}

// NewRouter creates a router over the heater registry.
func NewRouter(m *heater.Manager) *Router {
	return &Router{
		heaters: m,
		logger:  log.GetLogger("ino router"),
	}
}

// resolve finds the target heater and checks its capability.
func (r *Router) resolve(index *int) (*heater.Heater, error) {
	h, err := r.heaters.LookupExtruder(index)
	if err != nil {
		return nil, err
	}
	if h.GetKind() != heater.KindSerialControlled {
		return nil, errors.WrongHeaterKindError(h.Name())
	}
	return h, nil
}

func (r *Router) push(index *int, cmd string) error {
	h, err := r.resolve(index)
	if err != nil {
		return err
	}
	h.Sensor().PushCommand(cmd)
	return nil
}

// Frequency sets the board's PWM frequency.
func (r *Router) Frequency(index *int, freq float64) error {
	return r.push(index, fmt.Sprintf("f %d", int(freq)))
}

// PIDTune starts an on-board PID autotune at the given temperature.
func (r *Router) PIDTune(index *int, target float64) error {
	return r.push(index, "pid "+formatDecimal(target))
}

// SetPIDValues sends new PID coefficients as three separate commands, the
// form the firmware expects.
func (r *Router) SetPIDValues(index *int, kp, ki, kd float64) error {
	if err := r.push(index, "kp "+formatDecimal(kp)); err != nil {
		return err
	}
	if err := r.push(index, "ki "+formatDecimal(ki)); err != nil {
		return err
	}
	return r.push(index, "kd "+formatDecimal(kd))
}

// ReadPIDValues asks the board to report its internal PID coefficients.
// The reply arrives asynchronously as a response frame.
func (r *Router) ReadPIDValues(index *int) error {
	return r.push(index, "a")
}

// ResetErrorFlags clears the board's internal error flags.
func (r *Router) ResetErrorFlags(index *int) error {
	return r.push(index, "q")
}

// FirmwareVersion asks the board to report its firmware version. The
// reply arrives asynchronously as a response frame.
func (r *Router) FirmwareVersion(index *int) error {
	return r.push(index, "v")
}

// debugDumper is the slice of the sensor surface DebugDump needs.
type debugDumper interface {
	DebugDump() (string, bool)
}

// DebugDump returns the most recent telemetry snapshot from the target
// heater's board.
func (r *Router) DebugDump(index *int) (string, error) {
	h, err := r.resolve(index)
	if err != nil {
		return "", err
	}
	d, ok := h.Sensor().(debugDumper)
	if !ok {
		return "", errors.WrongHeaterKindError(h.Name())
	}
	dump, ok := d.DebugDump()
	if !ok {
		return "", errors.New(errors.ErrProtocolParse, "no telemetry received yet")
	}
	return "INO debug output:\n" + dump, nil
}
