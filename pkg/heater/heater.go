// Heater state and temperature contract for the INO hotend.
//
// A Heater binds a control.Algorithm to a serial-backed sensor. It owns the
// shared temperature state (last/smoothed/target temperature, last commanded
// power) under a single mutex; that mutex is the only synchronization
// primitive in this subsystem and is never held across I/O.
package heater

import (
	"fmt"
	"math"
	"sync"

	"ino-host/pkg/config"
	"ino-host/pkg/control"
	"ino-host/pkg/errors"
	"ino-host/pkg/log"
)

const (
	// KelvinToCelsius is absolute zero in Celsius.
	KelvinToCelsius = -273.15

	// MaxHeatTime bounds how long a commanded power level may persist
	// before a refresh is forced through the rate limiter.
	MaxHeatTime = 5.0

	// DefaultReportTime is the default sensor report interval in seconds.
	DefaultReportTime = 0.3

	// MinReportTime is the lowest allowed report interval.
	MinReportTime = 0.1

	// powerEpsilon is the minimum power change worth re-issuing.
	powerEpsilon = 0.05
)

// Kind tags a heater's capability class. The command router only accepts
// INO operations for serial-controlled heaters.
type Kind int

const (
	// KindSerialControlled marks a heater driven over the INO serial link.
	KindSerialControlled Kind = iota
	// KindGeneric marks any other heater.
	KindGeneric
)

// Sensor is the heater's view of its serial-backed sensor.
type Sensor interface {
	// Name returns the sensor name.
	Name() string

	// ReportTimeDelta returns the interval between temperature reports.
	ReportTimeDelta() float64

	// PushCommand enqueues a command string for delivery to the board.
	PushCommand(cmd string)

	// BindHeater attaches the heater the sensor reports into. Called once
	// from New as the second half of the construction handshake.
	BindHeater(h *Heater)
}

// Config holds the heater's configured parameters. The zero Kind is
// KindSerialControlled, the only kind this host drives itself.
type Config struct {
	Name           string
	Kind           Kind
	MinTemp        float64
	MaxTemp        float64
	MinExtrudeTemp float64
	MaxPower       float64
	SmoothTime     float64
	ReportTime     float64
	ControlType    string // "pid" or "watermark"
	PIDKp          float64
	PIDKi          float64
	PIDKd          float64
	MaxDelta       float64
}

// Heater controls one heating element with temperature feedback.
type Heater struct {
	name   string
	kind   Kind
	cfg    Config
	sensor Sensor
	logger *log.Logger

	invSmoothTime float64

	mu            sync.Mutex
	lastTemp      float64
	lastTempTime  float64
	smoothedTemp  float64
	targetTemp    float64
	lastPower     float64
	nextPowerTime float64
	canExtrude    bool
	ctrl          control.Algorithm
}

// LoadConfig reads heater parameters from an "ino_heater <name>" section.
func LoadConfig(section *config.Section) (Config, error) {
	var cfg Config
	name := section.GetName()
	const prefix = "ino_heater "
	if len(name) > len(prefix) && name[:len(prefix)] == prefix {
		cfg.Name = name[len(prefix):]
	} else {
		return cfg, errors.ConfigValidationError(name, "", "section must be named 'ino_heater <name>'")
	}

	var err error
	if cfg.MinTemp, err = section.GetFloatWithBounds("min_temp", config.Min(KelvinToCelsius)); err != nil {
		return cfg, err
	}
	if cfg.MaxTemp, err = section.GetFloatWithBounds("max_temp", config.Above(cfg.MinTemp)); err != nil {
		return cfg, err
	}
	if cfg.MinExtrudeTemp, err = section.GetFloatWithBounds("min_extrude_temp",
		config.Range(cfg.MinTemp, cfg.MaxTemp), 170.0); err != nil {
		return cfg, err
	}
	if cfg.MaxPower, err = section.GetFloatWithBounds("max_power", config.Range(0.001, 1.0), 1.0); err != nil {
		return cfg, err
	}
	if cfg.SmoothTime, err = section.GetFloatWithBounds("smooth_time", config.Above(0.0), 1.0); err != nil {
		return cfg, err
	}
	if cfg.ReportTime, err = section.GetFloatWithBounds("report_time", config.Min(MinReportTime), DefaultReportTime); err != nil {
		return cfg, err
	}
	if cfg.ControlType, err = section.GetChoice("control", []string{"pid", "watermark"}); err != nil {
		return cfg, err
	}
	if cfg.PIDKp, err = section.GetFloatWithBounds("pid_kp", config.Range(0.0, 40.0), 13.41); err != nil {
		return cfg, err
	}
	if cfg.PIDKi, err = section.GetFloatWithBounds("pid_ki", config.Range(0.0, 80.0), 30.91); err != nil {
		return cfg, err
	}
	if cfg.PIDKd, err = section.GetFloatWithBounds("pid_kd", config.Range(0.0, 10.0), 1.46); err != nil {
		return cfg, err
	}
	if cfg.MaxDelta, err = section.GetFloatWithBounds("max_delta", config.Above(0.0), 2.0); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// New creates a heater bound to an already constructed sensor and attaches
// itself back through sensor.BindHeater. The sensor must exist first; it
// only starts sampling once a heater is bound.
func New(cfg Config, sensor Sensor) (*Heater, error) {
	if cfg.MinTemp < KelvinToCelsius {
		return nil, fmt.Errorf("heater %s: min_temp %.2f below absolute zero", cfg.Name, cfg.MinTemp)
	}
	if cfg.MaxTemp <= cfg.MinTemp {
		return nil, fmt.Errorf("heater %s: max_temp %.2f must exceed min_temp %.2f",
			cfg.Name, cfg.MaxTemp, cfg.MinTemp)
	}
	if cfg.SmoothTime <= 0 {
		return nil, fmt.Errorf("heater %s: smooth_time must be positive", cfg.Name)
	}

	var ctrl control.Algorithm
	var err error
	if cfg.ControlType == "pid" {
		ctrl, err = control.NewPID(cfg.PIDKp, cfg.PIDKi, cfg.PIDKd, cfg.MaxPower, cfg.SmoothTime)
	} else {
		ctrl, err = control.NewBangBang(cfg.MaxPower, cfg.MaxDelta)
	}
	if err != nil {
		return nil, err
	}

	h := &Heater{
		name:          cfg.Name,
		kind:          cfg.Kind,
		cfg:           cfg,
		sensor:        sensor,
		logger:        log.GetLogger("heater " + cfg.Name),
		invSmoothTime: 1.0 / cfg.SmoothTime,
		canExtrude:    cfg.MinExtrudeTemp <= 0,
		ctrl:          ctrl,
	}
	sensor.BindHeater(h)
	return h, nil
}

// Name returns the heater name.
func (h *Heater) Name() string {
	return h.name
}

// GetKind returns the heater's capability tag.
func (h *Heater) GetKind() Kind {
	return h.kind
}

// Sensor returns the attached sensor.
func (h *Heater) Sensor() Sensor {
	return h.sensor
}

// PIDParams returns the configured PID coefficients on the board scale.
func (h *Heater) PIDParams() (kp, ki, kd float64) {
	return h.cfg.PIDKp, h.cfg.PIDKi, h.cfg.PIDKd
}

// ReportDelay returns the sensor report interval.
func (h *Heater) ReportDelay() float64 {
	return h.cfg.ReportTime
}

// SetTemp sets the target temperature. A non-zero target outside
// [min_temp, max_temp] is rejected with a configuration error and leaves
// prior state unchanged; an accepted target is also forwarded to the
// board as a set-point command.
func (h *Heater) SetTemp(degrees float64) error {
	if degrees != 0 && (degrees < h.cfg.MinTemp || degrees > h.cfg.MaxTemp) {
		return errors.TargetOutOfRangeError(degrees, h.cfg.MinTemp, h.cfg.MaxTemp)
	}

	h.mu.Lock()
	h.targetTemp = degrees
	h.mu.Unlock()

	h.logger.Debug("target set to %.1f", degrees)
	h.sensor.PushCommand(fmt.Sprintf("s %d", int(degrees)))
	return nil
}

// ProcessSample delivers a temperature sample from the sensor's read path.
// It updates the raw and smoothed temperatures, runs the control algorithm
// and records the commanded power through the rate limiter.
func (h *Heater) ProcessSample(readTime, temp float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	timeDiff := readTime - h.lastTempTime
	h.lastTemp = temp
	h.lastTempTime = readTime

	power := h.ctrl.Update(readTime, temp, h.targetTemp)
	h.commandedPowerUpdate(readTime, power)

	tempDiff := temp - h.smoothedTemp
	adjTime := math.Min(timeDiff*h.invSmoothTime, 1.0)
	h.smoothedTemp += tempDiff * adjTime
	h.canExtrude = h.smoothedTemp >= h.cfg.MinExtrudeTemp
}

// commandedPowerUpdate stores a new commanded power unless the change is
// insignificant and the minimum re-issue interval has not elapsed. Callers
// hold h.mu.
func (h *Heater) commandedPowerUpdate(readTime, power float64) {
	if h.targetTemp <= 0 {
		power = 0
	}
	if (readTime < h.nextPowerTime || h.lastPower == 0) &&
		math.Abs(power-h.lastPower) < powerEpsilon {
		return
	}
	powerTime := readTime + h.cfg.ReportTime
	h.nextPowerTime = powerTime + 0.75*MaxHeatTime
	h.lastPower = power
}

// Target returns the current target temperature.
func (h *Heater) Target() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.targetTemp
}

// GetTemp returns the smoothed and target temperatures.
func (h *Heater) GetTemp(eventtime float64) (smoothed, target float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.smoothedTemp, h.targetTemp
}

// CheckBusy returns true while the control algorithm is still settling.
func (h *Heater) CheckBusy(eventtime float64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ctrl.CheckBusy(eventtime, h.smoothedTemp, h.targetTemp)
}

// SetControl atomically replaces the control algorithm and returns the old
// one. The target is reset to zero: a fresh algorithm must never inherit a
// live set-point through its predecessor's state.
func (h *Heater) SetControl(ctrl control.Algorithm) control.Algorithm {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.ctrl
	h.ctrl = ctrl
	h.targetTemp = 0
	return old
}

// CanExtrude returns true once the smoothed temperature has reached the
// minimum extrusion temperature.
func (h *Heater) CanExtrude() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.canExtrude
}

// LastPower returns the last commanded power.
func (h *Heater) LastPower() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastPower
}

// GetStatus returns the status consumed by telemetry collaborators.
func (h *Heater) GetStatus(eventtime float64) map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return map[string]interface{}{
		"temperature": math.Round(h.smoothedTemp*100) / 100,
		"target":      h.targetTemp,
		"power":       h.lastPower,
	}
}

// Stats returns an activity flag and a one-line stats summary.
func (h *Heater) Stats(eventtime float64) (bool, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	isActive := h.targetTemp != 0 || h.lastTemp > 50.0
	return isActive, fmt.Sprintf("%s: target=%.0f temp=%.1f pwm=%.3f",
		h.name, h.targetTemp, h.lastTemp, h.lastPower)
}
