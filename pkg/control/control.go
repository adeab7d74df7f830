// Temperature control algorithms for the INO hotend.
//
// An Algorithm is a pure function of (time, measured temperature, target
// temperature) to a power fraction; it performs no I/O and may be swapped
// on a live heater, e.g. for calibration runs.
package control

import (
	"fmt"
	"math"
)

const (
	// AmbientTemp is the assumed temperature before the first sample.
	AmbientTemp = 25.0

	// PIDParamBase normalizes the configured PID coefficients, which are
	// expressed against the board's 0-255 duty scale.
	PIDParamBase = 255.0

	// PIDSettleDelta is the temperature delta below which PID is settled.
	PIDSettleDelta = 1.0

	// PIDSettleSlope is the derivative magnitude below which PID is settled.
	PIDSettleSlope = 0.1
)

// Algorithm computes heater power from temperature samples.
type Algorithm interface {
	// Update is called once per sample and returns the desired power
	// fraction in [0, max power].
	Update(readTime, temp, targetTemp float64) float64

	// CheckBusy returns true while the heater is still settling toward
	// the target.
	CheckBusy(eventtime, smoothedTemp, targetTemp float64) bool
}

// BangBang implements on/off control with a hysteresis band.
type BangBang struct {
	maxPower float64
	maxDelta float64
	heating  bool
}

// NewBangBang creates a bang-bang controller. maxDelta is the half-width
// of the hysteresis band in degrees.
func NewBangBang(maxPower, maxDelta float64) (*BangBang, error) {
	if maxDelta <= 0 {
		return nil, fmt.Errorf("control: max_delta must be positive")
	}
	if maxPower <= 0 || maxPower > 1 {
		return nil, fmt.Errorf("control: max_power must be in (0, 1]")
	}
	return &BangBang{maxPower: maxPower, maxDelta: maxDelta}, nil
}

// Update turns the heater on below target-maxDelta and off above
// target+maxDelta; between the two bounds the previous state holds.
func (c *BangBang) Update(readTime, temp, targetTemp float64) float64 {
	if c.heating && temp >= targetTemp+c.maxDelta {
		c.heating = false
	} else if !c.heating && temp <= targetTemp-c.maxDelta {
		c.heating = true
	}
	if c.heating {
		return c.maxPower
	}
	return 0.0
}

// CheckBusy returns true while the smoothed temperature is below the
// lower hysteresis bound.
func (c *BangBang) CheckBusy(eventtime, smoothedTemp, targetTemp float64) bool {
	return smoothedTemp < targetTemp-c.maxDelta
}

// Heating reports the current on/off state.
func (c *BangBang) Heating() bool {
	return c.heating
}

// PID implements discretized PID control with derivative smoothing and
// integral anti-windup.
type PID struct {
	maxPower     float64
	kp           float64
	ki           float64
	kd           float64
	minDerivTime float64
	integMax     float64

	prevTemp      float64
	prevTempTime  float64
	prevTempDeriv float64
	prevTempInteg float64
}

// NewPID creates a PID controller. kp/ki/kd are the raw configured
// coefficients (0-255 scale); minDerivTime is the heater's smoothing time
// and bounds derivative amplification of sensor noise.
func NewPID(kp, ki, kd, maxPower, minDerivTime float64) (*PID, error) {
	if kp <= 0 || ki <= 0 || kd < 0 {
		return nil, fmt.Errorf("control: pid coefficients must be positive")
	}
	if minDerivTime <= 0 {
		return nil, fmt.Errorf("control: smooth time must be positive")
	}
	c := &PID{
		maxPower:     maxPower,
		kp:           kp / PIDParamBase,
		ki:           ki / PIDParamBase,
		kd:           kd / PIDParamBase,
		minDerivTime: minDerivTime,
		prevTemp:     AmbientTemp,
	}
	c.integMax = c.maxPower / c.ki
	return c, nil
}

// Update computes one PID step.
func (c *PID) Update(readTime, temp, targetTemp float64) float64 {
	timeDiff := readTime - c.prevTempTime
	tempDiff := temp - c.prevTemp

	var tempDeriv float64
	if timeDiff >= c.minDerivTime {
		tempDeriv = tempDiff / timeDiff
	} else {
		// Low-pass filter the derivative over minDerivTime.
		tempDeriv = (c.prevTempDeriv*(c.minDerivTime-timeDiff) + tempDiff) / c.minDerivTime
	}

	tempErr := targetTemp - temp
	tempInteg := c.prevTempInteg + tempErr*timeDiff
	tempInteg = math.Max(0.0, math.Min(c.integMax, tempInteg))

	co := c.kp*tempErr + c.ki*tempInteg - c.kd*tempDeriv
	boundedCo := math.Max(0.0, math.Min(c.maxPower, co))

	c.prevTemp = temp
	c.prevTempTime = readTime
	c.prevTempDeriv = tempDeriv
	// Commit the integral only while the output is not saturated.
	if co == boundedCo {
		c.prevTempInteg = tempInteg
	}

	return boundedCo
}

// CheckBusy returns true while the temperature error or its slope is
// above the settle thresholds.
func (c *PID) CheckBusy(eventtime, smoothedTemp, targetTemp float64) bool {
	tempDiff := targetTemp - smoothedTemp
	return math.Abs(tempDiff) > PIDSettleDelta || math.Abs(c.prevTempDeriv) > PIDSettleSlope
}

// Integral returns the accumulated integral term, for diagnostics.
func (c *PID) Integral() float64 {
	return c.prevTempInteg
}
