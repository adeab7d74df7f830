package heater

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ino-host/pkg/config"
	"ino-host/pkg/control"
	"ino-host/pkg/errors"
)

type fakeSensor struct {
	name     string
	interval float64
	commands []string
	bound    *Heater
}

func (s *fakeSensor) Name() string             { return s.name }
func (s *fakeSensor) ReportTimeDelta() float64 { return s.interval }
func (s *fakeSensor) PushCommand(cmd string)   { s.commands = append(s.commands, cmd) }
func (s *fakeSensor) BindHeater(h *Heater)     { s.bound = h }

func newFakeSensor() *fakeSensor {
	return &fakeSensor{name: "ino_sensor extruder", interval: DefaultReportTime}
}

func testConfig() Config {
	return Config{
		Name:           "extruder",
		MinTemp:        0,
		MaxTemp:        300,
		MinExtrudeTemp: 170,
		MaxPower:       1.0,
		SmoothTime:     1.0,
		ReportTime:     DefaultReportTime,
		ControlType:    "pid",
		PIDKp:          13.41,
		PIDKi:          30.91,
		PIDKd:          1.46,
		MaxDelta:       2.0,
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := config.LoadString(`
[ino_heater extruder]
control: pid
min_temp: 0
max_temp: 300
pid_kp: 21.73
pid_ki: 1.54
pid_kd: 7.77
`)
	require.NoError(t, err)
	section, err := cfg.GetSection("ino_heater extruder")
	require.NoError(t, err)

	hc, err := LoadConfig(section)
	require.NoError(t, err)
	assert.Equal(t, "extruder", hc.Name)
	assert.Equal(t, 0.0, hc.MinTemp)
	assert.Equal(t, 300.0, hc.MaxTemp)
	assert.Equal(t, 170.0, hc.MinExtrudeTemp)
	assert.Equal(t, 21.73, hc.PIDKp)
	assert.Equal(t, DefaultReportTime, hc.ReportTime)
	assert.Equal(t, "pid", hc.ControlType)
}

func TestLoadConfigMissingControl(t *testing.T) {
	cfg, err := config.LoadString(`
[ino_heater extruder]
min_temp: 0
max_temp: 300
`)
	require.NoError(t, err)
	section, err := cfg.GetSection("ino_heater extruder")
	require.NoError(t, err)

	_, err = LoadConfig(section)
	assert.Error(t, err)
}

func TestConstructionBindsSensor(t *testing.T) {
	sensor := newFakeSensor()
	h, err := New(testConfig(), sensor)
	require.NoError(t, err)
	assert.Same(t, h, sensor.bound)
}

func TestSetTempForwardsSetPoint(t *testing.T) {
	sensor := newFakeSensor()
	h, err := New(testConfig(), sensor)
	require.NoError(t, err)

	require.NoError(t, h.SetTemp(215.7))
	assert.Equal(t, 215.7, h.Target())
	require.Len(t, sensor.commands, 1)
	assert.Equal(t, "s 215", sensor.commands[0])

	require.NoError(t, h.SetTemp(0))
	assert.Equal(t, 0.0, h.Target())
	assert.Equal(t, "s 0", sensor.commands[1])
}

func TestSetTempOutOfRange(t *testing.T) {
	sensor := newFakeSensor()
	h, err := New(testConfig(), sensor)
	require.NoError(t, err)
	require.NoError(t, h.SetTemp(200))

	err = h.SetTemp(400)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTargetOutOfRange))
	// Prior state is untouched and nothing new reached the queue.
	assert.Equal(t, 200.0, h.Target())
	assert.Len(t, sensor.commands, 1)
}

func TestProcessSampleSmoothing(t *testing.T) {
	cfg := testConfig()
	cfg.SmoothTime = 2.0
	h, err := New(cfg, newFakeSensor())
	require.NoError(t, err)

	// First sample at t=10 after a long idle gap snaps to the raw value.
	h.ProcessSample(10.0, 100.0)
	smoothed, _ := h.GetTemp(10.0)
	assert.InDelta(t, 100.0, smoothed, 1e-9)

	// A sample 0.5s later moves a quarter of the way (dt/smooth_time).
	h.ProcessSample(10.5, 104.0)
	smoothed, _ = h.GetTemp(10.5)
	assert.InDelta(t, 101.0, smoothed, 1e-9)
}

func TestCanExtrude(t *testing.T) {
	h, err := New(testConfig(), newFakeSensor())
	require.NoError(t, err)
	assert.False(t, h.CanExtrude())

	h.ProcessSample(10.0, 180.0)
	assert.True(t, h.CanExtrude())

	h.ProcessSample(20.0, 100.0)
	assert.False(t, h.CanExtrude())
}

func TestPowerRateLimiting(t *testing.T) {
	cfg := testConfig()
	cfg.ControlType = "watermark"
	sensor := newFakeSensor()
	h, err := New(cfg, sensor)
	require.NoError(t, err)
	require.NoError(t, h.SetTemp(200))

	// Well below target: full power is recorded.
	h.ProcessSample(10.0, 150.0)
	assert.Equal(t, 1.0, h.LastPower())

	// Still heating soon after: same power, update suppressed without
	// touching the re-issue deadline.
	h.ProcessSample(10.3, 151.0)
	assert.Equal(t, 1.0, h.LastPower())

	// Above the hysteresis band: power drops to zero. The change exceeds
	// the epsilon so it is recorded even inside the interval.
	h.ProcessSample(10.6, 203.0)
	assert.Equal(t, 0.0, h.LastPower())
}

func TestPowerZeroWithoutTarget(t *testing.T) {
	cfg := testConfig()
	cfg.ControlType = "watermark"
	h, err := New(cfg, newFakeSensor())
	require.NoError(t, err)

	// No target set: commanded power stays zero no matter the reading.
	h.ProcessSample(10.0, 20.0)
	assert.Equal(t, 0.0, h.LastPower())
}

func TestSetControlResetsTarget(t *testing.T) {
	h, err := New(testConfig(), newFakeSensor())
	require.NoError(t, err)
	require.NoError(t, h.SetTemp(200))

	bb, err := control.NewBangBang(1.0, 2.0)
	require.NoError(t, err)
	old := h.SetControl(bb)
	assert.NotNil(t, old)
	assert.Equal(t, 0.0, h.Target())
}

func TestGetStatus(t *testing.T) {
	h, err := New(testConfig(), newFakeSensor())
	require.NoError(t, err)
	require.NoError(t, h.SetTemp(200))
	h.ProcessSample(10.0, 123.456789)

	status := h.GetStatus(10.0)
	assert.Equal(t, 123.46, status["temperature"])
	assert.Equal(t, 200.0, status["target"])
}

func TestStats(t *testing.T) {
	h, err := New(testConfig(), newFakeSensor())
	require.NoError(t, err)

	active, line := h.Stats(0)
	assert.False(t, active)
	assert.Contains(t, line, "extruder:")

	require.NoError(t, h.SetTemp(200))
	active, _ = h.Stats(0)
	assert.True(t, active)
}
