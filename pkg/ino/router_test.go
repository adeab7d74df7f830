package ino

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ino-host/pkg/errors"
	"ino-host/pkg/heater"
)

type recordingSensor struct {
	commands []string
	dump     string
	hasDump  bool
}

func (s *recordingSensor) Name() string                { return "recording" }
func (s *recordingSensor) ReportTimeDelta() float64    { return 0.3 }
func (s *recordingSensor) PushCommand(cmd string)      { s.commands = append(s.commands, cmd) }
func (s *recordingSensor) BindHeater(h *heater.Heater) {}
func (s *recordingSensor) DebugDump() (string, bool)   { return s.dump, s.hasDump }

func routerFixture(t *testing.T) (*Router, *recordingSensor, *recordingSensor) {
	t.Helper()
	m := heater.NewManager()

	cfg := heater.Config{
		Name:        "extruder",
		MaxTemp:     300,
		MaxPower:    1.0,
		SmoothTime:  1.0,
		ReportTime:  0.3,
		ControlType: "watermark",
		MaxDelta:    2.0,
	}
	s0 := &recordingSensor{}
	h0, err := heater.New(cfg, s0)
	require.NoError(t, err)
	require.NoError(t, m.Register(h0))

	cfg.Name = "extruder1"
	s1 := &recordingSensor{}
	h1, err := heater.New(cfg, s1)
	require.NoError(t, err)
	require.NoError(t, m.Register(h1))

	return NewRouter(m), s0, s1
}

func TestRouterFrequency(t *testing.T) {
	r, s0, _ := routerFixture(t)
	require.NoError(t, r.Frequency(nil, 1000.9))
	assert.Equal(t, []string{"f 1000"}, s0.commands)
}

func TestRouterIndexResolution(t *testing.T) {
	r, s0, s1 := routerFixture(t)

	one := 1
	require.NoError(t, r.ResetErrorFlags(&one))
	assert.Empty(t, s0.commands)
	assert.Equal(t, []string{"q"}, s1.commands)

	zero := 0
	require.NoError(t, r.ResetErrorFlags(&zero))
	assert.Equal(t, []string{"q"}, s0.commands)
}

func TestRouterUnknownIndex(t *testing.T) {
	r, _, _ := routerFixture(t)
	nine := 9
	err := r.FirmwareVersion(&nine)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownHeater))
}

func TestRouterWrongHeaterKind(t *testing.T) {
	m := heater.NewManager()
	cfg := heater.Config{
		Name:        "extruder",
		Kind:        heater.KindGeneric,
		MaxTemp:     300,
		MaxPower:    1.0,
		SmoothTime:  1.0,
		ControlType: "watermark",
		MaxDelta:    2.0,
	}
	h, err := heater.New(cfg, &recordingSensor{})
	require.NoError(t, err)
	require.NoError(t, m.Register(h))

	r := NewRouter(m)
	err = r.PIDTune(nil, 250)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrWrongHeaterKind))
}

func TestRouterPIDTune(t *testing.T) {
	r, s0, _ := routerFixture(t)
	require.NoError(t, r.PIDTune(nil, 250))
	assert.Equal(t, []string{"pid 250.0"}, s0.commands)
}

func TestRouterSetPIDValues(t *testing.T) {
	r, s0, _ := routerFixture(t)
	require.NoError(t, r.SetPIDValues(nil, 21.73, 1.54, 7.77))
	assert.Equal(t, []string{"kp 21.73", "ki 1.54", "kd 7.77"}, s0.commands)
}

func TestRouterSimpleCommands(t *testing.T) {
	r, s0, _ := routerFixture(t)
	require.NoError(t, r.ReadPIDValues(nil))
	require.NoError(t, r.ResetErrorFlags(nil))
	require.NoError(t, r.FirmwareVersion(nil))
	assert.Equal(t, []string{"a", "q", "v"}, s0.commands)
}

func TestRouterDebugDump(t *testing.T) {
	r, s0, _ := routerFixture(t)

	_, err := r.DebugDump(nil)
	assert.Error(t, err, "no telemetry yet")

	s0.dump = "T_a:2350\n000000"
	s0.hasDump = true
	dump, err := r.DebugDump(nil)
	require.NoError(t, err)
	assert.Equal(t, "INO debug output:\nT_a:2350\n000000", dump)
}
