package ino

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"ino-host/pkg/config"
	"ino-host/pkg/errors"
	"ino-host/pkg/heater"
	"ino-host/pkg/log"
	"ino-host/pkg/reactor"
	"ino-host/pkg/shutdown"
)

// State is the link's connection state.
type State int

const (
	// Disconnected means no port is open; the sample task will retry.
	Disconnected State = iota
	// Connecting means a dial is in progress.
	Connecting
	// Connected means the port is open and the read/write tasks run.
	Connected
	// FatallyClosed means the retry budget is spent; the link never
	// reconnects and a shutdown has been signalled.
	FatallyClosed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case FatallyClosed:
		return "fatally closed"
	}
	return "unknown"
}

// maxConnectAttempts is the consecutive failure budget before the link
// gives up and escalates to a host shutdown.
const maxConnectAttempts = 5

// LinkConfig holds the link's configured parameters.
type LinkConfig struct {
	Name            string
	Device          string
	ReportTime      float64
	OneTimeConnect  bool
	TelemetryFormat TelemetryFormat
}

// LoadLinkConfig reads link parameters from an "ino_heater <name>" section.
func LoadLinkConfig(section *config.Section) (LinkConfig, error) {
	var cfg LinkConfig
	cfg.Name = section.GetName()
	if name, ok := strings.CutPrefix(cfg.Name, "ino_heater "); ok {
		cfg.Name = name
	}

	var err error
	if cfg.Device, err = section.Get("serial"); err != nil {
		return cfg, err
	}
	if cfg.ReportTime, err = section.GetFloatWithBounds("report_time",
		config.Min(heater.MinReportTime), heater.DefaultReportTime); err != nil {
		return cfg, err
	}
	if cfg.OneTimeConnect, err = section.GetBool("one_time_connect", false); err != nil {
		return cfg, err
	}
	format, err := section.GetChoice("telemetry_format",
		[]string{string(FormatTick), string(FormatBare)}, string(FormatTick))
	if err != nil {
		return cfg, err
	}
	cfg.TelemetryFormat = TelemetryFormat(format)
	return cfg, nil
}

// Link owns one serial connection to an INO board. It implements
// heater.Sensor: a Heater is constructed on top of it and bound back via
// BindHeater.
//
// Three reactor timers drive it. The sample task runs at the report
// interval for the life of the link: it connects when down, enqueues the
// current set-point and a heartbeat when up, and always delivers the
// last-known temperature to the bound heater. The read and write tasks
// exist only while connected.
type Link struct {
	name   string
	device string
	cfg    LinkConfig
	reac   *reactor.Reactor
	coord  *shutdown.Coordinator
	dial   Dialer
	codec  *Codec
	logger *log.Logger

	writeQueue *CommandQueue

	mu             sync.Mutex
	state          State
	port           Port
	failedAttempts int
	firstConnect   bool
	everConnected  bool
	temp           float64
	lastReadTime   float64
	lastResponse   string
	lastDebugMsg   string
	lastDebugTime  float64
	readBuffer     []byte
	readTimer      *reactor.Timer
	writeTimer     *reactor.Timer
	sampleTimer    *reactor.Timer
	heater         *heater.Heater
}

// NewLink creates a link. Dial defaults to OpenSerial when nil.
func NewLink(cfg LinkConfig, reac *reactor.Reactor, coord *shutdown.Coordinator, dial Dialer) *Link {
	if dial == nil {
		dial = OpenSerial
	}
	logger := log.GetLogger("ino " + cfg.Name)
	return &Link{
		name:         cfg.Name,
		device:       cfg.Device,
		cfg:          cfg,
		reac:         reac,
		coord:        coord,
		dial:         dial,
		codec:        NewCodec(cfg.TelemetryFormat, logger),
		logger:       logger,
		writeQueue:   NewCommandQueue(),
		firstConnect: true,
	}
}

// Name implements heater.Sensor.
func (l *Link) Name() string {
	return l.name
}

// ReportTimeDelta implements heater.Sensor.
func (l *Link) ReportTimeDelta() float64 {
	return l.cfg.ReportTime
}

// PushCommand implements heater.Sensor. Commands queue even while
// disconnected; the queue is cleared on the next connect.
func (l *Link) PushCommand(cmd string) {
	l.writeQueue.Push(cmd)
}

// BindHeater implements heater.Sensor and starts the sample task. The
// link does nothing until a heater is bound.
func (l *Link) BindHeater(h *heater.Heater) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.heater = h
	if l.sampleTimer == nil {
		l.sampleTimer = l.reac.RegisterTimer(l.sampleTask, reactor.NOW)
	}
}

// State returns the current connection state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Temp returns the last-known temperature.
func (l *Link) Temp() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.temp
}

// sampleTask is the link's heartbeat. It never stops while the link is
// alive, whatever the connection state.
func (l *Link) sampleTask(eventtime float64) float64 {
	l.mu.Lock()
	state := l.state
	attempts := l.failedAttempts
	h := l.heater
	l.mu.Unlock()

	if state == FatallyClosed {
		return reactor.NEVER
	}

	if attempts >= maxConnectAttempts {
		l.logger.Error("no connection to INO possible, shutting down host")
		l.fault(errors.RetriesExhaustedError(l.name, maxConnectAttempts))
		return reactor.NEVER
	}

	if state == Connected {
		target := 0.0
		if h != nil {
			target = h.Target()
		}
		l.writeQueue.Push(fmt.Sprintf("s %d", int(target)))
		l.writeQueue.Push("d")
	} else {
		l.connect()
	}

	if h != nil {
		h.ProcessSample(eventtime, l.Temp())
	}
	return eventtime + l.cfg.ReportTime
}

// connect dials the device and, on success, clears the queues and starts
// the read and write tasks. The first successful connect also sends the
// PID coefficients and an error-flag reset.
func (l *Link) connect() {
	l.mu.Lock()
	if l.cfg.OneTimeConnect && l.everConnected {
		l.failedAttempts++
		l.mu.Unlock()
		l.logger.Warn("one_time_connect set, refusing to reconnect")
		return
	}
	l.state = Connecting
	l.mu.Unlock()

	port, err := l.dial(l.device)
	if err != nil {
		l.mu.Lock()
		l.failedAttempts++
		attempt := l.failedAttempts
		l.state = Disconnected
		l.mu.Unlock()
		l.logger.WithError(errors.LinkConnectError(l.device, err)).
			Errorf("unable to connect to INO, attempt %d", attempt)
		return
	}

	l.writeQueue.Clear()

	l.mu.Lock()
	l.port = port
	l.state = Connected
	l.failedAttempts = 0
	l.everConnected = true
	l.readBuffer = nil
	l.readTimer = l.reac.RegisterTimer(l.readTask, reactor.NOW)
	l.writeTimer = l.reac.RegisterTimer(l.writeTask, reactor.NOW)
	first := l.firstConnect
	l.firstConnect = false
	h := l.heater
	l.mu.Unlock()

	l.logger.Info("connected to INO on %s", l.device)

	if first && h != nil {
		kp, ki, kd := h.PIDParams()
		l.writeQueue.Push(fmt.Sprintf("kp %s;ki %s;kd %s;q",
			formatDecimal(kp), formatDecimal(ki), formatDecimal(kd)))
	}
}

// readTask drains pending bytes, splits complete NUL-terminated frames and
// hands them to the codec. A read error tears the connection down.
func (l *Link) readTask(eventtime float64) float64 {
	l.mu.Lock()
	port := l.port
	l.mu.Unlock()
	if port == nil {
		return reactor.NEVER
	}

	buf := make([]byte, 256)
	for {
		n, err := port.Read(buf)
		if err != nil {
			l.logger.Info("error in serial readout: %v", err)
			l.fault(errors.LinkReadError(l.device, err))
			return reactor.NEVER
		}
		if n == 0 {
			break
		}

		l.mu.Lock()
		l.readBuffer = append(l.readBuffer, buf[:n]...)
		var frames []string
		for {
			i := bytes.IndexByte(l.readBuffer, 0)
			if i < 0 {
				break
			}
			frames = append(frames, string(l.readBuffer[:i]))
			l.readBuffer = l.readBuffer[i+1:]
		}
		l.mu.Unlock()

		for _, frame := range frames {
			l.processFrame(frame, eventtime)
		}
	}

	l.mu.Lock()
	l.lastReadTime = l.reac.Monotonic()
	l.mu.Unlock()
	return eventtime + l.cfg.ReportTime
}

func (l *Link) processFrame(frame string, eventtime float64) {
	msg, err := l.codec.Decode(frame, eventtime)
	if err != nil {
		l.logger.Warn("dropping malformed frame: %v", err)
		return
	}

	switch msg.Class {
	case FrameDiagnostic:
		l.logger.Error("INO ERROR: %s", msg.Text)
	case FrameTelemetry:
		l.mu.Lock()
		l.temp = msg.Telemetry.Temp
		l.lastDebugMsg = msg.Telemetry.Debug
		l.lastDebugTime = msg.Telemetry.Timestamp
		l.mu.Unlock()
	case FrameResponse:
		if msg.Text == "" {
			return
		}
		l.mu.Lock()
		l.lastResponse = msg.Text
		l.mu.Unlock()
		l.logger.Info("output from INO: %s", msg.Text)
	}
}

// writeTask pops queued commands and writes each as "<body>;\x00". A write
// error tears the connection down; unsent commands stay queued until the
// next connect clears them.
func (l *Link) writeTask(eventtime float64) float64 {
	l.mu.Lock()
	port := l.port
	l.mu.Unlock()
	if port == nil {
		return reactor.NEVER
	}

	for {
		cmd, ok := l.writeQueue.TryPop()
		if !ok {
			break
		}
		if cmd == "" {
			continue
		}
		if _, err := port.Write([]byte(cmd + ";\x00")); err != nil {
			l.logger.Info("error in serial communication (writing): %v", err)
			l.fault(errors.LinkWriteError(l.device, err))
			return reactor.NEVER
		}
	}
	return eventtime + l.cfg.ReportTime
}

// fault routes a classified link error to its recovery path: fatal errors
// park the link and shut the host down, transient ones tear the connection
// down so the sample task can redial.
func (l *Link) fault(err *errors.HostError) {
	if errors.IsFatal(err) {
		l.mu.Lock()
		l.state = FatallyClosed
		l.mu.Unlock()
		l.coord.Invoke(err.Message)
		return
	}
	if errors.IsLink(err) {
		l.Disconnect()
	}
}

// Disconnect tears down the connection: best-effort zero set-point and
// heartbeat flush, port close, read/write timer teardown, queue flush. It
// is safe to call in any state and from any goroutine; repeat calls are
// no-ops.
func (l *Link) Disconnect() {
	l.mu.Lock()
	if l.port == nil {
		l.mu.Unlock()
		return
	}
	port := l.port
	l.port = nil
	readTimer := l.readTimer
	writeTimer := l.writeTimer
	l.readTimer = nil
	l.writeTimer = nil
	if l.state == Connected || l.state == Connecting {
		l.state = Disconnected
	}
	l.mu.Unlock()

	// The board must not keep heating against a stale set-point.
	port.Write([]byte("s 0;\x00")) //nolint:errcheck
	port.Write([]byte("d;\x00"))   //nolint:errcheck
	if err := port.Close(); err != nil {
		l.logger.Error("disconnect failed: %v", err)
	} else {
		l.logger.Info("serial port closed due to disconnect")
	}

	l.reac.UnregisterTimer(readTimer)
	l.reac.UnregisterTimer(writeTimer)
	l.writeQueue.Clear()
}

// Close permanently stops the link. Used by shutdown handlers.
func (l *Link) Close() {
	l.Disconnect()
	l.mu.Lock()
	l.state = FatallyClosed
	sampleTimer := l.sampleTimer
	l.sampleTimer = nil
	l.mu.Unlock()
	l.reac.UnregisterTimer(sampleTimer)
}

// DebugDump returns the latest telemetry snapshot formatted for the
// operator, or false when none has arrived yet.
func (l *Link) DebugDump() (string, bool) {
	tel, flagLine, ok := l.codec.Latest()
	if !ok {
		return "", false
	}
	parts := make([]string, 0, len(tel.Pairs))
	for _, p := range tel.Pairs {
		parts = append(parts, p.Key+":"+p.Value)
	}
	return strings.Join(parts, ",") + "\n" + flagLine, true
}

// GetStatus returns the link status consumed by telemetry collaborators.
func (l *Link) GetStatus(eventtime float64) map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return map[string]interface{}{
		"state":                l.state.String(),
		"temperature":          l.temp,
		"last_read_timestamp":  l.lastReadTime,
		"last_response":        l.lastResponse,
		"last_debug_message":   l.lastDebugMsg,
		"last_debug_timestamp": l.lastDebugTime,
	}
}

// formatDecimal renders a float with an explicit decimal point, the form
// the board firmware parses ("13.41", "250.0").
func formatDecimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
