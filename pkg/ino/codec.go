package ino

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"ino-host/pkg/errors"
	"ino-host/pkg/log"
)

// TelemetryFormat selects how inbound telemetry frames are decoded.
type TelemetryFormat string

const (
	// FormatTick decodes "tick:" key/value telemetry lines. The first
	// pair is always the tick counter itself ("tick:<n>"), so the line
	// splits cleanly on commas; a frame whose first colon-separated
	// token is a bare "tick" key is not a valid tick frame.
	FormatTick TelemetryFormat = "tick"

	// FormatBare decodes frames that are a bare digit string as a raw
	// temperature reading in centidegrees.
	FormatBare TelemetryFormat = "bare"
)

// FrameClass is the coarse classification of an inbound frame.
type FrameClass int

const (
	// FrameDiagnostic is a board-side error report ("ERROR..." frames).
	FrameDiagnostic FrameClass = iota
	// FrameTelemetry carries a temperature sample and error flags.
	FrameTelemetry
	// FrameResponse is any other frame, surfaced verbatim to the operator.
	FrameResponse
)

// ErrorFlags is the board's error bitfield, decoded from the zero-filled
// six digit err field. The first five digit positions carry the flags.
type ErrorFlags uint8

const (
	FlagOpenCircuit ErrorFlags = 1 << iota
	FlagNoHeartbeat
	FlagHeatingSlow
	FlagHeatingFast
	FlagNoTempRead
)

var flagNames = []struct {
	flag ErrorFlags
	name string
}{
	{FlagOpenCircuit, "open circuit"},
	{FlagNoHeartbeat, "no heartbeat"},
	{FlagHeatingSlow, "heating slow"},
	{FlagHeatingFast, "heating fast"},
	{FlagNoTempRead, "no temp read"},
}

// String renders the set flags as " | name" suffixes, matching the
// operator-facing debug format.
func (f ErrorFlags) String() string {
	var b strings.Builder
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			b.WriteString(" | ")
			b.WriteString(fn.name)
		}
	}
	return b.String()
}

// Pair is one key/value pair from a tick frame.
type Pair struct {
	Key   string
	Value string
}

// Telemetry is one decoded telemetry sample.
type Telemetry struct {
	// Temp is the ambient temperature in degrees Celsius.
	Temp float64
	// Flags holds the decoded error flags.
	Flags ErrorFlags
	// RawErr is the zero-filled six digit err field.
	RawErr string
	// Pairs holds every key/value pair from the frame in the order it
	// appeared, with the err value zero-filled.
	Pairs []Pair
	// Debug is the comma-joined pair values in encountered order, the
	// form surfaced as the last debug message.
	Debug string
	// Timestamp is the reactor time at which the frame arrived.
	Timestamp float64
}

// Message is the result of decoding one frame.
type Message struct {
	Class     FrameClass
	Text      string
	Telemetry *Telemetry
}

// debugRingSize bounds the retained telemetry history.
const debugRingSize = 100

// Codec classifies and decodes NUL-stripped frames from the board and
// retains a bounded ring of telemetry snapshots for debug dumps.
type Codec struct {
	format TelemetryFormat
	logger *log.Logger

	mu       sync.Mutex
	ring     []*Telemetry
	flagDump []string
}

// NewCodec creates a codec for the given telemetry format.
func NewCodec(format TelemetryFormat, logger *log.Logger) *Codec {
	if logger == nil {
		logger = log.GetLogger("ino codec")
	}
	return &Codec{format: format, logger: logger}
}

// Decode classifies one frame. The trailing NUL and surrounding whitespace
// are stripped first. A malformed telemetry frame returns an error; the
// caller drops the frame and prior codec state is untouched. Eventtime is
// stamped on any decoded telemetry.
func (c *Codec) Decode(frame string, eventtime float64) (Message, error) {
	body := strings.TrimSpace(strings.TrimRight(frame, "\x00"))

	if strings.HasPrefix(body, "ERROR") {
		return Message{Class: FrameDiagnostic, Text: body}, nil
	}

	if strings.HasPrefix(body, "tick:") {
		tel, err := c.parseTick(body)
		if err != nil {
			return Message{}, err
		}
		tel.Timestamp = eventtime
		c.record(tel)
		return Message{Class: FrameTelemetry, Text: body, Telemetry: tel}, nil
	}

	if c.format == FormatBare && body != "" && isDigits(body) {
		centi, err := strconv.Atoi(body)
		if err != nil {
			return Message{}, errors.ProtocolParseError(body, "bare reading overflows")
		}
		tel := &Telemetry{
			Temp:      float64(centi) / 100.0,
			RawErr:    "000000",
			Debug:     body,
			Timestamp: eventtime,
		}
		c.record(tel)
		return Message{Class: FrameTelemetry, Text: body, Telemetry: tel}, nil
	}

	return Message{Class: FrameResponse, Text: body}, nil
}

func (c *Codec) parseTick(body string) (*Telemetry, error) {
	var pairs []Pair
	for _, pair := range strings.Split(body, ",") {
		pair = strings.TrimSpace(pair)
		key, value, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, errors.ProtocolParseError(body, fmt.Sprintf("pair %q has no separator", pair))
		}
		pairs = append(pairs, Pair{strings.TrimSpace(key), strings.TrimSpace(value)})
	}

	tel := &Telemetry{}
	var haveTemp, haveErr bool
	for i, p := range pairs {
		switch p.Key {
		case "T_a":
			centi, err := strconv.Atoi(p.Value)
			if err != nil {
				return nil, errors.ProtocolParseError(body, fmt.Sprintf("T_a %q is not an integer", p.Value))
			}
			tel.Temp = float64(centi) / 100.0
			haveTemp = true
		case "err":
			padded := p.Value
			for len(padded) < 6 {
				padded = "0" + padded
			}
			for j, fn := range flagNames {
				if padded[j] == '1' {
					tel.Flags |= fn.flag
				}
			}
			tel.RawErr = padded
			pairs[i].Value = padded
			haveErr = true
		}
	}
	if !haveTemp {
		return nil, errors.ProtocolParseError(body, "missing T_a field")
	}
	if !haveErr {
		return nil, errors.ProtocolParseError(body, "missing err field")
	}

	values := make([]string, len(pairs))
	for i, p := range pairs {
		values[i] = p.Value
	}
	tel.Pairs = pairs
	tel.Debug = strings.Join(values, ",")
	return tel, nil
}

// record appends a snapshot to the bounded debug ring.
func (c *Codec) record(tel *Telemetry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ring = append(c.ring, tel)
	c.flagDump = append(c.flagDump, tel.RawErr+tel.Flags.String())
	if len(c.ring) > debugRingSize {
		c.ring = c.ring[1:]
	}
	if len(c.flagDump) > debugRingSize {
		c.flagDump = c.flagDump[1:]
	}
}

// Latest returns the most recent telemetry snapshot and its flag summary,
// or false when no telemetry has been decoded yet.
func (c *Codec) Latest() (*Telemetry, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.ring) == 0 {
		return nil, "", false
	}
	return c.ring[len(c.ring)-1], c.flagDump[len(c.flagDump)-1], true
}

// RingLen returns the number of retained snapshots.
func (c *Codec) RingLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ring)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
