// Unified error handling for the INO host.
//
// Every error surfaced by this module carries an ErrorCode so callers can
// distinguish configuration mistakes (reported synchronously to the command
// issuer), transient link faults (logged and recovered via reconnect),
// protocol parse failures (logged, frame dropped) and the fatal
// retries-exhausted condition (escalated to process shutdown).
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents the category of error.
type ErrorCode string

const (
	// Configuration errors
	ErrConfigSection    ErrorCode = "CONFIG_SECTION"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Command errors (rejected operations)
	ErrTargetOutOfRange ErrorCode = "TARGET_OUT_OF_RANGE"
	ErrWrongHeaterKind  ErrorCode = "WRONG_HEATER_KIND"
	ErrUnknownHeater    ErrorCode = "UNKNOWN_HEATER"

	// Transient serial link errors
	ErrLinkConnect ErrorCode = "LINK_CONNECT"
	ErrLinkRead    ErrorCode = "LINK_READ"
	ErrLinkWrite   ErrorCode = "LINK_WRITE"

	// Fatal link errors
	ErrRetriesExhausted ErrorCode = "LINK_RETRIES_EXHAUSTED"

	// Protocol errors
	ErrProtocolParse ErrorCode = "PROTOCOL_PARSE"
)

// HostError is the unified error type for the host.
type HostError struct {
	// Code is the error category.
	Code ErrorCode

	// Message is a human-readable error description.
	Message string

	// Section is the config section or component context, if any.
	Section string

	// Option is the config option name, if applicable.
	Option string

	// Err wraps the underlying error.
	Err error
}

// Error implements the error interface.
func (e *HostError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("[%s:%s] %s", e.Code, e.Section, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *HostError) Unwrap() error {
	return e.Err
}

// SetSection sets the context section.
func (e *HostError) SetSection(section string) *HostError {
	e.Section = section
	return e
}

// SetOption sets the config option.
func (e *HostError) SetOption(option string) *HostError {
	e.Option = option
	return e
}

// New creates a new HostError.
func New(code ErrorCode, message string) *HostError {
	return &HostError{Code: code, Message: message}
}

// Newf creates a new HostError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *HostError {
	return &HostError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code ErrorCode, message string) *HostError {
	return &HostError{Code: code, Message: message, Err: err}
}

// Configuration errors

// ConfigSectionError creates an error for a missing config section.
func ConfigSectionError(section string) *HostError {
	return New(ErrConfigSection, fmt.Sprintf("section '%s' not found", section)).
		SetSection(section)
}

// ConfigOptionError creates an error for a missing or invalid config option.
func ConfigOptionError(section, option string) *HostError {
	return New(ErrConfigOption, fmt.Sprintf("option '%s' not found in section '%s'", option, section)).
		SetSection(section).
		SetOption(option)
}

// ConfigValidationError creates an error for a config validation failure.
func ConfigValidationError(section, option, reason string) *HostError {
	return New(ErrConfigValidation, fmt.Sprintf("option '%s' in section '%s': %s", option, section, reason)).
		SetSection(section).
		SetOption(option)
}

// Command errors

// TargetOutOfRangeError reports a requested temperature outside the
// heater's configured bounds.
func TargetOutOfRangeError(degrees, minTemp, maxTemp float64) *HostError {
	return Newf(ErrTargetOutOfRange,
		"requested temperature (%.1f) out of range (%.1f:%.1f)",
		degrees, minTemp, maxTemp)
}

// WrongHeaterKindError reports a command issued against a heater that is
// not serial-controlled.
func WrongHeaterKindError(heater string) *HostError {
	return Newf(ErrWrongHeaterKind, "command not defined for heater '%s'", heater).
		SetSection(heater)
}

// UnknownHeaterError reports a heater lookup failure.
func UnknownHeaterError(name string) *HostError {
	return Newf(ErrUnknownHeater, "unknown heater '%s'", name)
}

// Link errors

// LinkConnectError reports a failed connection attempt.
func LinkConnectError(device string, err error) *HostError {
	return Wrap(err, ErrLinkConnect, fmt.Sprintf("unable to open '%s'", device))
}

// LinkReadError reports a read failure on an open connection.
func LinkReadError(device string, err error) *HostError {
	return Wrap(err, ErrLinkRead, fmt.Sprintf("read from '%s' failed", device))
}

// LinkWriteError reports a write failure on an open connection.
func LinkWriteError(device string, err error) *HostError {
	return Wrap(err, ErrLinkWrite, fmt.Sprintf("write to '%s' failed", device))
}

// RetriesExhaustedError reports the fatal reconnect-cap condition.
func RetriesExhaustedError(device string, attempts int) *HostError {
	return Newf(ErrRetriesExhausted,
		"connection to INO on '%s' lost and could not be reestablished after %d attempts",
		device, attempts)
}

// Protocol errors

// ProtocolParseError reports an unparsable incoming frame.
func ProtocolParseError(frame, reason string) *HostError {
	return Newf(ErrProtocolParse, "malformed frame %q: %s", frame, reason)
}

// Is checks whether err carries the given error code.
func Is(err error, code ErrorCode) bool {
	var hostErr *HostError
	if errors.As(err, &hostErr) {
		return hostErr.Code == code
	}
	return false
}

// IsConfig reports whether err is a configuration or command rejection
// error, i.e. one reported synchronously to the caller with no state change.
func IsConfig(err error) bool {
	return Is(err, ErrConfigSection) ||
		Is(err, ErrConfigOption) ||
		Is(err, ErrConfigValidation) ||
		Is(err, ErrTargetOutOfRange) ||
		Is(err, ErrWrongHeaterKind) ||
		Is(err, ErrUnknownHeater)
}

// IsLink reports whether err is a transient serial link error, recovered
// automatically via the next connect attempt.
func IsLink(err error) bool {
	return Is(err, ErrLinkConnect) ||
		Is(err, ErrLinkRead) ||
		Is(err, ErrLinkWrite)
}

// IsFatal reports whether err must escalate to a process-level shutdown.
func IsFatal(err error) bool {
	return Is(err, ErrRetriesExhausted)
}
