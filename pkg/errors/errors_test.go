package errors

import (
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := TargetOutOfRangeError(350, 0, 300)
	want := "[TARGET_OUT_OF_RANGE] requested temperature (350.0) out of range (0.0:300.0)"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}

	err = ConfigValidationError("ino_heater extruder", "max_temp", "must be above min_temp")
	if got := err.Error(); got != "[CONFIG_VALIDATION:ino_heater extruder] option 'max_temp' in section 'ino_heater extruder': must be above min_temp" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestIsMatchesWrappedErrors(t *testing.T) {
	base := LinkWriteError("/dev/ttyUSB0", fmt.Errorf("broken pipe"))
	wrapped := fmt.Errorf("write task: %w", base)

	if !Is(wrapped, ErrLinkWrite) {
		t.Error("Is should see through fmt.Errorf wrapping")
	}
	if Is(wrapped, ErrLinkRead) {
		t.Error("Is matched the wrong code")
	}
	if Is(fmt.Errorf("plain"), ErrLinkWrite) {
		t.Error("Is matched a non-HostError")
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("EIO")
	err := LinkReadError("/dev/ttyUSB0", cause)
	if err.Unwrap() != cause {
		t.Error("Unwrap should return the underlying error")
	}
}

func TestCategoryHelpers(t *testing.T) {
	cases := []struct {
		err    error
		config bool
		link   bool
		fatal  bool
	}{
		{TargetOutOfRangeError(350, 0, 300), true, false, false},
		{WrongHeaterKindError("bed"), true, false, false},
		{UnknownHeaterError("extruder9"), true, false, false},
		{LinkConnectError("/dev/ttyUSB0", fmt.Errorf("busy")), false, true, false},
		{RetriesExhaustedError("/dev/ttyUSB0", 5), false, false, true},
		{ProtocolParseError("tick:", "missing T_a field"), false, false, false},
	}
	for _, tc := range cases {
		if IsConfig(tc.err) != tc.config {
			t.Errorf("IsConfig(%v) != %v", tc.err, tc.config)
		}
		if IsLink(tc.err) != tc.link {
			t.Errorf("IsLink(%v) != %v", tc.err, tc.link)
		}
		if IsFatal(tc.err) != tc.fatal {
			t.Errorf("IsFatal(%v) != %v", tc.err, tc.fatal)
		}
	}
}
