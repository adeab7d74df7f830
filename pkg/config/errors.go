package config

import (
	"fmt"
	"strings"

	"ino-host/pkg/errors"
)

// ErrMissingSection reports an absent config section.
func ErrMissingSection(section string) error {
	return errors.ConfigSectionError(section)
}

// ErrMissingOption reports an absent mandatory option.
func ErrMissingOption(section, option string) error {
	return errors.ConfigOptionError(section, option)
}

// ErrInvalidValue reports an option value that failed type conversion.
func ErrInvalidValue(section, option, value, expected string) error {
	return errors.ConfigValidationError(section, option,
		fmt.Sprintf("unable to parse %q as %s", value, expected))
}

// ErrOutOfRange reports an option value outside its allowed bounds.
func ErrOutOfRange(section, option string, value float64, constraint string) error {
	return errors.ConfigValidationError(section, option,
		fmt.Sprintf("value %g %s", value, constraint))
}

// ErrInvalidChoice reports an option value not among the allowed choices.
func ErrInvalidChoice(section, option, value string, choices []string) error {
	return errors.ConfigValidationError(section, option,
		fmt.Sprintf("value %q is not one of: %s", value, strings.Join(choices, ", ")))
}
