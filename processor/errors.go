package processor

import (
	"errors"
	"fmt"
)

// ErrMissingBand is wrapped by the ConfigError returned when a sample or
// tile does not carry a band the script declared.
var ErrMissingBand = errors.New("missing band")

// ConfigError reports a configuration-kind failure: a malformed ramp,
// an invalid output layout, an unknown band reference or a sample that
// breaks the declared input contract.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if len(e.Field) == 0 {
		return fmt.Sprintf("config error: %v", e.Err)
	}
	return fmt.Sprintf("config error: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErrorf(field string, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

func missingBand(name string) error {
	return &ConfigError{Field: name, Err: ErrMissingBand}
}
