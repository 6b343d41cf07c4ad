package subalpha

import (
	"fmt"
)

// ConfigError reports an invocation rejected before any work was
// dispatched.
type ConfigError struct {
	Field string // Offending input, e.g. "dtype", "shape", "c".
	Err   error  // Underlying cause.
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("subalpha: invalid %s: %v", e.Field, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configError(field string, err error) error {
	return &ConfigError{Field: field, Err: err}
}
