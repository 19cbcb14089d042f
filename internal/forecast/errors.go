package forecast

import "fmt"

// DataError reports a weather payload that is structurally unusable. No partial
// result accompanies it.
type DataError struct {
	Reason string
}

func (e *DataError) Error() string {
	return "forecast data: " + e.Reason
}

// ConfigError reports a threshold value that cannot be normalised for the
// humidity model.
type ConfigError struct {
	Field string
	Value float64
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("forecast config: invalid %s: %v", e.Field, e.Value)
}
