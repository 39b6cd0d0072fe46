package config

import "fmt"

// ConfigurationError reports a missing or invalid setting: an unknown path
// role, an empty pattern, a task name nobody registered.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}
