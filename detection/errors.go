package detection

import "fmt"

// ConfigurationError reports a request that named a detector which is not
// registered. The whole request is aborted; no detector is invoked.
type ConfigurationError struct {
	Detector string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("unknown detector: %s", e.Detector)
}

// ProviderError wraps a failure from a detector invocation. It is surfaced
// to the caller unchanged; the core never retries.
type ProviderError struct {
	Detector string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("detector %s: %v", e.Detector, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ValidationError reports malformed input, either from the caller (empty
// detector list, threshold out of range) or from a detector that returned
// spans violating its output contract.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
