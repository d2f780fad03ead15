package peptide

import "fmt"

// ValidationError reports invalid input data: a bad amino acid, a pattern
// syntax error, or an out-of-range mask position. It is raised synchronously
// at the offending call and is never retried.
type ValidationError struct {
	Position int // 1-based position of the offending character, 0 if not positional
	Message  string
}

func (e *ValidationError) Error() string {
	if e.Position > 0 {
		return fmt.Sprintf("validation error at position %d: %s", e.Position, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ConfigurationError reports an invalid caller-supplied parameter such as a
// bad filter operator or a non-positive batch size. These are programming
// errors and fail the call immediately.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Message)
}
