package strategy

import "fmt"

// NetworkError reports a fetch failure for which the active strategy had no
// cache fallback. It is the only error a caller of the executor can see apart
// from context cancellation: storage failures are always absorbed and logged.
type NetworkError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network fetch failed for %s: %v", e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *NetworkError) Unwrap() error {
	return e.Err
}
