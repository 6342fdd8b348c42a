package fetch

import (
	"errors"
	"fmt"
)

// ErrTransientExhausted is matched by errors.Is when a transient failure
// outlived the retry budget.
var ErrTransientExhausted = errors.New("transient failure: retries exhausted")

// HTTPError is a permanent, non-retried HTTP failure.
type HTTPError struct {
	URL        string
	StatusCode int
	Snippet    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s: %s", e.StatusCode, e.URL, e.Snippet)
}

// TransientError reports the last transient failure once retries ran out.
type TransientError struct {
	URL      string
	Attempts int
	Reason   string
	Cause    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("get %s: %d attempts, last failure %s: %v", e.URL, e.Attempts, e.Reason, ErrTransientExhausted)
}

// Unwrap exposes both the sentinel and the last network error, if any.
func (e *TransientError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrTransientExhausted}
	}
	return []error{ErrTransientExhausted, e.Cause}
}
