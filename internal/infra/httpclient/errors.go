// Package httpclient owns all outbound HTTP for the pipeline: bounded
// concurrency fetches for C6's source adapters and C3's extractor, plus
// a budgeted headless-render call used only by C3's strategy 5.
package httpclient

import (
	"errors"
	"fmt"
)

// Transient indicates the caller should retry the fetch (network error,
// 5xx, 429, timeout). Permanent indicates retrying will not help.
var (
	ErrTransient  = errors.New("transient fetch error")
	ErrCancelled  = errors.New("fetch cancelled")
	ErrNoRenderer = errors.New("headless render unavailable")
)

// PermanentError wraps a non-retryable HTTP status (4xx other than 429).
type PermanentError struct {
	Status int
	URL    string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent fetch error: %s returned %d", e.URL, e.Status)
}

// IsPermanent reports whether err is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsTransient reports whether err should be retried by the caller.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
