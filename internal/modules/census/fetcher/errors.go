package fetcher

import (
	"fmt"
	"net/http"
)

// TransientError is a retryable condition: rate limiting, a 5xx status or a transport failure.
type TransientError struct {
	StatusCode int
	URL        string
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transient fetch error for %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("transient fetch error: %d %s for %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is a request-level fault that retrying will not fix.
type PermanentError struct {
	StatusCode int
	URL        string
	Snippet    string
	Err        error
}

func (e *PermanentError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("permanent fetch error for %s: %v", e.URL, e.Err)
	case e.Snippet != "":
		return fmt.Sprintf("permanent fetch error: %d %s for %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL, e.Snippet)
	default:
		return fmt.Sprintf("permanent fetch error: %d %s for %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
	}
}

func (e *PermanentError) Unwrap() error { return e.Err }

// FetchFailed reports that every attempt ended in a TransientError.
type FetchFailed struct {
	Attempts   int
	LastStatus int
	Last       *TransientError
}

func (e *FetchFailed) Error() string {
	return fmt.Sprintf("fetch failed after %d attempts (last status %d): %v", e.Attempts, e.LastStatus, e.Last)
}

func (e *FetchFailed) Unwrap() error { return e.Last }

func isTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}
