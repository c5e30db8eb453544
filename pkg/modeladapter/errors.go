package modeladapter

import (
	"fmt"
	"net/http"
)

// TransportError reports a completion request that never produced a usable
// HTTP response: a dial failure, a timeout, or a non-2xx status.
type TransportError struct {
	Endpoint   string
	StatusCode int    // 0 when no response was received.
	Body       string // Response body for status failures.
	Err        error  // Underlying cause, nil for status failures.
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 && e.Err == nil {
		return fmt.Sprintf("%d %s for url: %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Endpoint, e.Body)
	}
	return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError reports a 2xx response whose body does not have the
// chat completion shape.
type MalformedResponseError struct {
	Body string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%v. Response: %s", e.Err, e.Body)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
