package client

import (
	"fmt"
	"net/http"
)

// TransportError reports a failed request: the connection failed, the venue
// answered with a non-2xx status, or the response body could not be decoded.
// It is always fatal to a run.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int
	// Message is the venue's own error text when the body carried one
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	default:
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
