package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is returned when the server answers with a non-2xx status.
// Callers can use errors.As to get at the status and body:
//
//	var httpErr *HTTPError
//	if errors.As(err, &httpErr) && httpErr.Status == http.StatusForbidden { ... }
type HTTPError struct {
	Status int
	// Body is the parsed JSON error body, or nil when the server sent
	// nothing or something that is not JSON.
	Body   json.RawMessage
	Method string
	Path   string
}

func (e *HTTPError) Error() string {
	if detail := e.Detail(); detail != "" {
		return fmt.Sprintf("client: %s %s: %d %s: %s", e.Method, e.Path, e.Status, http.StatusText(e.Status), detail)
	}
	return fmt.Sprintf("client: %s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

// Detail returns body.detail when it is a string. Validation errors carry a
// list there instead; those return "".
func (e *HTTPError) Detail() string {
	if len(e.Body) == 0 {
		return ""
	}
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(e.Body, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(body.Detail, &detail); err != nil {
		return ""
	}
	return detail
}

// NetworkError is returned when no response was received: connection
// refused, DNS failure, timeout, or context cancellation.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("client: %s %s: no response: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status carried by err, or 0 if err is not an
// *HTTPError.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 from the server.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// IsNetwork reports whether err means the server was never reached.
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// Message picks the text to show a user for err: the server's detail when
// it sent one, otherwise fallback.
func Message(err error, fallback string) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if detail := httpErr.Detail(); detail != "" {
			return detail
		}
	}
	return fallback
}
