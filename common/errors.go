package common

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthenticationFailed means the credential could not be recovered after at most
	// one refresh-and-retry cycle. Callers should treat the session as gone.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrNoCredential means a refresh was requested while the store held no credential.
	ErrNoCredential = errors.New("no credential to refresh")
)

// HTTPError is a custom error that captures unexpected status codes and response bodies.
// It is returned when the server replied with an error status but no structured body.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, string(e.Body))
}

// ServerError is an application error reported by the backend in a {"message": "..."} body.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

// TransportError wraps a network level failure (dial, timeout, reset) unchanged.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PermanentError stops RetryWithExponentialBackoff, which returns Err unwrapped.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the HTTP status carried by err, if any.
func StatusCode(err error) (int, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode, true
	}
	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		return srvErr.StatusCode, true
	}
	return 0, false
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
