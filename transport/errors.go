package transport

import (
	"fmt"
	"net/http"

	cerrors "github.com/homobie/portal-go/internal/errors"
)

// APIError is a non-2xx response from the backend. Message carries the
// server's message/error/detail field when one was present, falling
// back to the status text.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the auth statuses onto the shared sentinels so callers
// can branch with errors.Is.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return cerrors.ErrUnauthorized
	case http.StatusForbidden:
		return cerrors.ErrForbidden
	case http.StatusNotFound:
		return cerrors.ErrNotFound
	}
	return nil
}

// NetworkError is a transport-level failure (DNS, dial, TLS, reset)
// rewritten into something user-actionable. Never retried by the
// query layer.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("cannot reach the Homobie API at %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err is a classified transport-level
// failure.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return cerrors.As(err, &ne)
}

// StatusCode returns the HTTP status attached to err, or 0 when err is
// not an APIError.
func StatusCode(err error) int {
	var ae *APIError
	if cerrors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}
