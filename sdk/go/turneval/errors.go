// Package turneval provides a Go client for the turneval evaluation API.
package turneval

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents an error from the turneval API with the HTTP status code
// and the server's error message.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("turneval: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

func hasStatus(err error, status int) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == status
}

// IsNotFound returns true if the error is a 404, e.g. no cached report.
func IsNotFound(err error) bool { return hasStatus(err, http.StatusNotFound) }

// IsInvalidInput returns true if the error is a 400: the context failed validation.
func IsInvalidInput(err error) bool { return hasStatus(err, http.StatusBadRequest) }

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool { return hasStatus(err, http.StatusUnauthorized) }

// IsForbidden returns true if the error is a 403.
func IsForbidden(err error) bool { return hasStatus(err, http.StatusForbidden) }

// IsRateLimited returns true if the error is a 429 (Too Many Requests).
func IsRateLimited(err error) bool { return hasStatus(err, http.StatusTooManyRequests) }
