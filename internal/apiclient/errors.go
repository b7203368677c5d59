package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: backend returned %d", e.Method, e.Path, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	return HasStatus(err, http.StatusNotFound)
}

// IsUnauthorized reports whether the backend rejected the learner's token.
func IsUnauthorized(err error) bool {
	return HasStatus(err, http.StatusUnauthorized) || HasStatus(err, http.StatusForbidden)
}

// HasStatus reports whether err wraps a StatusError with the given code.
func HasStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
