package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: remote returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsValidation reports whether err is a remote rejection of the request (4xx).
func IsValidation(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500
}

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}
