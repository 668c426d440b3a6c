package workflow

import (
	"errors"
	"fmt"
)

// unauthorizedError signals a rejected x-server-token (HTTP 401).
type unauthorizedError struct{ op string }

func (e unauthorizedError) Error() string { return e.op + ": invalid server token" }

// IsUnauthorized reports whether err indicates the server key was rejected.
func IsUnauthorized(err error) bool {
	var u unauthorizedError
	return errors.As(err, &u)
}

// statusError carries a non-success HTTP status from the workflow API.
type statusError struct {
	op   string
	code int
	body string
}

func (e statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("%s: http %d", e.op, e.code)
	}
	return fmt.Sprintf("%s: http %d: %s", e.op, e.code, e.body)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var s statusError
	if errors.As(err, &s) {
		return s.code
	}
	if IsUnauthorized(err) {
		return 401
	}
	return 0
}

// apiError signals a well-formed reply with success=false.
type apiError struct {
	op      string
	message string
}

func (e apiError) Error() string { return e.op + ": api reported failure: " + e.message }

// IsAPIError reports whether the API answered with success=false.
func IsAPIError(err error) bool {
	var a apiError
	return errors.As(err, &a)
}

var errUnknownAction = errors.New("no processor for action")
