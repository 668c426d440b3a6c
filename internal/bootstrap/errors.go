package bootstrap

import (
	"errors"
	"fmt"
)

// readinessTimeoutError signals that a dependency never answered within the attempt budget.
type readinessTimeoutError struct {
	name     string
	url      string
	attempts int
	last     error
}

func (e readinessTimeoutError) Error() string {
	msg := fmt.Sprintf("%s not ready at %s after %d attempts", e.name, e.url, e.attempts)
	if e.last != nil {
		msg += ": " + e.last.Error()
	}
	return msg
}

func (e readinessTimeoutError) Unwrap() error { return e.last }

// IsReadinessTimeout reports whether err is a readiness gate exhaustion.
func IsReadinessTimeout(err error) bool {
	var t readinessTimeoutError
	return errors.As(err, &t)
}

// modelFetchError signals that a required model could not be verified or pulled.
type modelFetchError struct {
	model string
	op    string
	err   error
}

func (e modelFetchError) Error() string {
	return fmt.Sprintf("model %s: %s failed: %v", e.model, e.op, e.err)
}

func (e modelFetchError) Unwrap() error { return e.err }

// IsModelFetchFailed reports whether err is an inventory or pull failure.
func IsModelFetchFailed(err error) bool {
	var m modelFetchError
	return errors.As(err, &m)
}

// FailedModel returns the model named by a fetch failure, or "".
func FailedModel(err error) string {
	var m modelFetchError
	if errors.As(err, &m) {
		return m.model
	}
	return ""
}

// runtimeExitedError signals that the background runtime died before the sequence finished.
type runtimeExitedError struct {
	err  error
	tail string
}

func (e runtimeExitedError) Error() string {
	msg := "runtime exited early"
	if e.err != nil {
		msg += ": " + e.err.Error()
	}
	if e.tail != "" {
		msg += "; stderr tail: " + e.tail
	}
	return msg
}

func (e runtimeExitedError) Unwrap() error { return e.err }

// IsRuntimeExited reports whether err indicates the runtime process terminated early.
func IsRuntimeExited(err error) bool {
	var r runtimeExitedError
	return errors.As(err, &r)
}

var errEmptyServerKey = errors.New("registration returned an empty server key")
