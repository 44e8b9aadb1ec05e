package reconcile

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoLinkFound means no sync link governs the event's actor and team. The
// event is dropped without any outbound call.
var ErrNoLinkFound = errors.New("no sync link found")

// StatusCoder is implemented by client errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// StatusOf returns the HTTP status carried by err, or 0 when there is none.
func StatusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

// CallError is an outbound call to GitHub or Linear that did not succeed.
type CallError struct {
	Op     string
	Status int
	Err    error
}

func (e *CallError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// StatusCode returns the remote status, satisfying StatusCoder.
func (e *CallError) StatusCode() int { return e.Status }

// FatalError aborts the remaining steps of one reconciler. Sibling
// reconcilers of the same event still run.
type FatalError struct {
	Field  string
	Status int
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("reconciling %s: %v", e.Field, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// fatal wraps err for field. Failed outbound calls map to 502, anything else
// (store failures) to 500.
func fatal(field string, err error) *FatalError {
	status := http.StatusInternalServerError
	var callErr *CallError
	if errors.As(err, &callErr) {
		status = http.StatusBadGateway
	}
	return &FatalError{Field: field, Status: status, Err: err}
}

// HTTPStatus maps the error returned by Engine.Handle to the status the
// webhook sender should see.
func HTTPStatus(err error) int {
	if err == nil || errors.Is(err, ErrNoLinkFound) {
		return http.StatusOK
	}
	var f *FatalError
	if errors.As(err, &f) {
		return f.Status
	}
	return http.StatusInternalServerError
}
