package proxy

import (
	"errors"
	"fmt"
)

// ErrProxyAuth is returned when a client fails proxy authentication
var ErrProxyAuth = errors.New("proxy authentication required")

// BindError is returned by Listen when the listening address cannot be bound
type BindError struct {
	Address string
	Reason  string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %s: %v", e.Address, e.Reason, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// ListenerError is returned by Serve when accepting fails with a non-transient error
type ListenerError struct {
	Err error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("listener failed: %v", e.Err)
}

func (e *ListenerError) Unwrap() error {
	return e.Err
}

// BadRequestError reports an inbound connection whose target could not be determined
type BadRequestError struct {
	Reason string
	Err    error
}

func (e *BadRequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bad request: %s: %v", e.Reason, e.Err)
	}
	return "bad request: " + e.Reason
}

func (e *BadRequestError) Unwrap() error {
	return e.Err
}

func badRequest(format string, args ...any) *BadRequestError {
	return &BadRequestError{Reason: fmt.Sprintf(format, args...)}
}
