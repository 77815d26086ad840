package client

import (
	"errors"
	"fmt"
)

var (
	// ErrInterrupted is returned by Run when the session was stopped from the
	// outside, through Stop(true) or context cancellation.
	ErrInterrupted = errors.New("session interrupted")

	errNoInput = errors.New("no input source for collision prompt")
)

// ConnectError means the control connection could not be established.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("can't connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ProtocolError means the server sent something unexpected, or stopped sending
// before the end of the response.
type ProtocolError struct {
	Msg string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return "protocol error: " + e.Msg
	}
	return fmt.Sprintf("protocol error: %s: %v", e.Msg, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IOError is a failure of a local resource or a socket operation.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error { return e.Err }

func IsConnectError(err error) bool {
	var e *ConnectError
	return errors.As(err, &e)
}

func IsProtocolError(err error) bool {
	var e *ProtocolError
	return errors.As(err, &e)
}

func IsIOError(err error) bool {
	var e *IOError
	return errors.As(err, &e)
}
