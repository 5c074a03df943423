package core

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is the backpressure signal of a fail-fast enqueue.
	ErrQueueFull = errors.New("outbound queue full")
	// ErrQueueClosed is returned once the producer side has been closed.
	ErrQueueClosed = errors.New("outbound queue closed")

	ErrReadTimeout  = errors.New("read timeout")
	ErrWriteTimeout = errors.New("write timeout")

	ErrAlreadySplit  = errors.New("connection already split")
	ErrSessionClosed = errors.New("session closed")
)

// ConnectError is a failed dial or opening handshake. It is fatal to that
// connection attempt only.
type ConnectError struct {
	URL        string
	StatusCode int // HTTP status of the handshake response, 0 if none
	Err        error
}

func (e *ConnectError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("connect %s: %v (status %d)", e.URL, e.Err, e.StatusCode)
	}
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TransportError is an underlying I/O failure on an established connection.
type TransportError struct {
	Op  string // "read", "write", "close"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a malformed or oversized frame.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }
