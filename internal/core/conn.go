package core

import (
	"net"
	"time"
)

type SessionID string

// FrameWriter is the writer half of a connection.
// Only the sender pump may hold it.
type FrameWriter interface {
	WriteFrame(f Frame, deadline time.Time) error
}

// FrameReader is the reader half of a connection.
// Only the receiver pump may hold it.
type FrameReader interface {
	// ReadFrame blocks until the next Text, Binary or Close frame. Ping and
	// Pong frames read on the way are passed to onControl and restart the
	// timeout. A Close frame is returned with a nil error.
	ReadFrame(timeout time.Duration, onControl func(Frame)) (Frame, error)
}

// Conn is an established duplex connection.
// Owned by the adapter that created it until Split hands the halves to a
// session; the session then owns Close.
type Conn interface {
	// Split hands out the two halves. It succeeds once; later calls return
	// ErrAlreadySplit.
	Split() (FrameWriter, FrameReader, error)
	// Close tears the socket down, unblocking a pending ReadFrame.
	// Safe to call more than once and concurrently with the halves.
	Close() error
	RemoteAddr() net.Addr
}
