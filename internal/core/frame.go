package core

import "fmt"

// FrameKind is the opcode class of a Frame.
type FrameKind uint8

const (
	FrameText FrameKind = iota + 1
	FrameBinary
	FramePing
	FramePong
	FrameClose
)

func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	case FrameClose:
		return "close"
	default:
		return fmt.Sprintf("frame(%d)", uint8(k))
	}
}

// IsControl reports whether frames of this kind are control frames.
func (k FrameKind) IsControl() bool {
	return k == FramePing || k == FramePong || k == FrameClose
}

// Close codes used by the session layer (RFC 6455 section 7.4.1).
const (
	CloseNormalClosure   = 1000
	CloseGoingAway       = 1001
	CloseProtocolError   = 1002
	CloseNoStatus        = 1005
	CloseAbnormalClosure = 1006
	CloseMessageTooBig   = 1009
)

// Frame is one message unit on the duplex connection.
// A Frame is immutable: constructors copy the payload and Data returns a copy.
type Frame struct {
	kind   FrameKind
	data   []byte
	code   int
	reason string
}

func Text(s string) Frame { return Frame{kind: FrameText, data: []byte(s)} }

func Binary(b []byte) Frame { return Frame{kind: FrameBinary, data: clone(b)} }

func Ping(b []byte) Frame { return Frame{kind: FramePing, data: clone(b)} }

func Pong(b []byte) Frame { return Frame{kind: FramePong, data: clone(b)} }

// Close builds a close frame. Code 0 means "no status" and is sent as an
// empty close payload.
func Close(code int, reason string) Frame {
	return Frame{kind: FrameClose, code: code, reason: reason}
}

func (f Frame) Kind() FrameKind { return f.kind }

// Data returns a copy of the payload.
func (f Frame) Data() []byte { return clone(f.data) }

// Len is the payload size in bytes.
func (f Frame) Len() int { return len(f.data) }

// Text returns the payload as a string.
func (f Frame) Text() string { return string(f.data) }

func (f Frame) CloseCode() int { return f.code }

func (f Frame) CloseReason() string { return f.reason }

func (f Frame) IsZero() bool { return f.kind == 0 }

func (f Frame) String() string {
	switch f.kind {
	case FrameText:
		return fmt.Sprintf("text(%q)", f.data)
	case FrameClose:
		return fmt.Sprintf("close(%d, %q)", f.code, f.reason)
	default:
		return fmt.Sprintf("%s(%d bytes)", f.kind, len(f.data))
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
