package session

import "github.com/dkeye/panorama/internal/core"

// Observer receives session lifecycle and traffic events.
// Calls come from the pump goroutines and must not block.
type Observer interface {
	SessionOpened()
	SessionClosed(core.Outcome)
	FrameSent(core.FrameKind)
	FrameReceived(core.FrameKind)
	QueueRejected()
}

type nopObserver struct{}

func (nopObserver) SessionOpened()               {}
func (nopObserver) SessionClosed(core.Outcome)   {}
func (nopObserver) FrameSent(core.FrameKind)     {}
func (nopObserver) FrameReceived(core.FrameKind) {}
func (nopObserver) QueueRejected()               {}

// Handler consumes inbound Text and Binary frames.
// OnMessage runs on the receiver pump; it must not block indefinitely.
type Handler interface {
	OnMessage(s *Session, f core.Frame)
}

type HandlerFunc func(s *Session, f core.Frame)

func (fn HandlerFunc) OnMessage(s *Session, f core.Frame) { fn(s, f) }

type discard struct{}

func (discard) OnMessage(*Session, core.Frame) {}
