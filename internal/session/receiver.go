package session

import (
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/dkeye/panorama/internal/core"
)

// recvLoop is the only user of s.reader.
func (s *Session) recvLoop() core.Outcome {
	for {
		f, err := s.reader.ReadFrame(s.cfg.ReadTimeout, s.onControl)
		if err != nil {
			return s.pumpFailed(receiverPump, err)
		}
		s.framesReceived.Add(1)
		s.obs.FrameReceived(f.Kind())

		switch f.Kind() {
		case core.FrameClose:
			s.peerCode.Store(int32(f.CloseCode()))
			s.logger.Debug().Int("code", f.CloseCode()).Str("reason", f.CloseReason()).Msg("peer closed")
			return core.Outcome{
				Kind:        core.ClosedByPeer,
				CloseCode:   f.CloseCode(),
				CloseReason: f.CloseReason(),
			}
		case core.FrameText, core.FrameBinary:
			if r := s.deliver(f); r != nil {
				s.logger.Error().Str("panic", r.String()).Msg("message handler panicked")
				return core.Outcome{
					Kind: core.TransportFailure,
					Err:  &core.TransportError{Op: "deliver", Err: r.AsError()},
				}
			}
		default:
			s.logger.Warn().Stringer("kind", f.Kind()).Msg("unexpected frame from reader")
		}
	}
}

func (s *Session) deliver(f core.Frame) *panics.Recovered {
	var pc panics.Catcher
	pc.Try(func() { s.handler.OnMessage(s, f) })
	return pc.Recovered()
}

// onControl runs on the receiver goroutine while a read is in progress.
func (s *Session) onControl(f core.Frame) {
	s.framesReceived.Add(1)
	s.obs.FrameReceived(f.Kind())

	switch f.Kind() {
	case core.FramePing:
		if err := s.queue.TryEnqueue(core.Pong(f.Data())); err != nil {
			s.enqueued(err)
			s.logger.Warn().Err(err).Msg("pong reply not queued")
		}
	case core.FramePong:
		s.pongsReceived.Add(1)
		s.lastPong.Store(time.Now().UnixNano())
		s.logger.Debug().Int("len", f.Len()).Msg("received pong")
	}
}
