package session

import (
	"time"

	"github.com/dkeye/panorama/internal/core"
)

// sendLoop is the only user of s.writer.
func (s *Session) sendLoop() core.Outcome {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	defer s.closeHandshake()

	if !s.cfg.InitialFrame.IsZero() {
		if err := s.write(s.cfg.InitialFrame); err != nil {
			return s.pumpFailed(senderPump, err)
		}
	}

	for {
		select {
		case f := <-s.queue.Out():
			if err := s.write(f); err != nil {
				return s.pumpFailed(senderPump, err)
			}
			if f.Kind() == core.FrameClose {
				s.closing.Store(true)
				s.queue.Close()
				return core.Outcome{Kind: core.ClosedNormally}
			}
		case <-ticker.C:
			if err := s.write(core.Ping(s.cfg.HeartbeatPayload)); err != nil {
				return s.pumpFailed(senderPump, err)
			}
			s.pingsSent.Add(1)
		case <-s.queue.Done():
			if s.closing.Load() && !s.stopping.Load() {
				if err := s.flush(); err != nil {
					return s.pumpFailed(senderPump, err)
				}
			}
			return core.Outcome{Kind: core.ClosedNormally}
		}
	}
}

// flush writes what is still buffered after a local close.
func (s *Session) flush() error {
	for {
		select {
		case f := <-s.queue.Out():
			if err := s.write(f); err != nil {
				return err
			}
			if f.Kind() == core.FrameClose {
				return nil
			}
		default:
			return nil
		}
	}
}

func (s *Session) write(f core.Frame) error {
	if err := s.writer.WriteFrame(f, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	if f.Kind() == core.FrameClose {
		s.closeSent.Store(true)
	}
	s.framesSent.Add(1)
	s.obs.FrameSent(f.Kind())
	return nil
}

// closeHandshake sends one close frame, echoing the peer code if the peer
// closed first. Errors are ignored.
func (s *Session) closeHandshake() {
	if s.closeSent.Load() {
		return
	}
	code := int(s.peerCode.Load())
	if code == 0 || code == core.CloseNoStatus {
		code = core.CloseNormalClosure
	}
	err := s.writer.WriteFrame(core.Close(code, ""), time.Now().Add(s.cfg.CloseTimeout))
	if err != nil {
		s.logger.Debug().Err(err).Msg("close handshake")
		return
	}
	s.closeSent.Store(true)
	s.framesSent.Add(1)
	s.obs.FrameSent(core.FrameClose)
}

// pumpFailed classifies a pump error. Errors raised after the supervisor
// started tearing the session down are a consequence of that teardown.
func (s *Session) pumpFailed(p pump, err error) core.Outcome {
	if s.stopping.Load() {
		s.logger.Debug().Err(err).Stringer("pump", p).Msg("pump stopped")
		return core.Outcome{Kind: core.ClosedNormally}
	}
	o := core.OutcomeFor(err)
	s.logger.Debug().Err(err).Stringer("pump", p).Stringer("outcome", o.Kind).Msg("pump failed")
	return o
}
