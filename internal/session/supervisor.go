package session

import (
	"context"
	"time"

	"github.com/dkeye/panorama/internal/core"
)

type pump int

const (
	senderPump pump = iota
	receiverPump
)

func (p pump) String() string {
	if p == senderPump {
		return "sender"
	}
	return "receiver"
}

type pumpResult struct {
	pump    pump
	outcome core.Outcome
}

// Start runs the session in its own goroutine.
func (s *Session) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return core.ErrSessionClosed
	}
	go s.supervise(ctx)
	return nil
}

// Run drives the session until it is closed and returns its outcome.
// A session runs once: later calls return ErrSessionClosed.
// Cancelling ctx is a normal local close.
func (s *Session) Run(ctx context.Context) (core.Outcome, error) {
	if !s.started.CompareAndSwap(false, true) {
		return core.Outcome{}, core.ErrSessionClosed
	}
	return s.supervise(ctx), nil
}

func (s *Session) supervise(ctx context.Context) core.Outcome {
	s.state.Store(int32(StateActive))
	s.obs.SessionOpened()
	s.logger.Debug().Str("remote", s.RemoteAddr()).Msg("session active")

	results := make(chan pumpResult, 2)
	go func() { results <- pumpResult{senderPump, s.sendLoop()} }()
	go func() { results <- pumpResult{receiverPump, s.recvLoop()} }()

	var first pumpResult
	select {
	case first = <-results:
	case <-ctx.Done():
		s.closing.Store(true)
		s.queue.Close()
		first = <-results
	}

	s.state.Store(int32(StateDraining))
	s.stopping.Store(true)
	s.logger.Debug().Stringer("pump", first.pump).Stringer("outcome", first.outcome).Msg("session draining")

	var second pumpResult
	switch {
	case first.pump == receiverPump:
		// Sender sees the closed queue, sends its close frame and returns.
		s.queue.Close()
		second = <-results
	case first.outcome.Normal():
		// Local close: give the peer CloseTimeout to answer our close frame.
		second = s.awaitPeer(results)
	default:
		// Sender failed: release producers blocked on a full queue,
		// a handler inside the receiver included, then stop the reader.
		s.queue.Close()
		_ = s.conn.Close()
		second = <-results
	}

	outcome := resolve(first.outcome, second.outcome)
	_ = s.conn.Close()
	s.queue.Close()
	s.finish(outcome)
	s.obs.SessionClosed(outcome)

	ev := s.logger.Info()
	if !outcome.Normal() {
		ev = s.logger.Warn().Err(outcome.Err)
	}
	ev.Stringer("outcome", outcome.Kind).
		Uint64("frames_sent", s.framesSent.Load()).
		Uint64("frames_received", s.framesReceived.Load()).
		Msg("session closed")
	return outcome
}

func (s *Session) awaitPeer(results <-chan pumpResult) pumpResult {
	t := time.NewTimer(s.cfg.CloseTimeout)
	defer t.Stop()
	select {
	case r := <-results:
		return r
	case <-t.C:
		_ = s.conn.Close()
		return <-results
	}
}

// resolve picks the session outcome: the first failure wins over any
// normal outcome, otherwise the first normal outcome wins.
func resolve(first, second core.Outcome) core.Outcome {
	if !first.Normal() || second.Normal() {
		return first
	}
	return second
}
