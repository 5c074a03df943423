// Package session drives one established duplex connection: a sender pump
// that owns the writer half, a receiver pump that owns the reader half, and
// a supervisor that races them and resolves a single Outcome.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/panorama/internal/core"
)

type State int32

const (
	StateHandshaking State = iota
	StateActive
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time snapshot of session counters.
type Stats struct {
	FramesSent     uint64
	FramesReceived uint64
	PingsSent      uint64
	PongsReceived  uint64
	QueueRejected  uint64
	QueueLen       int
	LastPong       time.Time
}

type Option func(*Session)

func WithID(id core.SessionID) Option {
	return func(s *Session) { s.id = id }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.obs = o
		}
	}
}

type Session struct {
	id      core.SessionID
	cfg     Config
	conn    core.Conn
	writer  core.FrameWriter
	reader  core.FrameReader
	queue   *core.Queue
	handler Handler
	obs     Observer
	logger  zerolog.Logger

	state    atomic.Int32
	started  atomic.Bool
	closing  atomic.Bool // local close requested; flush the queue first
	stopping atomic.Bool // supervisor is tearing down the sibling pump

	closeSent atomic.Bool  // written by the sender pump only
	peerCode  atomic.Int32 // close code received from the peer

	framesSent     atomic.Uint64
	framesReceived atomic.Uint64
	pingsSent      atomic.Uint64
	pongsReceived  atomic.Uint64
	queueRejected  atomic.Uint64
	lastPong       atomic.Int64

	done     chan struct{}
	doneOnce sync.Once
	outcome  core.Outcome
}

// New splits conn and prepares a session in state Handshaking.
// The session owns conn from here on, including on error.
func New(conn core.Conn, cfg Config, h Handler, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	w, r, err := conn.Split()
	if err != nil {
		return nil, err
	}
	if h == nil {
		h = discard{}
	}
	s := &Session{
		id:      core.SessionID(uuid.NewString()),
		cfg:     cfg,
		conn:    conn,
		writer:  w,
		reader:  r,
		queue:   core.NewQueue(cfg.QueueCapacity, cfg.Backpressure),
		handler: h,
		obs:     nopObserver{},
		done:    make(chan struct{}),
	}
	s.logger = log.With().Str("module", "session").Logger()
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("sid", string(s.id)).Logger()
	if cfg.ReadTimeout <= cfg.HeartbeatInterval {
		s.logger.Warn().
			Dur("read_timeout", cfg.ReadTimeout).
			Dur("heartbeat_interval", cfg.HeartbeatInterval).
			Msg("read timeout not above heartbeat interval, idle peers may time out")
	}
	return s, nil
}

func (s *Session) ID() core.SessionID { return s.id }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) Config() Config { return s.cfg }

func (s *Session) RemoteAddr() string {
	if a := s.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

// Send enqueues f for transmission under the configured backpressure policy.
func (s *Session) Send(ctx context.Context, f core.Frame) error {
	return s.enqueued(s.queue.Enqueue(ctx, f))
}

// TrySend enqueues f without ever blocking.
func (s *Session) TrySend(f core.Frame) error {
	return s.enqueued(s.queue.TryEnqueue(f))
}

func (s *Session) enqueued(err error) error {
	if err == core.ErrQueueFull {
		s.queueRejected.Add(1)
		s.obs.QueueRejected()
	}
	return err
}

// Close asks for a normal local close and waits for the outcome. Frames
// already queued are flushed before the close handshake.
func (s *Session) Close() core.Outcome {
	s.closing.Store(true)
	s.queue.Close()
	if s.started.CompareAndSwap(false, true) {
		// Never ran: nothing to drain.
		_ = s.conn.Close()
		s.finish(core.Outcome{Kind: core.ClosedNormally})
	}
	<-s.done
	return s.outcome
}

// Done is closed once the session reached StateClosed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Outcome returns the resolved outcome. Valid after Done is closed.
func (s *Session) Outcome() core.Outcome {
	select {
	case <-s.done:
		return s.outcome
	default:
		return core.Outcome{}
	}
}

func (s *Session) Stats() Stats {
	st := Stats{
		FramesSent:     s.framesSent.Load(),
		FramesReceived: s.framesReceived.Load(),
		PingsSent:      s.pingsSent.Load(),
		PongsReceived:  s.pongsReceived.Load(),
		QueueRejected:  s.queueRejected.Load(),
		QueueLen:       s.queue.Len(),
	}
	if ns := s.lastPong.Load(); ns != 0 {
		st.LastPong = time.Unix(0, ns)
	}
	return st
}

func (s *Session) finish(o core.Outcome) {
	s.doneOnce.Do(func() {
		s.outcome = o
		s.state.Store(int32(StateClosed))
		close(s.done)
	})
}
