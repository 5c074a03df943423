package app

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/panorama/internal/core"
	"github.com/dkeye/panorama/internal/domain"
	"github.com/dkeye/panorama/internal/session"
)

type sessionEntry struct {
	Peer    domain.Peer
	Session *session.Session
}

// Registry tracks live sessions of a listener.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
	}
}

func (r *Registry) Bind(peer domain.Peer, sess *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID()] = &sessionEntry{Peer: peer, Session: sess}
	log.Debug().Str("module", "app.registry").Str("sid", string(sess.ID())).Str("peer", string(peer.ID)).Msg("bound session")
}

func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Debug().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

func (r *Registry) Get(sid core.SessionID) (*session.Session, domain.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, e.Peer, true
	}
	return nil, domain.Peer{}, false
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

type regSnap struct {
	SID     core.SessionID
	Peer    domain.Peer
	Session *session.Session
}

func (r *Registry) Snapshot() []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		out = append(out, regSnap{SID: sid, Peer: e.Peer, Session: e.Session})
	}
	return out
}

// CloseAll closes every live session concurrently and waits for them.
func (r *Registry) CloseAll() {
	snaps := r.Snapshot()
	var wg conc.WaitGroup
	for _, snap := range snaps {
		wg.Go(func() { snap.Session.Close() })
	}
	if rec := wg.WaitAndRecover(); rec != nil {
		log.Error().Str("module", "app.registry").Str("panic", rec.String()).Msg("session close panicked")
	}
	log.Info().Str("module", "app.registry").Int("sessions", len(snaps)).Msg("closed all sessions")
}
