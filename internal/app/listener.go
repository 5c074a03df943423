package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	adapterhttp "github.com/dkeye/panorama/internal/adapters/http"
	"github.com/dkeye/panorama/internal/adapters/ws"
	"github.com/dkeye/panorama/internal/config"
	"github.com/dkeye/panorama/internal/domain"
	"github.com/dkeye/panorama/internal/metrics"
	"github.com/dkeye/panorama/internal/session"
)

const shutdownTimeout = 5 * time.Second

// SessionFactory picks the message handler for a newly accepted peer.
type SessionFactory func(peer domain.Peer) session.Handler

// Listener accepts connections, answers the handshake and runs one
// independent session per connection.
type Listener struct {
	cfg      *config.Config
	sessCfg  session.Config
	factory  SessionFactory
	registry *Registry
	metrics  *metrics.Collector
	upgrader *ws.Upgrader
	limiter  *ws.HandshakeLimiter

	mu       sync.Mutex
	draining bool // set once shutdown starts; no session is spawned after
	sessions conc.WaitGroup
}

// NewListener builds a listener. A nil collector gets a private one.
func NewListener(cfg *config.Config, factory SessionFactory, m *metrics.Collector) (*Listener, error) {
	sessCfg, err := cfg.Session()
	if err != nil {
		return nil, err
	}
	if err := sessCfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		factory = EchoFactory
	}
	if m == nil {
		m = metrics.NewCollector()
	}
	return &Listener{
		cfg:      cfg,
		sessCfg:  sessCfg,
		factory:  factory,
		registry: NewRegistry(),
		metrics:  m,
		upgrader: ws.NewUpgrader(ws.UpgradeOptions{
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadLimit:        cfg.ReadLimit,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		}),
		limiter: ws.NewHandshakeLimiter(cfg.HandshakeRate, cfg.HandshakeWindow),
	}, nil
}

func (l *Listener) Registry() *Registry { return l.registry }

// Run binds addr and serves until ctx is cancelled. A bind or accept
// failure is returned; per-connection failures are logged and never end
// the loop.
func (l *Listener) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	return l.Serve(ctx, ln)
}

// Serve is Run on an already bound listener. It takes ownership of ln.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	sessCtx, cancelSessions := context.WithCancel(ctx)
	defer cancelSessions()

	router := adapterhttp.SetupRouter(l.cfg, adapterhttp.Routes{
		Upgrade: l.handleUpgrade(sessCtx),
		Health:  l.handleHealth,
		Metrics: l.metrics.Handler(),
	})
	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: l.cfg.HandshakeTimeout,
	}

	var sweeper conc.WaitGroup
	if l.limiter != nil {
		sweeper.Go(func() { l.sweepLimiter(sessCtx) })
	}

	errCh := make(chan error, 1)
	go func() {
		if l.cfg.TLS.Enabled() {
			errCh <- srv.ServeTLS(ln, l.cfg.TLS.CertFile, l.cfg.TLS.KeyFile)
			return
		}
		errCh <- srv.Serve(ln)
	}()
	log.Info().Str("module", "app.listener").Str("addr", ln.Addr().String()).Bool("tls", l.cfg.TLS.Enabled()).Msg("listening")

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("serve %s: %w", ln.Addr(), err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("module", "app.listener").Msg("http shutdown")
		}
		cancel()
		<-errCh
	}

	cancelSessions()
	sweeper.Wait()
	l.mu.Lock()
	l.draining = true
	l.mu.Unlock()
	l.registry.CloseAll()
	if r := l.sessions.WaitAndRecover(); r != nil {
		log.Error().Str("module", "app.listener").Str("panic", r.String()).Msg("session goroutine panicked")
	}
	log.Info().Str("module", "app.listener").Msg("listener stopped")
	return serveErr
}

// sweepLimiter drops idle rate limiter keys once per window.
func (l *Listener) sweepLimiter(ctx context.Context) {
	t := time.NewTicker(l.cfg.HandshakeWindow)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.limiter.Sweep()
			log.Debug().Str("module", "app.listener").Int("keys", l.limiter.Len()).Msg("handshake limiter swept")
		}
	}
}

func (l *Listener) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": l.registry.Len(),
	})
}

func (l *Listener) handleUpgrade(ctx context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetString(adapterhttp.ClientTokenCtxKey)
		peer := domain.NewPeer(token, c.Request.RemoteAddr, c.Request.UserAgent())
		logger := log.With().Str("module", "app.listener").Str("peer", string(peer.ID)).Str("remote", peer.RemoteAddr).Logger()

		if !l.limiter.Allow(c.ClientIP()) {
			l.metrics.HandshakeFailed("rate_limited")
			logger.Warn().Msg("handshake rate limited")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many handshakes"})
			return
		}

		conn, err := l.upgrader.Upgrade(c.Writer, c.Request)
		if err != nil {
			l.metrics.HandshakeFailed("upgrade")
			logger.Error().Err(err).Msg("ws upgrade")
			return
		}

		sess, err := session.New(conn, l.sessCfg, l.factory(peer),
			session.WithObserver(l.metrics),
			session.WithLogger(logger.With().Str("module", "session").Logger()),
		)
		if err != nil {
			l.metrics.HandshakeFailed("session")
			logger.Error().Err(err).Msg("new session")
			_ = conn.Close()
			return
		}

		l.mu.Lock()
		defer l.mu.Unlock()
		if l.draining {
			l.metrics.HandshakeFailed("shutdown")
			logger.Warn().Msg("listener shutting down, dropping connection")
			sess.Close()
			return
		}

		l.registry.Bind(peer, sess)
		logger.Info().Str("sid", string(sess.ID())).Str("subprotocol", conn.Subprotocol()).Msg("new WS connection")

		l.sessions.Go(func() {
			defer l.registry.Unbind(sess.ID())
			outcome, err := sess.Run(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("session run")
				return
			}
			if !outcome.Normal() {
				logger.Warn().Err(outcome.Err).Stringer("outcome", outcome.Kind).Str("sid", string(sess.ID())).Msg("session failed")
			}
		})
	}
}
