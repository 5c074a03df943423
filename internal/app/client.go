package app

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/dkeye/panorama/internal/adapters/ws"
	"github.com/dkeye/panorama/internal/config"
	"github.com/dkeye/panorama/internal/session"
)

// Connect dials cfg.Target and starts a session on the new connection.
// ctx bounds the handshake only; the session lives until Close. A failed
// dial is returned as *core.ConnectError. There is no reconnect.
func Connect(ctx context.Context, cfg *config.Config, h session.Handler, opts ...session.Option) (*session.Session, error) {
	sessCfg, err := cfg.Session()
	if err != nil {
		return nil, err
	}

	var tlsCfg *tls.Config
	if strings.HasPrefix(cfg.Target, "wss://") {
		tlsCfg, err = ws.ClientTLS(cfg.TLS.CAFile, cfg.TLS.InsecureSkipVerify)
		if err != nil {
			return nil, err
		}
	}

	conn, err := ws.Dial(ctx, cfg.Target, ws.DialOptions{
		HandshakeTimeout: cfg.HandshakeTimeout,
		ReadLimit:        cfg.ReadLimit,
		TLS:              tlsCfg,
	})
	if err != nil {
		return nil, err
	}

	sess, err := session.New(conn, sessCfg, h, opts...)
	if err != nil {
		return nil, err
	}
	if err := sess.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}
	return sess, nil
}
