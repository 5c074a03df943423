package ws

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/panorama/internal/core"
)

type DialOptions struct {
	HandshakeTimeout time.Duration
	ReadLimit        int64
	// TLS is used for wss:// targets. Nil means the system defaults.
	TLS    *tls.Config
	Header http.Header
}

// Dial performs the opening handshake against a ws:// or wss:// target.
// Any failure is returned as *core.ConnectError.
func Dial(ctx context.Context, target string, opts DialOptions) (*Conn, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, &core.ConnectError{URL: target, Err: err}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, &core.ConnectError{URL: target, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}

	d := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
		TLSClientConfig:  opts.TLS,
	}
	if d.HandshakeTimeout <= 0 {
		d.HandshakeTimeout = 10 * time.Second
	}

	log.Info().Str("module", "adapters.ws").Str("target", target).Msg("connecting")
	c, resp, err := d.DialContext(ctx, target, opts.Header)
	if err != nil {
		ce := &core.ConnectError{URL: target, Err: err}
		if resp != nil {
			ce.StatusCode = resp.StatusCode
			_ = resp.Body.Close()
		}
		return nil, ce
	}
	log.Info().Str("module", "adapters.ws").Str("target", target).Msg("handshake completed")
	return NewConn(c, opts.ReadLimit), nil
}
