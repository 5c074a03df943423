package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

type UpgradeOptions struct {
	HandshakeTimeout time.Duration
	ReadLimit        int64
	ReadBufferSize   int
	WriteBufferSize  int
}

// Upgrader answers the opening handshake on accepted HTTP requests.
type Upgrader struct {
	up        websocket.Upgrader
	readLimit int64
}

func NewUpgrader(opts UpgradeOptions) *Upgrader {
	return &Upgrader{
		up: websocket.Upgrader{
			HandshakeTimeout: opts.HandshakeTimeout,
			ReadBufferSize:   opts.ReadBufferSize,
			WriteBufferSize:  opts.WriteBufferSize,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		readLimit: opts.ReadLimit,
	}
}

// Upgrade hijacks the request. On failure gorilla has already written an
// HTTP error response.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	c, err := u.up.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewConn(c, u.readLimit), nil
}
