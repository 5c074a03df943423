// Package domain contains entity without logic, just meta-data
package domain

import (
	"time"

	"github.com/google/uuid"
)

const MaxClientTokenLen = 64

type PeerID string

// Peer describes the remote end of one accepted connection.
type Peer struct {
	ID          PeerID    `json:"id"`
	ClientToken string    `json:"client_token,omitempty"`
	RemoteAddr  string    `json:"remote_addr"`
	UserAgent   string    `json:"user_agent,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

// NewPeer is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewPeer(clientToken, remoteAddr, userAgent string) Peer {
	if len(clientToken) > MaxClientTokenLen {
		clientToken = clientToken[:MaxClientTokenLen]
	}
	return Peer{
		ID:          PeerID(uuid.NewString()),
		ClientToken: clientToken,
		RemoteAddr:  remoteAddr,
		UserAgent:   userAgent,
		ConnectedAt: time.Now(),
	}
}
