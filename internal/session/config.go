package session

import (
	"fmt"
	"time"

	"github.com/dkeye/panorama/internal/core"
)

// Config holds the per-session pump settings.
type Config struct {
	// HeartbeatInterval is the time between pings sent by the sender pump.
	HeartbeatInterval time.Duration
	// HeartbeatPayload is carried by every heartbeat ping. May be empty.
	HeartbeatPayload []byte

	// ReadTimeout bounds the wait for each inbound frame, measured from
	// the end of the previous read.
	ReadTimeout time.Duration
	// WriteTimeout bounds each outbound write, heartbeat pings included.
	WriteTimeout time.Duration
	// CloseTimeout bounds the final close handshake.
	CloseTimeout time.Duration

	QueueCapacity int
	Backpressure  core.Policy

	// InitialFrame, when set, is written before the pump loop starts.
	InitialFrame core.Frame
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Second,
		CloseTimeout:      time.Second,
		QueueCapacity:     32,
		Backpressure:      core.Block,
	}
}

func (c Config) Validate() error {
	switch {
	case c.HeartbeatInterval <= 0:
		return fmt.Errorf("heartbeat interval must be positive, got %s", c.HeartbeatInterval)
	case c.ReadTimeout <= 0:
		return fmt.Errorf("read timeout must be positive, got %s", c.ReadTimeout)
	case c.WriteTimeout <= 0:
		return fmt.Errorf("write timeout must be positive, got %s", c.WriteTimeout)
	case c.CloseTimeout <= 0:
		return fmt.Errorf("close timeout must be positive, got %s", c.CloseTimeout)
	case c.QueueCapacity < 1:
		return fmt.Errorf("outbound queue capacity must be at least 1, got %d", c.QueueCapacity)
	case c.Backpressure != core.Block && c.Backpressure != core.FailFast:
		return fmt.Errorf("unknown backpressure policy %s", c.Backpressure)
	case len(c.HeartbeatPayload) > 125:
		return fmt.Errorf("heartbeat payload exceeds 125 bytes")
	}
	return nil
}
