package ws

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dkeye/panorama/internal/core"
)

// Conn adapts a gorilla connection to core.Conn.
//
// gorilla allows one concurrent reader and one concurrent writer, which is
// exactly the split a session needs. The library's automatic ping and close
// replies are disabled so every outbound frame goes through the writer half.
type Conn struct {
	ws    *websocket.Conn
	split atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

func NewConn(ws *websocket.Conn, readLimit int64) *Conn {
	if readLimit > 0 {
		ws.SetReadLimit(readLimit)
	}
	return &Conn{ws: ws}
}

func (c *Conn) Split() (core.FrameWriter, core.FrameReader, error) {
	if !c.split.CompareAndSwap(false, true) {
		return nil, nil, core.ErrAlreadySplit
	}
	r := &reader{ws: c.ws}
	c.ws.SetPingHandler(func(data string) error {
		r.control(core.Ping([]byte(data)))
		return nil
	})
	c.ws.SetPongHandler(func(data string) error {
		r.control(core.Pong([]byte(data)))
		return nil
	})
	// ReadMessage reports the close frame as *websocket.CloseError; the
	// sender pump answers it.
	c.ws.SetCloseHandler(func(int, string) error { return nil })
	return &writer{ws: c.ws}, r, nil
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *Conn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

// Subprotocol is the negotiated subprotocol, if any.
func (c *Conn) Subprotocol() string { return c.ws.Subprotocol() }

type writer struct {
	ws *websocket.Conn
}

func (w *writer) WriteFrame(f core.Frame, deadline time.Time) error {
	var err error
	switch f.Kind() {
	case core.FrameText, core.FrameBinary:
		mt := websocket.TextMessage
		if f.Kind() == core.FrameBinary {
			mt = websocket.BinaryMessage
		}
		if err = w.ws.SetWriteDeadline(deadline); err == nil {
			err = w.ws.WriteMessage(mt, f.Data())
		}
	case core.FramePing:
		err = w.ws.WriteControl(websocket.PingMessage, f.Data(), deadline)
	case core.FramePong:
		err = w.ws.WriteControl(websocket.PongMessage, f.Data(), deadline)
	case core.FrameClose:
		var payload []byte
		if f.CloseCode() != 0 && f.CloseCode() != core.CloseNoStatus {
			payload = websocket.FormatCloseMessage(f.CloseCode(), f.CloseReason())
		}
		err = w.ws.WriteControl(websocket.CloseMessage, payload, deadline)
	default:
		return &core.ProtocolError{Reason: fmt.Sprintf("cannot write %s frame", f.Kind())}
	}
	if err == nil {
		return nil
	}
	if isTimeout(err) {
		return fmt.Errorf("%w: %w", core.ErrWriteTimeout, err)
	}
	return &core.TransportError{Op: "write", Err: err}
}

type reader struct {
	ws        *websocket.Conn
	timeout   time.Duration
	onControl func(core.Frame)
}

func (r *reader) ReadFrame(timeout time.Duration, onControl func(core.Frame)) (core.Frame, error) {
	r.timeout = timeout
	r.onControl = onControl
	if err := r.ws.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return core.Frame{}, &core.TransportError{Op: "read", Err: err}
	}
	for {
		mt, data, err := r.ws.ReadMessage()
		if err != nil {
			return classifyRead(err)
		}
		switch mt {
		case websocket.TextMessage:
			return core.Text(string(data)), nil
		case websocket.BinaryMessage:
			return core.Binary(data), nil
		}
	}
}

// control runs inside ReadMessage, on the reader goroutine.
func (r *reader) control(f core.Frame) {
	_ = r.ws.SetReadDeadline(time.Now().Add(r.timeout))
	if r.onControl != nil {
		r.onControl(f)
	}
}

func classifyRead(err error) (core.Frame, error) {
	var (
		ce    *websocket.CloseError
		opErr *net.OpError
	)
	switch {
	case errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure:
		return core.Close(ce.Code, ce.Text), nil
	case isTimeout(err):
		return core.Frame{}, fmt.Errorf("%w: %w", core.ErrReadTimeout, err)
	case errors.Is(err, websocket.ErrReadLimit):
		return core.Frame{}, &core.ProtocolError{Reason: "message exceeds read limit", Err: err}
	case errors.As(err, &ce), errors.As(err, &opErr),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return core.Frame{}, &core.TransportError{Op: "read", Err: err}
	case strings.HasPrefix(err.Error(), "websocket: "):
		// gorilla reports framing violations as plain "websocket: ..." errors.
		return core.Frame{}, &core.ProtocolError{Reason: strings.TrimPrefix(err.Error(), "websocket: "), Err: err}
	default:
		return core.Frame{}, &core.TransportError{Op: "read", Err: err}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
