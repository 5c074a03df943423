package session

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/panorama/internal/core"
)

// fakeConn is an in-memory core.Conn. Inbound frames are scripted through
// push; outbound frames are recorded in order.
type fakeConn struct {
	inbound chan core.Frame
	closed  chan struct{}
	once    sync.Once
	split   atomic.Bool

	stall      atomic.Bool // writes block until their deadline
	inFlight   atomic.Int32
	concurrent atomic.Bool // set if two writes ever overlapped

	mu      sync.Mutex
	written []core.Frame
	notify  chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan core.Frame, 64),
		closed:  make(chan struct{}),
		notify:  make(chan struct{}, 1),
	}
}

func (c *fakeConn) Split() (core.FrameWriter, core.FrameReader, error) {
	if !c.split.CompareAndSwap(false, true) {
		return nil, nil, core.ErrAlreadySplit
	}
	return fakeWriter{c}, fakeReader{c}, nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4242}
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) push(frames ...core.Frame) {
	for _, f := range frames {
		c.inbound <- f
	}
}

// sent returns a copy of every frame written so far.
func (c *fakeConn) sent() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Frame, len(c.written))
	copy(out, c.written)
	return out
}

func (c *fakeConn) sentOf(kind core.FrameKind) []core.Frame {
	var out []core.Frame
	for _, f := range c.sent() {
		if f.Kind() == kind {
			out = append(out, f)
		}
	}
	return out
}

// waitSent blocks until cond holds for the written frames or d elapses.
func (c *fakeConn) waitSent(d time.Duration, cond func([]core.Frame) bool) bool {
	deadline := time.After(d)
	for {
		if cond(c.sent()) {
			return true
		}
		select {
		case <-c.notify:
		case <-deadline:
			return cond(c.sent())
		}
	}
}

type fakeWriter struct{ c *fakeConn }

func (w fakeWriter) WriteFrame(f core.Frame, deadline time.Time) error {
	c := w.c
	if c.inFlight.Add(1) > 1 {
		c.concurrent.Store(true)
	}
	defer c.inFlight.Add(-1)

	if c.isClosed() {
		return &core.TransportError{Op: "write", Err: net.ErrClosed}
	}
	if c.stall.Load() {
		select {
		case <-time.After(time.Until(deadline)):
			return fmt.Errorf("%w: fake stalled write", core.ErrWriteTimeout)
		case <-c.closed:
			return &core.TransportError{Op: "write", Err: net.ErrClosed}
		}
	}

	c.mu.Lock()
	c.written = append(c.written, f)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

type fakeReader struct{ c *fakeConn }

func (r fakeReader) ReadFrame(timeout time.Duration, onControl func(core.Frame)) (core.Frame, error) {
	c := r.c
	expired := time.After(timeout)
	for {
		select {
		case f := <-c.inbound:
			if f.Kind() == core.FramePing || f.Kind() == core.FramePong {
				onControl(f)
				expired = time.After(timeout)
				continue
			}
			return f, nil
		case <-expired:
			return core.Frame{}, fmt.Errorf("%w: fake", core.ErrReadTimeout)
		case <-c.closed:
			return core.Frame{}, &core.TransportError{Op: "read", Err: net.ErrClosed}
		}
	}
}

// recorder is a Handler that keeps every delivered frame.
type recorder struct {
	mu     sync.Mutex
	frames []core.Frame
	got    chan core.Frame
}

func newRecorder() *recorder {
	return &recorder{got: make(chan core.Frame, 64)}
}

func (r *recorder) OnMessage(_ *Session, f core.Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
	r.got <- f
}

func (r *recorder) all() []core.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Frame, len(r.frames))
	copy(out, r.frames)
	return out
}
