package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/panorama/internal/config"
	"github.com/dkeye/panorama/internal/core"
	"github.com/dkeye/panorama/internal/domain"
	"github.com/dkeye/panorama/internal/session"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg.Mode = "release"
	cfg.HeartbeatInterval = time.Second
	cfg.ReadTimeout = 5 * time.Second
	cfg.WriteTimeout = time.Second
	cfg.CloseTimeout = 500 * time.Millisecond
	return cfg
}

type testServer struct {
	l    *Listener
	addr string
	stop func()
}

func startListener(t *testing.T, cfg *config.Config, factory SessionFactory) *testServer {
	t.Helper()
	l, err := NewListener(cfg, factory, nil)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Serve(ctx, ln) }()

	stopped := false
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Error("listener did not stop")
		}
	}
	t.Cleanup(stop)

	cfg.Target = "ws://" + ln.Addr().String() + cfg.WSPath
	return &testServer{l: l, addr: ln.Addr().String(), stop: stop}
}

type inbox chan core.Frame

func (in inbox) OnMessage(_ *session.Session, f core.Frame) { in <- f }

func httpGet(t *testing.T, url string) (int, string) {
	t.Helper()
	tr := &http.Transport{DisableKeepAlives: true}
	defer tr.CloseIdleConnections()
	resp, err := (&http.Client{Transport: tr, Timeout: 2 * time.Second}).Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func waitSessions(t *testing.T, l *Listener, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for l.Registry().Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("registry has %d sessions, want %d", l.Registry().Len(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestListener_Echo(t *testing.T) {
	cfg := testConfig(t)
	srv := startListener(t, cfg, nil)

	in := make(inbox, 8)
	client, err := Connect(context.Background(), cfg, in)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := client.Send(context.Background(), core.Text("ping")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case f := <-in:
		if f.Text() != "ping_ret" {
			t.Fatalf("got %s, want ping_ret", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no echo reply")
	}

	waitSessions(t, srv.l, 1)
	if o := client.Close(); o.Kind != core.ClosedNormally {
		t.Fatalf("client outcome = %s", o)
	}
	waitSessions(t, srv.l, 0)
}

func TestListener_InitialMessage(t *testing.T) {
	cfg := testConfig(t)
	startListener(t, cfg, nil)

	cfg.InitialMessage = "hello"
	in := make(inbox, 8)
	client, err := Connect(context.Background(), cfg, in)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	select {
	case f := <-in:
		if f.Text() != "hello_ret" {
			t.Fatalf("got %s, want hello_ret", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("initial message not echoed")
	}
}

func TestListener_Heartbeat(t *testing.T) {
	cfg := testConfig(t)
	cfg.HeartbeatInterval = 100 * time.Millisecond
	cfg.ReadTimeout = time.Second
	srv := startListener(t, cfg, nil)

	client, err := Connect(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitSessions(t, srv.l, 1)

	time.Sleep(400 * time.Millisecond)

	if got := client.Stats().PongsReceived; got < 3 {
		t.Fatalf("client received %d pongs, want >= 3", got)
	}
	snaps := srv.l.Registry().Snapshot()
	if len(snaps) != 1 {
		t.Fatalf("registry snapshot = %d entries", len(snaps))
	}
	if got := snaps[0].Session.Stats().PongsReceived; got < 3 {
		t.Fatalf("server received %d pongs, want >= 3", got)
	}

	if o := client.Close(); o.Kind != core.ClosedNormally {
		t.Fatalf("client outcome = %s", o)
	}
}

func TestListener_ShutdownClosesSessions(t *testing.T) {
	cfg := testConfig(t)
	srv := startListener(t, cfg, nil)

	client, err := Connect(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitSessions(t, srv.l, 1)
	srv.stop()

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client session survived listener shutdown")
	}
	o := client.Outcome()
	if o.Kind != core.ClosedByPeer || o.CloseCode != core.CloseNormalClosure {
		t.Fatalf("client outcome = %s", o)
	}
}

func TestListener_HandshakeFailureKeepsAccepting(t *testing.T) {
	cfg := testConfig(t)
	srv := startListener(t, cfg, nil)

	code, _ := httpGet(t, "http://"+srv.addr+cfg.WSPath)
	if code != http.StatusBadRequest {
		t.Fatalf("plain GET status = %d, want 400", code)
	}

	client, err := Connect(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Connect after failed handshake: %v", err)
	}
	client.Close()

	_, body := httpGet(t, "http://"+srv.addr+"/metrics")
	if !strings.Contains(body, `panorama_handshake_failures_total{reason="upgrade"} 1`) {
		t.Fatalf("handshake failure not counted:\n%s", body)
	}
}

func TestListener_HandshakeRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.HandshakeRate = 1
	cfg.HandshakeWindow = time.Minute
	startListener(t, cfg, nil)

	first, err := Connect(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	defer first.Close()

	_, err = Connect(context.Background(), cfg, nil)
	var ce *core.ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("second Connect = %v, want ConnectError", err)
	}
	if ce.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("StatusCode = %d, want 429", ce.StatusCode)
	}
}

func TestListener_Health(t *testing.T) {
	cfg := testConfig(t)
	srv := startListener(t, cfg, nil)

	client, err := Connect(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()
	waitSessions(t, srv.l, 1)

	code, body := httpGet(t, "http://"+srv.addr+"/healthz")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var health struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	if err := json.Unmarshal([]byte(body), &health); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
	if health.Status != "ok" || health.Sessions != 1 {
		t.Fatalf("health = %+v", health)
	}
}

func TestListener_CustomFactory(t *testing.T) {
	cfg := testConfig(t)
	seen := make(chan string, 1)
	startListener(t, cfg, func(p domain.Peer) session.Handler {
		seen <- p.RemoteAddr
		return session.HandlerFunc(func(s *session.Session, f core.Frame) {
			_ = s.TrySend(core.Text(strings.ToUpper(f.Text())))
		})
	})

	in := make(inbox, 1)
	client, err := Connect(context.Background(), cfg, in)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	if addr := <-seen; !strings.HasPrefix(addr, "127.0.0.1:") {
		t.Fatalf("peer remote addr = %q", addr)
	}
	if err := client.Send(context.Background(), core.Text("abc")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case f := <-in:
		if f.Text() != "ABC" {
			t.Fatalf("got %s", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reply from custom handler")
	}
}

func TestListener_BindFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer taken.Close()

	l, err := NewListener(testConfig(t), nil, nil)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	err = l.Run(context.Background(), taken.Addr().String())
	if err == nil || !strings.Contains(err.Error(), "bind") {
		t.Fatalf("Run on a taken port = %v", err)
	}
}

func TestConnect_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := testConfig(t)
	cfg.Target = "ws://" + addr + "/ws"
	_, err = Connect(context.Background(), cfg, nil)
	var ce *core.ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("Connect = %v, want ConnectError", err)
	}
}

func TestListener_SweepsHandshakeLimiter(t *testing.T) {
	cfg := testConfig(t)
	cfg.HandshakeRate = 5
	cfg.HandshakeWindow = 200 * time.Millisecond
	srv := startListener(t, cfg, nil)

	client, err := Connect(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()
	if n := srv.l.limiter.Len(); n != 1 {
		t.Fatalf("limiter tracks %d keys after one handshake, want 1", n)
	}

	deadline := time.Now().Add(2 * time.Second)
	for srv.l.limiter.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("idle limiter key never swept")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestListener_NoSessionAfterShutdown(t *testing.T) {
	cfg := testConfig(t)
	srv := startListener(t, cfg, nil)
	srv.stop()

	// An upgrade handler still running on a hijacked connection once
	// shutdown has begun.
	r := gin.New()
	r.GET(cfg.WSPath, srv.l.handleUpgrade(context.Background()))
	late := httptest.NewServer(r)
	defer late.Close()

	cfg.Target = "ws" + strings.TrimPrefix(late.URL, "http") + cfg.WSPath
	client, err := Connect(context.Background(), cfg, nil)
	if err == nil {
		select {
		case <-client.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("connection accepted after shutdown stayed open")
		}
	}

	if n := srv.l.Registry().Len(); n != 0 {
		t.Fatalf("registry has %d sessions after shutdown", n)
	}
	w := httptest.NewRecorder()
	srv.l.metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), `panorama_handshake_failures_total{reason="shutdown"} 1`) {
		t.Fatalf("late handshake not counted:\n%s", w.Body.String())
	}
}
