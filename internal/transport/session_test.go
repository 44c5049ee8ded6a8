package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"bugwars-sync/internal/envelope"
	"github.com/gorilla/websocket"
)

type testPeer struct {
	srv *httptest.Server

	mu     sync.Mutex
	tokens []string
	conns  []*websocket.Conn
	dials  int
}

func newTestPeer(t *testing.T) *testPeer {
	t.Helper()
	p := &testPeer{}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		p.mu.Lock()
		p.dials++
		p.tokens = append(p.tokens, r.URL.Query().Get("token"))
		p.conns = append(p.conns, ws)
		p.mu.Unlock()
		for {
			kind, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			_ = ws.WriteMessage(kind, data)
		}
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *testPeer) url() string {
	return "ws" + strings.TrimPrefix(p.srv.URL, "http") + "/ws"
}

func (p *testPeer) dropAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns {
		_ = c.Close()
	}
}

func (p *testPeer) dialCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dials
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestSession_ConnectIsIdempotent(t *testing.T) {
	peer := newTestPeer(t)
	s := NewSession(Options{})
	defer s.Disconnect()

	ctx := context.Background()
	if err := s.Connect(ctx, peer.url()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Connect(ctx, peer.url()); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if !s.IsConnected() {
		t.Fatalf("expected connected")
	}
	waitFor(t, func() bool { return peer.dialCount() == 1 })
	time.Sleep(20 * time.Millisecond)
	if got := peer.dialCount(); got != 1 {
		t.Fatalf("expected 1 dial, got %d", got)
	}
}

func TestSession_SendWhileDisconnectedFailsQuietly(t *testing.T) {
	s := NewSession(Options{})
	if s.Send(envelope.TypePing, nil) {
		t.Fatalf("expected send to report failure")
	}
	if s.State() != Disconnected {
		t.Fatalf("expected disconnected, got %s", s.State())
	}
}

func TestSession_SendAndReceive(t *testing.T) {
	peer := newTestPeer(t)
	s := NewSession(Options{})
	defer s.Disconnect()

	if err := s.Connect(context.Background(), peer.url()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !s.Send(envelope.TypePing, map[string]int{"n": 1}) {
		t.Fatalf("expected send to succeed")
	}

	select {
	case f := <-s.Inbound():
		if f.Binary {
			t.Fatalf("expected text frame")
		}
		env, err := envelope.Decode(f.Data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if env.Type != envelope.TypePing {
			t.Fatalf("expected ping echo, got %q", env.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no echo")
	}

	if !s.SendBinary([]byte{1, 2, 3}) {
		t.Fatalf("expected binary send to succeed")
	}
	select {
	case f := <-s.Inbound():
		if !f.Binary || len(f.Data) != 3 {
			t.Fatalf("unexpected frame %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no binary echo")
	}
}

func TestSession_AttachesToken(t *testing.T) {
	peer := newTestPeer(t)
	s := NewSession(Options{Token: func() string { return "tok-1" }})
	defer s.Disconnect()

	if err := s.Connect(context.Background(), peer.url()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, func() bool { return peer.dialCount() == 1 })
	peer.mu.Lock()
	got := peer.tokens[0]
	peer.mu.Unlock()
	if got != "tok-1" {
		t.Fatalf("expected token query param, got %q", got)
	}
}

func TestSession_UnexpectedCloseNotifiesDisconnected(t *testing.T) {
	peer := newTestPeer(t)
	s := NewSession(Options{})
	defer s.Disconnect()

	states := make(chan State, 8)
	s.OnStateChange(func(st State) { states <- st })

	if err := s.Connect(context.Background(), peer.url()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, func() bool { return peer.dialCount() == 1 })
	peer.dropAll()

	want := []State{Connecting, Connected, Disconnected}
	for _, w := range want {
		select {
		case got := <-states:
			if got != w {
				t.Fatalf("expected %s, got %s", w, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("missing %s notification", w)
		}
	}
	if s.IsConnected() {
		t.Fatalf("expected disconnected")
	}
	if s.Send(envelope.TypePing, nil) {
		t.Fatalf("expected send after drop to fail")
	}
}

func TestSession_Reconnect(t *testing.T) {
	peer := newTestPeer(t)
	s := NewSession(Options{})
	defer s.Disconnect()

	if err := s.Reconnect(context.Background()); err != ErrNoURL {
		t.Fatalf("expected ErrNoURL, got %v", err)
	}
	if err := s.Connect(context.Background(), peer.url()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if !s.IsConnected() {
		t.Fatalf("expected connected after reconnect")
	}
	waitFor(t, func() bool { return peer.dialCount() == 2 })
}

func TestSession_ReconnectWithBackoff(t *testing.T) {
	peer := newTestPeer(t)
	s := NewSession(Options{})
	defer s.Disconnect()

	if err := s.Connect(context.Background(), peer.url()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.ReconnectWithBackoff(ctx, 3*time.Second); err != nil {
		t.Fatalf("ReconnectWithBackoff: %v", err)
	}
	if !s.IsConnected() {
		t.Fatalf("expected connected")
	}
}

func TestSession_ConnectFailureLeavesDisconnected(t *testing.T) {
	s := NewSession(Options{Dialer: &websocket.Dialer{HandshakeTimeout: 200 * time.Millisecond}})
	if err := s.Connect(context.Background(), "ws://127.0.0.1:1/ws"); err == nil {
		t.Fatalf("expected dial error")
	}
	if s.State() != Disconnected {
		t.Fatalf("expected disconnected, got %s", s.State())
	}
}
