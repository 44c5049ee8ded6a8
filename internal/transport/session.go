package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"bugwars-sync/internal/envelope"
	"github.com/gorilla/websocket"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

var (
	ErrNoURL    = errors.New("transport: no url to connect to")
	ErrAborted  = errors.New("transport: connect aborted by disconnect")
	errInFlight = errors.New("transport: connect already in flight")
)

// Frame is one inbound websocket message.
type Frame struct {
	Binary bool
	Data   []byte
}

type Options struct {
	Dialer *websocket.Dialer
	// Token returns the current access token, or "" when none is held.
	Token         func() string
	PingInterval  time.Duration
	PongWait      time.Duration
	WriteTimeout  time.Duration
	ReadLimit     int64
	InboundBuffer int
}

// Session owns the single websocket connection of a client. Only the
// session mutates the connection state.
type Session struct {
	opts Options

	state atomic.Int32

	mu   sync.Mutex
	conn *websocket.Conn
	url  string
	done chan struct{}

	sendMu sync.Mutex

	inbound chan Frame

	listenersMu sync.Mutex
	listeners   []func(State)
}

func NewSession(opts Options) *Session {
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		}
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = (opts.PongWait * 9) / 10
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 16 << 20
	}
	if opts.InboundBuffer <= 0 {
		opts.InboundBuffer = 256
	}
	return &Session{
		opts:    opts,
		inbound: make(chan Frame, opts.InboundBuffer),
	}
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) IsConnected() bool { return s.State() == Connected }

func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Inbound yields every frame read from the connection. The channel stays
// open across reconnects.
func (s *Session) Inbound() <-chan Frame { return s.inbound }

// OnStateChange registers fn to be called on every state transition. fn
// runs on the goroutine that caused the transition and must not block.
func (s *Session) OnStateChange(fn func(State)) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenersMu.Unlock()
}

func (s *Session) notify(st State) {
	s.listenersMu.Lock()
	fns := slices.Clone(s.listeners)
	s.listenersMu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

// Connect dials rawURL. It is a no-op while connected or while another
// attempt is in flight.
func (s *Session) Connect(ctx context.Context, rawURL string) error {
	if rawURL == "" {
		return ErrNoURL
	}
	if !s.state.CompareAndSwap(int32(Disconnected), int32(Connecting)) {
		return nil
	}
	s.mu.Lock()
	s.url = rawURL
	s.mu.Unlock()
	s.notify(Connecting)

	dialURL, header := s.authorize(rawURL)
	conn, resp, err := s.opts.Dialer.DialContext(ctx, dialURL, header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			slog.Warn("websocket dial rejected", "url", rawURL, "status", resp.Status, "body", strings.TrimSpace(string(body)))
		} else {
			slog.Warn("websocket dial failed", "url", rawURL, "err", err)
		}
		if s.state.CompareAndSwap(int32(Connecting), int32(Disconnected)) {
			s.notify(Disconnected)
		}
		return err
	}

	s.mu.Lock()
	if s.State() != Connecting {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrAborted
	}
	done := make(chan struct{})
	s.conn = conn
	s.done = done
	s.state.Store(int32(Connected))
	s.mu.Unlock()

	conn.SetReadLimit(s.opts.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	slog.Info("websocket connected", "url", rawURL)
	s.notify(Connected)

	go s.readLoop(conn, done)
	go s.pingLoop(conn, done)
	return nil
}

func (s *Session) authorize(rawURL string) (string, http.Header) {
	header := http.Header{}
	if s.opts.Token == nil {
		return rawURL, header
	}
	tok := strings.TrimSpace(s.opts.Token())
	if tok == "" {
		return rawURL, header
	}
	header.Set("Authorization", "Bearer "+tok)
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, header
	}
	q := u.Query()
	q.Set("token", tok)
	u.RawQuery = q.Encode()
	return u.String(), header
}

// Disconnect closes the connection on purpose.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	done := s.done
	s.conn = nil
	s.done = nil
	prev := State(s.state.Swap(int32(Disconnected)))
	s.mu.Unlock()

	if done != nil {
		close(done)
	}
	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}
	if prev != Disconnected {
		slog.Info("websocket disconnected", "reason", "requested")
		s.notify(Disconnected)
	}
}

// Reconnect drops the current connection and dials the last URL again.
func (s *Session) Reconnect(ctx context.Context) error {
	target := s.URL()
	if target == "" {
		return ErrNoURL
	}
	s.Disconnect()
	return s.Connect(ctx, target)
}

func (s *Session) lost(conn *websocket.Conn, err error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	done := s.done
	s.conn = nil
	s.done = nil
	s.state.Store(int32(Disconnected))
	s.mu.Unlock()

	if done != nil {
		close(done)
	}
	_ = conn.Close()
	slog.Warn("websocket closed unexpectedly", "err", err)
	s.notify(Disconnected)
}

func (s *Session) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			s.lost(conn, err)
			return
		}
		f := Frame{Binary: kind == websocket.BinaryMessage, Data: data}
		select {
		case s.inbound <- f:
		case <-done:
			return
		}
	}
}

func (s *Session) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.opts.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

// Send encodes an envelope and writes it. It reports whether the write
// happened; failures are logged, never returned, so callers keep their
// state dirty and retry on a later flush.
func (s *Session) Send(msgType string, payload any) bool {
	data, err := envelope.Build(msgType, payload)
	if err != nil {
		slog.Error("envelope encode failed", "type", msgType, "err", err)
		return false
	}
	return s.write(websocket.TextMessage, data, msgType)
}

// SendBinary writes one binary frame.
func (s *Session) SendBinary(frame []byte) bool {
	return s.write(websocket.BinaryMessage, frame, "binary")
}

func (s *Session) write(kind int, data []byte, label string) bool {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil || !s.IsConnected() {
		slog.Warn("send skipped, not connected", "type", label)
		return false
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
		slog.Warn("send failed", "type", label, "err", err)
		return false
	}
	if err := conn.WriteMessage(kind, data); err != nil {
		slog.Warn("send failed", "type", label, "err", err)
		_ = conn.Close()
		return false
	}
	return true
}
