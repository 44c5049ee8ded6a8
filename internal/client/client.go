// Package client runs the game-side sync loop: one goroutine owns the
// registry, the session manager and the bridge receiver, and everything
// that touches them is marshaled onto it.
package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"bugwars-sync/internal/bridge"
	"bugwars-sync/internal/config"
	"bugwars-sync/internal/envelope"
	"bugwars-sync/internal/model"
	"bugwars-sync/internal/session"
	"bugwars-sync/internal/syncable"
	"bugwars-sync/internal/transport"
)

// Version is reported to the peer in BridgeReady.
const Version = "1.0.0"

var ErrClosed = errors.New("client: closed")

type Options struct {
	Config config.ClientConfig
	// Transport defaults to a new session authorizing with the current
	// access token.
	Transport *transport.Session
	// Refresher overrides the websocket and HTTP refresh path.
	Refresher session.Refresher
	Now       func() time.Time
	// HostIdentity names this client in BridgeReady.
	HostIdentity string
	// AutoReconnect redials with backoff after an unexpected close.
	AutoReconnect bool
}

type Client struct {
	cfg           config.ClientConfig
	now           func() time.Time
	hostIdentity  string
	autoReconnect bool

	transport  *transport.Session
	registry   *syncable.Registry
	sessions   *session.Manager
	dispatcher *envelope.Dispatcher
	receiver   *bridge.Receiver
	player     *syncable.PlayerData
	inventory  *syncable.Inventory

	token        atomic.Value
	url          atomic.Value
	reconnecting atomic.Bool
	runCtx       context.Context

	states chan transport.State
	calls  chan func()
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	peerErrors syncable.Listeners[model.PeerError]
	joined     syncable.Listeners[model.PlayerData]
	left       syncable.Listeners[string]
}

func New(opts Options) *Client {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HostIdentity == "" {
		opts.HostIdentity = "syncclient"
	}
	c := &Client{
		cfg:           opts.Config,
		now:           opts.Now,
		hostIdentity:  opts.HostIdentity,
		autoReconnect: opts.AutoReconnect,
		registry:      syncable.NewRegistryWithNow(opts.Now),
		dispatcher:    envelope.NewDispatcher(),
		receiver:      bridge.NewReceiverWithNow(opts.Now),
		player:        syncable.NewPlayerData(opts.Config.UserID, opts.Config.PlayerSyncInterval),
		inventory:     syncable.NewInventory(),
		states:        make(chan transport.State, 16),
		calls:         make(chan func()),
		done:          make(chan struct{}),
		runCtx:        context.Background(),
	}
	c.token.Store("")
	c.url.Store("")

	c.transport = opts.Transport
	if c.transport == nil {
		c.transport = transport.NewSession(transport.Options{Token: c.currentToken})
	}
	c.transport.OnStateChange(func(st transport.State) {
		select {
		case c.states <- st:
		case <-c.done:
		}
	})

	refresher := opts.Refresher
	if refresher == nil {
		refresher = c.refresher()
	}
	c.sessions = session.NewManager(session.Options{
		Now:            opts.Now,
		CheckInterval:  opts.Config.TokenCheckInterval,
		Sender:         c.transport,
		Refresher:      refresher,
		OnTokenChanged: c.tokenChanged,
	})
	c.sessions.Subscribe(c.sessionChanged)

	// Both are built above, so registration cannot collide.
	_ = c.registry.Register(c.player)
	_ = c.registry.Register(c.inventory)

	c.routes()

	if opts.Config.AccessToken != "" {
		c.sessions.Apply(model.SessionUpdate{
			UserID:       opts.Config.UserID,
			AccessToken:  opts.Config.AccessToken,
			RefreshToken: opts.Config.RefreshToken,
		})
	}
	return c
}

func (c *Client) currentToken() string {
	tok, _ := c.token.Load().(string)
	return tok
}

func (c *Client) endpoint() string {
	u, _ := c.url.Load().(string)
	return u
}

// Start resolves the peer endpoint and dials it in the background. Run
// must be called to process anything the connection delivers.
func (c *Client) Start(ctx context.Context) error {
	target, err := c.cfg.WebSocketEndpoint()
	if err != nil {
		return err
	}
	c.url.Store(target)
	c.runCtx = ctx
	c.goConnect(ctx, false)
	return nil
}

func (c *Client) goConnect(ctx context.Context, redial bool) {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.reconnecting.Store(false)

		if !redial {
			err := c.transport.Connect(ctx, c.endpoint())
			if err == nil || !c.autoReconnect {
				if err != nil {
					slog.Warn("initial connect failed", "url", c.endpoint(), "err", err)
				}
				return
			}
		}
		if err := c.transport.ReconnectWithBackoff(ctx, c.cfg.ReconnectMaxElapsed); err != nil && ctx.Err() == nil {
			slog.Error("giving up reconnecting", "url", c.endpoint(), "err", err)
		}
	}()
}

// Run drives the loop until ctx ends or Close is called.
func (c *Client) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	inbound := c.transport.Inbound()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrClosed
		case f := <-inbound:
			c.handleFrame(f)
		case st := <-c.states:
			c.handleState(st)
		case fn := <-c.calls:
			fn()
		case <-ticker.C:
			now := c.now()
			c.sessions.Check(now)
			c.registry.Tick(now)
		}
	}
}

// Do runs fn on the loop goroutine and waits for it to finish. Game code
// mutates syncables through Do.
func (c *Client) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case c.calls <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop and drops the connection.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		c.transport.Disconnect()
	})
	c.wg.Wait()
}

func (c *Client) handleFrame(f transport.Frame) {
	if f.Binary {
		if err := c.receiver.OnBinary(f.Data); err != nil {
			slog.Warn("dropping binary frame", "size", len(f.Data), "err", err)
		}
		return
	}
	_ = c.dispatcher.DispatchRaw(f.Data)
}

func (c *Client) handleState(st transport.State) {
	switch st {
	case transport.Connected:
		c.transport.Send(envelope.TypeBridgeReady, model.BridgeReady{
			Timestamp:    c.now().UTC().Format(time.RFC3339),
			HostIdentity: c.hostIdentity,
			Version:      Version,
		})
		c.registry.OnConnected(c.transport)
	case transport.Disconnected:
		c.registry.OnDisconnected()
		if c.autoReconnect && c.endpoint() != "" {
			select {
			case <-c.done:
			default:
				c.goConnect(c.runCtx, true)
			}
		}
	}
}

func (c *Client) tokenChanged(st session.State) {
	c.token.Store(st.AccessToken)
	if c.endpoint() == "" || !c.transport.IsConnected() {
		return
	}
	slog.Info("access token changed, reconnecting", "user_id", st.UserID)
	c.goConnect(c.runCtx, true)
}

func (c *Client) sessionChanged(st session.State) {
	if st.UserID != "" {
		c.player.SetPlayerID(st.UserID)
	}
	if st.DisplayName != "" {
		c.player.SetDisplayName(st.DisplayName)
	}
}

// OnPeerError registers fn for error envelopes from the peer. fn runs on
// the loop goroutine.
func (c *Client) OnPeerError(fn func(model.PeerError)) (cancel func()) {
	return c.peerErrors.Subscribe(fn)
}

// OnPlayerJoined registers fn for other players coming online. fn runs on
// the loop goroutine.
func (c *Client) OnPlayerJoined(fn func(model.PlayerData)) (cancel func()) {
	return c.joined.Subscribe(fn)
}

func (c *Client) OnPlayerLeft(fn func(userID string)) (cancel func()) {
	return c.left.Subscribe(fn)
}

// HandleTransfer registers fn for completed binary transfers of eventType.
func (c *Client) HandleTransfer(eventType string, fn func(bridge.Transfer)) {
	c.receiver.Handle(eventType, fn)
}

// SendTransfer sends typed arrays to the peer over the binary channel.
func (c *Client) SendTransfer(eventType string, info any, fields ...bridge.Field) error {
	return bridge.SendTransfer(c.transport, eventType, info, fields...)
}

func (c *Client) Player() *syncable.PlayerData     { return c.player }
func (c *Client) Inventory() *syncable.Inventory   { return c.inventory }
func (c *Client) Registry() *syncable.Registry     { return c.registry }
func (c *Client) Sessions() *session.Manager       { return c.sessions }
func (c *Client) Transport() *transport.Session    { return c.transport }
func (c *Client) Dispatcher() *envelope.Dispatcher { return c.dispatcher }
