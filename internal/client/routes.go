package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bugwars-sync/internal/bridge"
	"bugwars-sync/internal/envelope"
	"bugwars-sync/internal/model"
	"bugwars-sync/internal/session"
	"bugwars-sync/internal/syncable"
)

func (c *Client) routes() {
	d := c.dispatcher

	envelope.HandleFunc(d, envelope.TypeSessionUpdate, func(_ envelope.Envelope, u model.SessionUpdate) error {
		c.sessions.Apply(u)
		return nil
	})
	d.Handle(envelope.TypePlayerData, c.applySync(syncable.PlayerDataSyncID))
	d.Handle(envelope.TypeInventory, c.applySync(syncable.InventorySyncID))
	envelope.HandleFunc(d, envelope.TypeError, func(_ envelope.Envelope, e model.PeerError) error {
		slog.Warn("peer reported error", "ref", e.Ref, "type", e.Type, "message", e.Message)
		if e.Type == envelope.TypeTokenRefreshRequest {
			c.sessions.RefreshFailed(e.Message)
		}
		c.peerErrors.Notify(e)
		return nil
	})
	envelope.HandleFunc(d, envelope.TypeConnected, func(_ envelope.Envelope, w model.Connected) error {
		slog.Info("peer accepted connection", "user_id", w.UserID, "role", w.Role)
		return nil
	})
	envelope.HandleFunc(d, envelope.TypePlayerJoined, func(_ envelope.Envelope, j model.PlayerJoined) error {
		c.joined.Notify(j.Player)
		return nil
	})
	envelope.HandleFunc(d, envelope.TypePlayerLeft, func(_ envelope.Envelope, l model.PlayerLeft) error {
		c.left.Notify(l.UserID)
		return nil
	})
	d.Handle(envelope.TypePing, func(envelope.Envelope) error {
		c.transport.Send(envelope.TypePong, model.Pong{Timestamp: c.now().Unix()})
		return nil
	})
	d.Handle(envelope.TypePong, func(envelope.Envelope) error { return nil })

	d.HandleMatch(c.receiver.Accepts, func(env envelope.Envelope) error {
		if eventType, ok := bridge.MetadataEventType(env.Type); ok {
			return c.receiver.OnMetadata(eventType, env.Payload)
		}
		return c.receiver.OnBase64(env.Type, env.Payload)
	})
}

func (c *Client) applySync(id string) envelope.HandlerFunc {
	return func(env envelope.Envelope) error {
		err := c.registry.Apply(id, env.Payload)
		if errors.Is(err, syncable.ErrPendingChanges) {
			slog.Debug("keeping unflushed local state", "sync_id", id)
			return nil
		}
		if err != nil {
			return fmt.Errorf("apply %s: %w", id, err)
		}
		return nil
	}
}

const refreshTimeout = 10 * time.Second

// refresher asks over the websocket when connected and falls back to the
// peer's HTTP refresh endpoint otherwise. The HTTP result is applied on the
// loop like any other session update.
func (c *Client) refresher() session.Refresher {
	ws := session.SenderRefresher(c.transport)
	httpClient := &http.Client{Timeout: refreshTimeout}
	return session.RefresherFunc(func(req model.TokenRefreshRequest) bool {
		if c.transport.IsConnected() && ws.RequestRefresh(req) {
			return true
		}
		target, err := c.refreshURL()
		if err != nil {
			slog.Warn("no refresh endpoint", "err", err)
			return false
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			defer cancel()
			u, err := postRefresh(ctx, httpClient, target, req)
			apply := func() {
				if err != nil {
					c.sessions.RefreshFailed(err.Error())
					return
				}
				c.sessions.Apply(u)
			}
			select {
			case c.calls <- apply:
			case <-c.done:
			}
		}()
		return true
	})
}

func (c *Client) refreshURL() (string, error) {
	target := c.endpoint()
	if target == "" {
		var err error
		if target, err = c.cfg.WebSocketEndpoint(); err != nil {
			return "", err
		}
	}
	return RefreshURL(target)
}

// RefreshURL maps a websocket endpoint to the peer's HTTP refresh route.
func RefreshURL(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported websocket scheme %q", u.Scheme)
	}
	u.Path = "/v1/auth/refresh"
	u.RawQuery = ""
	return u.String(), nil
}

func postRefresh(ctx context.Context, hc *http.Client, target string, req model.TokenRefreshRequest) (model.SessionUpdate, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return model.SessionUpdate{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return model.SessionUpdate{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := hc.Do(httpReq)
	if err != nil {
		return model.SessionUpdate{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.SessionUpdate{}, fmt.Errorf("refresh rejected: %s", resp.Status)
	}
	var u model.SessionUpdate
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return model.SessionUpdate{}, fmt.Errorf("decode refresh response: %w", err)
	}
	return u, nil
}
