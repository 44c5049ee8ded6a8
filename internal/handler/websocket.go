package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"bugwars-sync/internal/auth"
	"bugwars-sync/internal/bridge"
	"bugwars-sync/internal/envelope"
	"bugwars-sync/internal/hub"
	"bugwars-sync/internal/middleware"
	"bugwars-sync/internal/model"
	"bugwars-sync/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	maxFrameSize = 16 << 20
)

// RoleAuthenticated is the role every token-holding client gets.
const RoleAuthenticated = "authenticated"

type WebSocketHandler struct {
	Hub         *hub.Hub
	Store       *store.Store
	TokenConfig auth.TokenConfig
	Tokens      *auth.VerifyCache
	// OnTransfer receives completed binary transfers. Nil logs them.
	OnTransfer func(userID string, tr bridge.Transfer)
}

// PlayerLeft tells everyone else that userID has no connection left. It is
// the hub's offline hook.
func (h *WebSocketHandler) PlayerLeft(userID string) {
	data, err := envelope.Build(envelope.TypePlayerLeft, model.PlayerLeft{UserID: userID})
	if err != nil {
		slog.Error("envelope encode failed", "type", envelope.TypePlayerLeft, "err", err)
		return
	}
	slog.Info("player left", "user_id", userID)
	h.Hub.BroadcastOthers(userID, data)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) Write(message []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, message)
}

func (w *wsWriter) Close() error {
	return w.conn.Close()
}

// peerConn is one authenticated game client.
type peerConn struct {
	h        *WebSocketHandler
	userID   string
	conn     *hub.Connection
	d        *envelope.Dispatcher
	receiver *bridge.Receiver
}

func (h *WebSocketHandler) Serve(c *gin.Context) {
	tokenString := middleware.TokenFromRequest(c)
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}
	claims, err := h.Tokens.Verify(tokenString, auth.KindAccess)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	pc := &peerConn{
		h:        h,
		userID:   claims.UserID,
		conn:     &hub.Connection{ID: uuid.NewString(), UserID: claims.UserID, Writer: &wsWriter{conn: ws}},
		d:        envelope.NewDispatcher(),
		receiver: bridge.NewReceiver(),
	}
	pc.routes()

	// The welcome goes out before the hub can fan anything to this socket.
	pc.send(envelope.TypeConnected, model.Connected{UserID: pc.userID, Role: RoleAuthenticated})
	first := h.Hub.Register(pc.conn)
	slog.Info("client connected", "user_id", pc.userID, "conn_id", pc.conn.ID, "connections", h.Hub.Count(pc.userID))
	if first {
		pc.broadcastOthers(envelope.TypePlayerJoined, model.PlayerJoined{Player: h.Store.PlayerData(pc.userID)})
	}
	defer func() {
		h.Hub.Unregister(pc.conn)
		_ = ws.Close()
		slog.Info("client disconnected", "user_id", pc.userID, "conn_id", pc.conn.ID)
	}()

	ws.SetReadLimit(maxFrameSize)
	pingPeriod := (pongWait * 9) / 10

	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		pc.conn.Touch(time.Now())
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	var closeOnce sync.Once
	closeDone := func() {
		closeOnce.Do(func() {
			close(done)
		})
	}
	defer closeDone()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(writeWait)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					_ = ws.Close()
					return
				}
			}
		}
	}()

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		pc.conn.Touch(time.Now())
		if kind == websocket.BinaryMessage {
			pc.binary(data)
			continue
		}
		env, err := envelope.Decode(data)
		if err != nil {
			pc.sendError(envelope.Envelope{}, err)
			continue
		}
		if err := pc.d.Dispatch(env); errors.Is(err, envelope.ErrUnknownType) {
			pc.sendError(env, err)
		}
	}
}

func (pc *peerConn) routes() {
	st := pc.h.Store
	d := pc.d
	d.OnError(pc.sendError)

	d.Handle(envelope.TypePing, func(envelope.Envelope) error {
		pc.send(envelope.TypePong, model.Pong{Timestamp: time.Now().Unix()})
		return nil
	})
	d.Handle(envelope.TypePong, func(envelope.Envelope) error { return nil })

	d.Handle(envelope.TypeGetInventory, func(envelope.Envelope) error {
		pc.send(envelope.TypeInventory, st.Inventory(pc.userID))
		return nil
	})
	envelope.HandleFunc(d, envelope.TypeAddItem, func(_ envelope.Envelope, delta model.ItemDelta) error {
		inv, err := st.AddItem(pc.userID, delta.ItemID, delta.Quantity, delta.Metadata)
		if err != nil {
			return err
		}
		pc.broadcast(envelope.TypeInventory, inv, nil)
		return nil
	})
	envelope.HandleFunc(d, envelope.TypeRemoveItem, func(_ envelope.Envelope, delta model.ItemDelta) error {
		inv, err := st.RemoveItem(pc.userID, delta.ItemID, delta.Quantity, delta.Metadata)
		if err != nil {
			return err
		}
		pc.broadcast(envelope.TypeInventory, inv, nil)
		return nil
	})
	envelope.HandleFunc(d, envelope.TypeInventory, func(_ envelope.Envelope, inv model.Inventory) error {
		stored, err := st.ReplaceInventory(pc.userID, inv)
		if err != nil {
			return err
		}
		pc.broadcast(envelope.TypeInventory, stored, pc.conn)
		return nil
	})

	envelope.HandleFunc(d, envelope.TypeGetPlayerData, func(_ envelope.Envelope, req struct {
		PlayerID string `json:"player_id"`
	}) error {
		if req.PlayerID != "" && req.PlayerID != pc.userID {
			return store.ErrPlayerMismatch
		}
		pc.send(envelope.TypePlayerData, st.PlayerData(pc.userID))
		return nil
	})
	envelope.HandleFunc(d, envelope.TypePlayerData, func(_ envelope.Envelope, p model.PlayerData) error {
		stored, err := st.PutPlayerData(pc.userID, p)
		if err != nil {
			return err
		}
		pc.broadcast(envelope.TypePlayerData, stored, pc.conn)
		return nil
	})

	envelope.HandleFunc(d, envelope.TypeTokenRefreshRequest, func(_ envelope.Envelope, req model.TokenRefreshRequest) error {
		update, err := RenewSession(req, pc.h.TokenConfig)
		if err != nil {
			return err
		}
		pc.send(envelope.TypeSessionUpdate, update)
		return nil
	})
	envelope.HandleFunc(d, envelope.TypeSessionReceived, func(_ envelope.Envelope, ack model.SessionReceived) error {
		slog.Debug("session acknowledged", "user_id", pc.userID, "success", ack.Success)
		return nil
	})
	envelope.HandleFunc(d, envelope.TypeBridgeReady, func(_ envelope.Envelope, br model.BridgeReady) error {
		slog.Info("bridge ready", "user_id", pc.userID, "host", br.HostIdentity, "version", br.Version)
		return nil
	})

	pc.receiver.HandleAll(pc.transfer)
	d.HandleMatch(pc.receiver.Accepts, func(env envelope.Envelope) error {
		if eventType, ok := bridge.MetadataEventType(env.Type); ok {
			return pc.receiver.OnMetadata(eventType, env.Payload)
		}
		return pc.receiver.OnBase64(env.Type, env.Payload)
	})
}

func (pc *peerConn) transfer(tr bridge.Transfer) {
	if pc.h.OnTransfer != nil {
		pc.h.OnTransfer(pc.userID, tr)
		return
	}
	slog.Info("binary transfer received", "user_id", pc.userID, "event_type", tr.EventType, "fields", len(tr.Fields))
}

func (pc *peerConn) binary(data []byte) {
	if err := pc.receiver.OnBinary(data); err != nil {
		slog.Warn("dropping binary frame", "user_id", pc.userID, "size", len(data), "err", err)
	}
}

func (pc *peerConn) send(msgType string, payload any) {
	data, err := envelope.Build(msgType, payload)
	if err != nil {
		slog.Error("envelope encode failed", "type", msgType, "err", err)
		return
	}
	if err := pc.conn.Writer.Write(data); err != nil {
		slog.Warn("send failed", "user_id", pc.userID, "type", msgType, "err", err)
	}
}

// broadcast sends to every connection of the user except skip.
func (pc *peerConn) broadcast(msgType string, payload any, skip *hub.Connection) {
	data, err := envelope.Build(msgType, payload)
	if err != nil {
		slog.Error("envelope encode failed", "type", msgType, "err", err)
		return
	}
	pc.h.Hub.BroadcastExcept(pc.userID, skip, data)
}

func (pc *peerConn) broadcastOthers(msgType string, payload any) {
	data, err := envelope.Build(msgType, payload)
	if err != nil {
		slog.Error("envelope encode failed", "type", msgType, "err", err)
		return
	}
	pc.h.Hub.BroadcastOthers(pc.userID, data)
}

func (pc *peerConn) sendError(env envelope.Envelope, err error) {
	pc.send(envelope.TypeError, model.PeerError{Ref: env.ID, Type: env.Type, Message: err.Error()})
}
