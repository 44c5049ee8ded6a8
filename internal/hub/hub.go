// Package hub fans authoritative state out to every connection a user has
// open, so two tabs of the same player stay in step. It also tracks which
// users are online.
package hub

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type Writer interface {
	Write(message []byte) error
	Close() error
}

type Connection struct {
	ID     string
	UserID string
	Writer Writer

	lastSeen atomic.Int64
}

// Touch records activity on the connection.
func (c *Connection) Touch(now time.Time) {
	c.lastSeen.Store(now.UnixNano())
}

func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{}
	offline     func(userID string)
}

func New() *Hub {
	return &Hub{connections: make(map[string]map[*Connection]struct{})}
}

// OnOffline sets fn to run whenever a user's last connection goes away,
// however it was removed. Set it before the hub is shared.
func (h *Hub) OnOffline(fn func(userID string)) {
	h.offline = fn
}

// Register adds conn and reports whether it is the user's first.
func (h *Hub) Register(conn *Connection) (first bool) {
	if conn.lastSeen.Load() == 0 {
		conn.Touch(time.Now())
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections[conn.UserID] == nil {
		h.connections[conn.UserID] = make(map[*Connection]struct{})
	}
	h.connections[conn.UserID][conn] = struct{}{}
	return len(h.connections[conn.UserID]) == 1
}

// Unregister removes conn. Removing a connection twice is a no-op.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	set := h.connections[conn.UserID]
	_, ok := set[conn]
	delete(set, conn)
	last := ok && len(set) == 0
	if last {
		delete(h.connections, conn.UserID)
	}
	h.mu.Unlock()

	if last && h.offline != nil {
		h.offline(conn.UserID)
	}
}

// Count reports how many connections userID has open.
func (h *Hub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}

func (h *Hub) Broadcast(userID string, message []byte) {
	h.BroadcastExcept(userID, nil, message)
}

// BroadcastExcept writes message to every connection of userID other than
// skip. Connections that fail a write are closed and dropped.
func (h *Hub) BroadcastExcept(userID string, skip *Connection, message []byte) {
	h.mu.RLock()
	set := h.connections[userID]
	conns := make([]*Connection, 0, len(set))
	for c := range set {
		if c != skip {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	h.write(conns, message)
}

// BroadcastOthers writes message to the connections of every user except
// userID.
func (h *Hub) BroadcastOthers(userID string, message []byte) {
	h.mu.RLock()
	var conns []*Connection
	for uid, set := range h.connections {
		if uid == userID {
			continue
		}
		for c := range set {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	h.write(conns, message)
}

func (h *Hub) write(conns []*Connection, message []byte) {
	var failed []*Connection
	for _, c := range conns {
		if err := c.Writer.Write(message); err != nil {
			slog.Warn("hub write failed", "user_id", c.UserID, "conn_id", c.ID, "err", err)
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		_ = c.Writer.Close()
		h.Unregister(c)
	}
}

// SweepStale closes and drops connections not seen since cutoff. It
// returns how many it dropped.
func (h *Hub) SweepStale(cutoff time.Time) int {
	h.mu.RLock()
	var stale []*Connection
	for _, set := range h.connections {
		for c := range set {
			if c.LastSeen().Before(cutoff) {
				stale = append(stale, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		slog.Info("dropping stale connection", "user_id", c.UserID, "conn_id", c.ID, "last_seen", c.LastSeen())
		_ = c.Writer.Close()
		h.Unregister(c)
	}
	return len(stale)
}
