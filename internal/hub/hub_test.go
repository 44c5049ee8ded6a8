package hub

import (
	"errors"
	"testing"
	"time"
)

type testWriter struct {
	writes int
	closed bool
	fail   bool
}

func (w *testWriter) Write(message []byte) error {
	w.writes++
	if w.fail {
		return errTest
	}
	return nil
}

func (w *testWriter) Close() error {
	w.closed = true
	return nil
}

var errTest = errors.New("test")

func TestHub_RegisterBroadcastUnregister(t *testing.T) {
	h := New()
	w1 := &testWriter{}
	c1 := &Connection{ID: "c1", UserID: "u", Writer: w1}

	h.Register(c1)
	h.Broadcast("u", []byte("x"))
	if w1.writes != 1 {
		t.Fatalf("expected 1 write, got %d", w1.writes)
	}

	h.Unregister(c1)
	h.Broadcast("u", []byte("x"))
	if w1.writes != 1 {
		t.Fatalf("expected no more writes, got %d", w1.writes)
	}
	if h.Count("u") != 0 {
		t.Fatalf("expected no connections left")
	}
}

func TestHub_RemovesFailedConnections(t *testing.T) {
	h := New()
	w1 := &testWriter{fail: true}
	c1 := &Connection{ID: "c1", UserID: "u", Writer: w1}
	h.Register(c1)

	h.Broadcast("u", []byte("x"))
	h.Broadcast("u", []byte("x"))
	if w1.writes != 1 {
		t.Fatalf("expected only 1 write before removal, got %d", w1.writes)
	}
	if !w1.closed {
		t.Fatalf("expected failed connection closed")
	}
}

func TestHub_BroadcastExceptSkipsOrigin(t *testing.T) {
	h := New()
	origin, other, stranger := &testWriter{}, &testWriter{}, &testWriter{}
	c1 := &Connection{ID: "c1", UserID: "u", Writer: origin}
	h.Register(c1)
	h.Register(&Connection{ID: "c2", UserID: "u", Writer: other})
	h.Register(&Connection{ID: "c3", UserID: "v", Writer: stranger})

	h.BroadcastExcept("u", c1, []byte("x"))
	if origin.writes != 0 || other.writes != 1 || stranger.writes != 0 {
		t.Fatalf("unexpected writes: origin=%d other=%d stranger=%d", origin.writes, other.writes, stranger.writes)
	}
	if h.Count("u") != 2 {
		t.Fatalf("expected 2 connections for u, got %d", h.Count("u"))
	}
}

func TestHub_FirstAndLastConnection(t *testing.T) {
	h := New()
	var offline []string
	h.OnOffline(func(userID string) { offline = append(offline, userID) })

	c1 := &Connection{ID: "c1", UserID: "u", Writer: &testWriter{}}
	c2 := &Connection{ID: "c2", UserID: "u", Writer: &testWriter{}}
	if !h.Register(c1) {
		t.Fatalf("expected the first connection to report first")
	}
	if h.Register(c2) {
		t.Fatalf("second connection reported first")
	}

	h.Unregister(c1)
	if len(offline) != 0 {
		t.Fatalf("user went offline with a connection left: %v", offline)
	}
	h.Unregister(c2)
	h.Unregister(c2)
	if len(offline) != 1 || offline[0] != "u" {
		t.Fatalf("expected exactly one offline call for u, got %v", offline)
	}
}

func TestHub_FailedWriteReportsOffline(t *testing.T) {
	h := New()
	var offline []string
	h.OnOffline(func(userID string) { offline = append(offline, userID) })
	h.Register(&Connection{ID: "c1", UserID: "u", Writer: &testWriter{fail: true}})

	h.Broadcast("u", []byte("x"))
	if len(offline) != 1 {
		t.Fatalf("expected u offline after its only connection failed, got %v", offline)
	}
}

func TestHub_BroadcastOthersSkipsSender(t *testing.T) {
	h := New()
	mine, theirs, another := &testWriter{}, &testWriter{}, &testWriter{}
	h.Register(&Connection{ID: "c1", UserID: "u", Writer: mine})
	h.Register(&Connection{ID: "c2", UserID: "v", Writer: theirs})
	h.Register(&Connection{ID: "c3", UserID: "w", Writer: another})

	h.BroadcastOthers("u", []byte("joined"))
	if mine.writes != 0 || theirs.writes != 1 || another.writes != 1 {
		t.Fatalf("unexpected writes: mine=%d theirs=%d another=%d", mine.writes, theirs.writes, another.writes)
	}
}

func TestHub_SweepStaleDropsIdleConnections(t *testing.T) {
	h := New()
	var offline []string
	h.OnOffline(func(userID string) { offline = append(offline, userID) })

	now := time.Now()
	idle, busy := &testWriter{}, &testWriter{}
	c1 := &Connection{ID: "c1", UserID: "u", Writer: idle}
	c2 := &Connection{ID: "c2", UserID: "v", Writer: busy}
	c1.Touch(now.Add(-5 * time.Minute))
	c2.Touch(now.Add(-5 * time.Minute))
	h.Register(c1)
	h.Register(c2)
	c2.Touch(now)

	if n := h.SweepStale(now.Add(-2 * time.Minute)); n != 1 {
		t.Fatalf("expected one stale connection, got %d", n)
	}
	if !idle.closed || busy.closed {
		t.Fatalf("wrong connection closed: idle=%v busy=%v", idle.closed, busy.closed)
	}
	if h.Count("u") != 0 || h.Count("v") != 1 {
		t.Fatalf("unexpected counts u=%d v=%d", h.Count("u"), h.Count("v"))
	}
	if len(offline) != 1 || offline[0] != "u" {
		t.Fatalf("expected u offline, got %v", offline)
	}
}
