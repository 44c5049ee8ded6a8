package syncable

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	ErrDuplicateSyncID = errors.New("syncable: duplicate sync id")
	ErrUnknownSyncID   = errors.New("syncable: unknown sync id")
	// ErrPendingChanges is returned by Apply when the syncable holds local
	// changes that have not been flushed yet.
	ErrPendingChanges = errors.New("syncable: unflushed local changes")
)

type entry struct {
	s         Syncable
	lastFlush time.Time
}

// Registry drives the flush cadence of every registered syncable. It is not
// safe for concurrent use: the owning loop calls mutations, Tick and Apply
// in order.
type Registry struct {
	now     func() time.Time
	entries []*entry
	byID    map[string]*entry
	sender  Sender
}

func NewRegistry() *Registry {
	return NewRegistryWithNow(time.Now)
}

func NewRegistryWithNow(now func() time.Time) *Registry {
	return &Registry{now: now, byID: make(map[string]*entry)}
}

// Register adds s. A batched syncable first becomes eligible to flush one
// interval after registration.
func (r *Registry) Register(s Syncable) error {
	id := s.SyncID()
	if id == "" {
		return errors.New("syncable: empty sync id")
	}
	if _, ok := r.byID[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSyncID, id)
	}
	e := &entry{s: s, lastFlush: r.now()}
	r.entries = append(r.entries, e)
	r.byID[id] = e
	if r.sender != nil && r.sender.IsConnected() {
		r.attach(e, r.now())
	}
	return nil
}

func (r *Registry) Unregister(id string) {
	e, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	for i, cur := range r.entries {
		if cur == e {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			break
		}
	}
}

func (r *Registry) Get(id string) (Syncable, bool) {
	e, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return e.s, true
}

func (r *Registry) Len() int { return len(r.entries) }

// OnConnected hands sender to every syncable. A clean syncable asks the
// peer for authoritative state. A syncable still dirty from the offline
// period flushes its accumulated state once instead, so the peer learns
// about changes it never saw.
func (r *Registry) OnConnected(sender Sender) {
	r.sender = sender
	now := r.now()
	for _, e := range r.entries {
		r.attach(e, now)
	}
}

func (r *Registry) attach(e *entry, now time.Time) {
	if e.s.IsDirty() {
		r.flush(e, now)
		return
	}
	e.s.OnConnected(r.sender)
}

// OnDisconnected tells every syncable the link is gone. Dirty flags are
// left alone so local mutations accrue until the next connection.
func (r *Registry) OnDisconnected() {
	for _, e := range r.entries {
		e.s.OnDisconnected()
	}
}

// Tick flushes every syncable that is due and returns how many were sent.
// Nothing is flushed while the sender is disconnected.
func (r *Registry) Tick(now time.Time) int {
	if r.sender == nil || !r.sender.IsConnected() {
		return 0
	}

	flushed := 0
	for _, e := range r.entries {
		s := e.s
		if !s.IsDirty() {
			continue
		}
		st := s.Strategy()
		if st.Mode == ModeBatched && now.Sub(e.lastFlush) < st.Interval {
			continue
		}
		if r.flush(e, now) {
			flushed++
		}
	}
	return flushed
}

func (r *Registry) flush(e *entry, now time.Time) bool {
	s := e.s
	payload, err := s.SerializeForSync()
	if err != nil {
		slog.Error("syncable serialize failed", "sync_id", s.SyncID(), "err", err)
		return false
	}
	if !r.sender.Send(s.SyncID(), payload) {
		return false
	}
	s.MarkClean()
	e.lastFlush = now
	return true
}

// Apply replaces the state of syncable id with authoritative data from the
// peer and marks it clean. A dirty syncable keeps its local state and
// Apply returns ErrPendingChanges; the next flush overwrites the peer.
func (r *Registry) Apply(id string, data []byte) error {
	e, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSyncID, id)
	}
	if e.s.IsDirty() {
		return ErrPendingChanges
	}
	if err := e.s.DeserializeFromSync(data); err != nil {
		return fmt.Errorf("apply %s: %w", id, err)
	}
	e.s.MarkClean()
	return nil
}
