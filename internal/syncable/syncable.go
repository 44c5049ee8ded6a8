package syncable

import (
	"encoding/json"
	"fmt"
	"time"
)

type Mode int

const (
	ModeImmediate Mode = iota
	ModeBatched
)

func (m Mode) String() string {
	switch m {
	case ModeImmediate:
		return "immediate"
	case ModeBatched:
		return "batched"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Strategy decides how often a dirty syncable is flushed. Immediate
// flushes at most once per tick; Batched at most once per Interval.
type Strategy struct {
	Mode     Mode
	Interval time.Duration
}

func Immediate() Strategy { return Strategy{Mode: ModeImmediate} }

func Batched(interval time.Duration) Strategy {
	return Strategy{Mode: ModeBatched, Interval: interval}
}

// Sender is the slice of the transport a syncable may use.
type Sender interface {
	IsConnected() bool
	Send(msgType string, payload any) bool
}

// Syncable is a domain object that is serialized to the wire on a cadence
// and replaced wholesale by authoritative state from the peer.
type Syncable interface {
	SyncID() string
	Strategy() Strategy

	IsDirty() bool
	MarkDirty()
	MarkClean()

	// SerializeForSync returns a point-in-time snapshot.
	SerializeForSync() (json.RawMessage, error)
	// DeserializeFromSync replaces local state with data.
	DeserializeFromSync(data []byte) error

	OnConnected(Sender)
	OnDisconnected()
}

// Dirty is an embeddable dirty flag.
type Dirty struct {
	dirty bool
}

func (d *Dirty) IsDirty() bool { return d.dirty }
func (d *Dirty) MarkDirty()    { d.dirty = true }
func (d *Dirty) MarkClean()    { d.dirty = false }
