package syncable

import (
	"encoding/json"
	"errors"
	"time"

	"bugwars-sync/internal/envelope"
	"bugwars-sync/internal/model"
)

const PlayerDataSyncID = envelope.TypePlayerData

// experiencePerLevel is the experience needed to leave level 1; each level
// after needs level*experiencePerLevel.
const experiencePerLevel = 100

// PlayerData is the player's progression and position. Gameplay code
// mutates it through the setters; the registry flushes it in batches.
type PlayerData struct {
	Dirty

	strategy Strategy
	data     model.PlayerData
	changes  Listeners[model.PlayerData]
}

func NewPlayerData(playerID string, interval time.Duration) *PlayerData {
	return &PlayerData{
		strategy: Batched(interval),
		data:     model.PlayerData{PlayerID: playerID, Level: 1},
	}
}

func (p *PlayerData) SyncID() string     { return PlayerDataSyncID }
func (p *PlayerData) Strategy() Strategy { return p.strategy }

func (p *PlayerData) Snapshot() model.PlayerData { return p.data }

// Subscribe registers fn to receive a snapshot after every change.
func (p *PlayerData) Subscribe(fn func(model.PlayerData)) (cancel func()) {
	return p.changes.Subscribe(fn)
}

func (p *PlayerData) mutate(fn func(*model.PlayerData) bool) {
	if !fn(&p.data) {
		return
	}
	p.MarkDirty()
	p.changes.Notify(p.data)
}

func (p *PlayerData) SetPlayerID(id string) {
	p.mutate(func(d *model.PlayerData) bool {
		if d.PlayerID == id {
			return false
		}
		d.PlayerID = id
		return true
	})
}

func (p *PlayerData) SetDisplayName(name string) {
	p.mutate(func(d *model.PlayerData) bool {
		if d.DisplayName == name {
			return false
		}
		d.DisplayName = name
		return true
	})
}

func (p *PlayerData) SetLevel(level int) {
	if level < 1 {
		level = 1
	}
	p.mutate(func(d *model.PlayerData) bool {
		if d.Level == level {
			return false
		}
		d.Level = level
		return true
	})
}

// AddExperience adds xp and levels up while the threshold for the current
// level is met. The remainder carries over.
func (p *PlayerData) AddExperience(xp int64) {
	if xp <= 0 {
		return
	}
	p.mutate(func(d *model.PlayerData) bool {
		d.Experience += xp
		if d.Level < 1 {
			d.Level = 1
		}
		for d.Experience >= int64(d.Level*experiencePerLevel) {
			d.Experience -= int64(d.Level * experiencePerLevel)
			d.Level++
		}
		return true
	})
}

func (p *PlayerData) AddScore(points int64) {
	if points == 0 {
		return
	}
	p.mutate(func(d *model.PlayerData) bool {
		d.Score += points
		return true
	})
}

func (p *PlayerData) AddPlayTime(elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	p.mutate(func(d *model.PlayerData) bool {
		d.PlayTime += elapsed.Seconds()
		return true
	})
}

func (p *PlayerData) SetPosition(pos model.Vec3) {
	p.mutate(func(d *model.PlayerData) bool {
		if d.Position == pos {
			return false
		}
		d.Position = pos
		return true
	})
}

func (p *PlayerData) SerializeForSync() (json.RawMessage, error) {
	return json.Marshal(p.data)
}

func (p *PlayerData) DeserializeFromSync(data []byte) error {
	var next model.PlayerData
	if err := json.Unmarshal(data, &next); err != nil {
		return err
	}
	if next.PlayerID == "" {
		return errors.New("player_data: missing player_id")
	}
	p.data = next
	p.changes.Notify(p.data)
	return nil
}

func (p *PlayerData) OnConnected(s Sender) {
	s.Send(envelope.TypeGetPlayerData, map[string]string{"player_id": p.data.PlayerID})
}

func (p *PlayerData) OnDisconnected() {}
