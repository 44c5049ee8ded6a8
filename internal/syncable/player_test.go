package syncable

import (
	"testing"
	"time"

	"bugwars-sync/internal/model"
)

func TestPlayerData_RoundTrip(t *testing.T) {
	src := NewPlayerData("p1", 10*time.Second)
	src.SetDisplayName("Beetle")
	src.AddExperience(150)
	src.AddScore(42)
	src.AddPlayTime(90 * time.Second)
	src.SetPosition(model.Vec3{X: 1, Y: 2, Z: 3})

	data, err := src.SerializeForSync()
	if err != nil {
		t.Fatalf("SerializeForSync: %v", err)
	}
	dst := NewPlayerData("other", 10*time.Second)
	if err := dst.DeserializeFromSync(data); err != nil {
		t.Fatalf("DeserializeFromSync: %v", err)
	}
	if dst.Snapshot() != src.Snapshot() {
		t.Fatalf("expected %+v, got %+v", src.Snapshot(), dst.Snapshot())
	}
}

func TestPlayerData_AddExperienceLevelsUp(t *testing.T) {
	p := NewPlayerData("p1", time.Second)
	p.AddExperience(350)

	got := p.Snapshot()
	// level 1 needs 100, level 2 needs 200: 350 -> level 3 with 50 left.
	if got.Level != 3 || got.Experience != 50 {
		t.Fatalf("expected level 3 with 50 xp, got level %d with %d", got.Level, got.Experience)
	}
}

func TestPlayerData_NoOpSettersStayClean(t *testing.T) {
	p := NewPlayerData("p1", time.Second)
	p.SetPosition(model.Vec3{})
	p.SetDisplayName("")
	p.AddScore(0)
	p.AddPlayTime(0)
	if p.IsDirty() {
		t.Fatalf("expected clean after no-op setters")
	}

	p.SetDisplayName("Ant")
	if !p.IsDirty() {
		t.Fatalf("expected dirty after rename")
	}
}

func TestPlayerData_DeserializeRequiresPlayerID(t *testing.T) {
	p := NewPlayerData("p1", time.Second)
	if err := p.DeserializeFromSync([]byte(`{"display_name":"x"}`)); err == nil {
		t.Fatalf("expected error")
	}
	if p.Snapshot().PlayerID != "p1" {
		t.Fatalf("expected state untouched")
	}
}

func TestPlayerData_SubscribersSeeChanges(t *testing.T) {
	p := NewPlayerData("p1", time.Second)
	var names []string
	p.Subscribe(func(d model.PlayerData) { names = append(names, d.DisplayName) })

	p.SetDisplayName("Ant")
	p.SetDisplayName("Ant")
	p.SetDisplayName("Wasp")

	if len(names) != 2 || names[0] != "Ant" || names[1] != "Wasp" {
		t.Fatalf("unexpected notifications %v", names)
	}
}
