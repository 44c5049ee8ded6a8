package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"bugwars-sync/internal/model"
)

const stateVersion = 1

type persistedInventory struct {
	UserID string                `json:"userId"`
	Items  []model.InventoryItem `json:"items"`
}

type persistedStateFile struct {
	Version     int                  `json:"version"`
	Accounts    []model.Account      `json:"accounts"`
	Players     []model.PlayerData   `json:"players"`
	Inventories []persistedInventory `json:"inventories"`
	SavedAt     int64                `json:"savedAt"`
}

func (s *Store) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var file persistedStateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.Version != stateVersion {
		return errors.New("unsupported state file version")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range file.Accounts {
		if acc.ID == "" || acc.PublicKey == "" {
			continue
		}
		s.accountsByPublicKey[acc.PublicKey] = acc
	}
	for _, p := range file.Players {
		if p.PlayerID == "" {
			continue
		}
		s.playersByUserID[p.PlayerID] = p
	}
	for _, inv := range file.Inventories {
		if inv.UserID == "" {
			continue
		}
		var loaded model.Inventory
		for _, it := range inv.Items {
			if it.ItemID != "" && it.Quantity > 0 {
				loaded.Items = append(loaded.Items, it)
			}
		}
		// A lowered slot limit does not drop saved stacks; adds fail until
		// the player frees slots.
		loaded, err := loaded.Normalize()
		if err != nil {
			continue
		}
		if len(loaded.Items) > s.maxSlots {
			slog.Warn("state persistence: inventory over slot limit", "user_id", inv.UserID, "stacks", len(loaded.Items), "max_slots", s.maxSlots)
		}
		s.inventoryByUserID[inv.UserID] = loaded
	}
	return nil
}

// snapshotLocked copies the persisted state. It returns nil when
// persistence is off. Callers hold s.mu.
func (s *Store) snapshotLocked() *persistedStateFile {
	if s.stateFile == "" {
		return nil
	}
	file := &persistedStateFile{
		Version:     stateVersion,
		Accounts:    make([]model.Account, 0, len(s.accountsByPublicKey)),
		Players:     make([]model.PlayerData, 0, len(s.playersByUserID)),
		Inventories: make([]persistedInventory, 0, len(s.inventoryByUserID)),
	}
	for _, acc := range s.accountsByPublicKey {
		file.Accounts = append(file.Accounts, acc)
	}
	sort.Slice(file.Accounts, func(i, j int) bool { return file.Accounts[i].ID < file.Accounts[j].ID })
	for _, p := range s.playersByUserID {
		file.Players = append(file.Players, p)
	}
	sort.Slice(file.Players, func(i, j int) bool { return file.Players[i].PlayerID < file.Players[j].PlayerID })
	for userID, inv := range s.inventoryByUserID {
		file.Inventories = append(file.Inventories, persistedInventory{UserID: userID, Items: inv.Clone().Items})
	}
	sort.Slice(file.Inventories, func(i, j int) bool { return file.Inventories[i].UserID < file.Inventories[j].UserID })
	return file
}

func (s *Store) persist(file *persistedStateFile) {
	if file == nil {
		return
	}
	path := s.stateFile

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Error("state persistence: mkdir failed", "dir", dir, "err", err)
		return
	}

	file.SavedAt = time.Now().UnixMilli()
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		slog.Error("state persistence: marshal failed", "err", err)
		return
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		slog.Error("state persistence: create temp failed", "err", err)
		return
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		slog.Error("state persistence: chmod temp failed", "err", err)
		return
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		slog.Error("state persistence: write temp failed", "err", err)
		return
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		slog.Error("state persistence: sync temp failed", "err", err)
		return
	}
	if err := tmp.Close(); err != nil {
		slog.Error("state persistence: close temp failed", "err", err)
		return
	}
	if err := os.Rename(tmpName, path); err != nil {
		slog.Error("state persistence: rename failed", "err", err)
		return
	}
}
