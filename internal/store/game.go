package store

import "bugwars-sync/internal/model"

// PlayerData returns the stored player, or a fresh level 1 player for a
// user that has never synced.
func (s *Store) PlayerData(userID string) model.PlayerData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.playersByUserID[userID]; ok {
		return p
	}
	p := model.PlayerData{PlayerID: userID, Level: 1}
	for _, acc := range s.accountsByPublicKey {
		if acc.ID == userID {
			p.DisplayName = acc.Username
			break
		}
	}
	return p
}

// PutPlayerData replaces the player wholesale. Last write wins.
func (s *Store) PutPlayerData(userID string, p model.PlayerData) (model.PlayerData, error) {
	if p.PlayerID == "" {
		p.PlayerID = userID
	}
	if p.PlayerID != userID {
		return model.PlayerData{}, ErrPlayerMismatch
	}
	if p.Level < 1 {
		p.Level = 1
	}

	s.mu.Lock()
	s.playersByUserID[userID] = p
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.persist(snapshot)
	return p, nil
}

func (s *Store) Inventory(userID string) model.Inventory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inventoryLocked(userID)
}

// inventoryLocked returns a copy of the user's inventory carrying the
// current slot limit. Callers hold s.mu.
func (s *Store) inventoryLocked(userID string) model.Inventory {
	inv := s.inventoryByUserID[userID].Clone()
	inv.MaxSlots = s.maxSlots
	return inv
}

// ReplaceInventory swaps in inv after validating every stack. Stacks with
// the same id and metadata are merged. The slot limit is the peer's, not
// the one inv carries.
func (s *Store) ReplaceInventory(userID string, inv model.Inventory) (model.Inventory, error) {
	inv.MaxSlots = s.maxSlots
	next, err := inv.Normalize()
	if err != nil {
		return model.Inventory{}, err
	}

	s.mu.Lock()
	s.inventoryByUserID[userID] = next
	out := next.Clone()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.persist(snapshot)
	return out, nil
}

// AddItem stacks quantity onto a matching stack, or takes a free slot.
func (s *Store) AddItem(userID, itemID string, quantity int, metadata string) (model.Inventory, error) {
	return s.updateInventory(userID, func(inv *model.Inventory) error {
		return inv.Add(itemID, quantity, metadata)
	})
}

// RemoveItem takes quantity away and drops the stack once it reaches zero.
func (s *Store) RemoveItem(userID, itemID string, quantity int, metadata string) (model.Inventory, error) {
	return s.updateInventory(userID, func(inv *model.Inventory) error {
		return inv.Remove(itemID, quantity, metadata)
	})
}

func (s *Store) updateInventory(userID string, apply func(*model.Inventory) error) (model.Inventory, error) {
	s.mu.Lock()
	inv := s.inventoryLocked(userID)
	if err := apply(&inv); err != nil {
		s.mu.Unlock()
		return model.Inventory{}, err
	}
	s.inventoryByUserID[userID] = inv
	out := inv.Clone()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.persist(snapshot)
	return out, nil
}
