package store

import (
	"errors"
	"log/slog"
	"sync"

	"bugwars-sync/internal/model"
)

var (
	ErrInvalidItem          = model.ErrInvalidItem
	ErrInvalidQuantity      = model.ErrInvalidQuantity
	ErrInsufficientQuantity = model.ErrInsufficientQuantity
	ErrInventoryFull        = model.ErrInventoryFull
	ErrPlayerMismatch       = errors.New("player_id does not match the authenticated user")
)

// Store is the peer's authoritative game state, keyed by user id.
type Store struct {
	mu sync.RWMutex

	stateFile string
	persistMu sync.Mutex
	maxSlots  int

	accountsByPublicKey map[string]model.Account
	playersByUserID     map[string]model.PlayerData
	inventoryByUserID   map[string]model.Inventory
}

func New() *Store {
	return NewWithOptions(Options{})
}

type Options struct {
	// StateFile persists accounts, players and inventories across restarts
	// when set.
	StateFile string
	// MaxSlots caps the stacks per inventory. Zero uses
	// model.DefaultMaxSlots.
	MaxSlots int
}

func NewWithOptions(opts Options) *Store {
	if opts.MaxSlots <= 0 {
		opts.MaxSlots = model.DefaultMaxSlots
	}
	s := &Store{
		accountsByPublicKey: make(map[string]model.Account),
		playersByUserID:     make(map[string]model.PlayerData),
		inventoryByUserID:   make(map[string]model.Inventory),
		stateFile:           opts.StateFile,
		maxSlots:            opts.MaxSlots,
	}

	if s.stateFile != "" {
		if err := s.loadFromFile(s.stateFile); err != nil {
			slog.Error("state persistence: load failed", "path", s.stateFile, "err", err)
		}
	}

	return s
}

// GetOrCreateAccount returns the account for publicKey, creating it with
// userID on first login. A later login may rename the account.
func (s *Store) GetOrCreateAccount(publicKey, userID, username string, nowMillis int64) (model.Account, bool) {
	s.mu.Lock()

	if existing, ok := s.accountsByPublicKey[publicKey]; ok {
		if username == "" || username == existing.Username {
			s.mu.Unlock()
			return existing, false
		}
		existing.Username = username
		s.accountsByPublicKey[publicKey] = existing
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		s.persist(snapshot)
		return existing, false
	}

	acc := model.Account{
		ID:        userID,
		PublicKey: publicKey,
		Username:  username,
		CreatedAt: nowMillis,
	}
	s.accountsByPublicKey[publicKey] = acc
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.persist(snapshot)
	return acc, true
}

func (s *Store) AccountByUserID(userID string) (model.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, acc := range s.accountsByPublicKey {
		if acc.ID == userID {
			return acc, true
		}
	}
	return model.Account{}, false
}
