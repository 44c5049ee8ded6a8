package auth

import (
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultCacheSize bounds a VerifyCache built with a non-positive size.
const DefaultCacheSize = 10000

// VerifyCache remembers verified tokens until they expire so reconnect
// storms do not re-check the same signature for every socket.
type VerifyCache struct {
	cfg     TokenConfig
	maxSize int
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	claims    Claims
	expiresAt time.Time
	addedAt   time.Time
}

func NewVerifyCache(cfg TokenConfig, maxSize int) *VerifyCache {
	return NewVerifyCacheWithNow(cfg, maxSize, time.Now)
}

func NewVerifyCacheWithNow(cfg TokenConfig, maxSize int, now func() time.Time) *VerifyCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &VerifyCache{
		cfg:     cfg,
		maxSize: maxSize,
		now:     now,
		entries: make(map[string]cacheEntry),
	}
}

// Verify behaves like VerifyToken. A cached token is only re-checked for
// expiry and kind. The returned claims are a copy.
func (vc *VerifyCache) Verify(tokenString, kind string) (*Claims, error) {
	now := vc.now()

	vc.mu.Lock()
	e, ok := vc.entries[tokenString]
	if ok && !now.Before(e.expiresAt) {
		delete(vc.entries, tokenString)
		vc.mu.Unlock()
		return nil, jwt.ErrTokenExpired
	}
	vc.mu.Unlock()

	if ok {
		if e.claims.Kind != kind {
			return nil, ErrWrongKind
		}
		claims := e.claims
		return &claims, nil
	}

	claims, err := VerifyToken(tokenString, kind, vc.cfg)
	if err != nil {
		return nil, err
	}
	if claims.ExpiresAt == nil {
		return claims, nil
	}

	vc.mu.Lock()
	if len(vc.entries) >= vc.maxSize {
		vc.evictOldestLocked()
	}
	vc.entries[tokenString] = cacheEntry{claims: *claims, expiresAt: claims.ExpiresAt.Time, addedAt: now}
	vc.mu.Unlock()
	return claims, nil
}

// evictOldestLocked drops the oldest tenth of the entries, at least one.
func (vc *VerifyCache) evictOldestLocked() {
	type aged struct {
		token   string
		addedAt time.Time
	}
	all := make([]aged, 0, len(vc.entries))
	for token, e := range vc.entries {
		all = append(all, aged{token, e.addedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].addedAt.Before(all[j].addedAt) })

	n := max(len(all)/10, 1)
	for _, a := range all[:n] {
		delete(vc.entries, a.token)
	}
}

// Cleanup removes expired entries and reports how many it removed.
func (vc *VerifyCache) Cleanup() int {
	now := vc.now()
	vc.mu.Lock()
	defer vc.mu.Unlock()

	removed := 0
	for token, e := range vc.entries {
		if !now.Before(e.expiresAt) {
			delete(vc.entries, token)
			removed++
		}
	}
	return removed
}

func (vc *VerifyCache) Len() int {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return len(vc.entries)
}
