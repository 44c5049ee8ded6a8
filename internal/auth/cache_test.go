package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestVerifyCache_HitsAndKinds(t *testing.T) {
	cfg := testConfig()
	pair, err := IssuePair("user-1", "ant", cfg)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	vc := NewVerifyCache(cfg, 0)

	first, err := vc.Verify(pair.AccessToken, KindAccess)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	first.UserID = "changed"

	second, err := vc.Verify(pair.AccessToken, KindAccess)
	if err != nil {
		t.Fatalf("cached Verify: %v", err)
	}
	if second.UserID != "user-1" {
		t.Fatalf("cached claims were shared with a caller: %+v", second)
	}
	if vc.Len() != 1 {
		t.Fatalf("expected one cached token, got %d", vc.Len())
	}
	if _, err := vc.Verify(pair.AccessToken, KindRefresh); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("expected ErrWrongKind from a cached token, got %v", err)
	}
	if _, err := vc.Verify("garbage", KindAccess); err == nil {
		t.Fatalf("expected garbage to fail")
	}
	if vc.Len() != 1 {
		t.Fatalf("failed tokens must not be cached, got %d", vc.Len())
	}
}

func TestVerifyCache_ExpiredEntriesFail(t *testing.T) {
	cfg := testConfig()
	pair, _ := IssuePair("user-1", "", cfg)
	clock := &fakeClock{t: time.Now()}
	vc := NewVerifyCacheWithNow(cfg, 10, clock.now)

	if _, err := vc.Verify(pair.AccessToken, KindAccess); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	clock.advance(2 * time.Hour)
	if _, err := vc.Verify(pair.AccessToken, KindAccess); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if vc.Len() != 0 {
		t.Fatalf("expected the expired entry dropped")
	}
}

func TestVerifyCache_CleanupRemovesExpired(t *testing.T) {
	cfg := testConfig()
	clock := &fakeClock{t: time.Now()}
	vc := NewVerifyCacheWithNow(cfg, 10, clock.now)

	pair, _ := IssuePair("user-1", "", cfg)
	vc.Verify(pair.AccessToken, KindAccess)
	vc.Verify(pair.RefreshToken, KindRefresh)

	clock.advance(90 * time.Minute)
	if n := vc.Cleanup(); n != 1 {
		t.Fatalf("expected the access token removed, removed %d", n)
	}
	if _, ok := vc.entries[pair.RefreshToken]; !ok {
		t.Fatalf("refresh token should outlive the access token")
	}
}

func TestVerifyCache_EvictsOldestTenthWhenFull(t *testing.T) {
	cfg := testConfig()
	clock := &fakeClock{t: time.Now()}
	vc := NewVerifyCacheWithNow(cfg, 20, clock.now)

	var tokens []string
	for i := 0; i < 21; i++ {
		pair, err := IssuePair("user-1", "", cfg)
		if err != nil {
			t.Fatalf("IssuePair: %v", err)
		}
		if _, err := vc.Verify(pair.AccessToken, KindAccess); err != nil {
			t.Fatalf("Verify: %v", err)
		}
		tokens = append(tokens, pair.AccessToken)
		clock.advance(time.Second)
	}

	if vc.Len() != 19 {
		t.Fatalf("expected two evicted, %d cached", vc.Len())
	}
	for _, tok := range tokens[:2] {
		if _, ok := vc.entries[tok]; ok {
			t.Fatalf("oldest tokens should be evicted first")
		}
	}
	if _, ok := vc.entries[tokens[20]]; !ok {
		t.Fatalf("newest token missing")
	}
}
