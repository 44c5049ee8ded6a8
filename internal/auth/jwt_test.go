package auth

import (
	"errors"
	"testing"
	"time"
)

func testConfig() TokenConfig {
	return TokenConfig{Secret: "secret", AccessExpiry: time.Hour, RefreshExpiry: 2 * time.Hour, Issuer: "test"}
}

func TestIssuePairAndVerify(t *testing.T) {
	cfg := testConfig()
	pair, err := IssuePair("user-1", "ant", cfg)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	claims, err := VerifyToken(pair.AccessToken, KindAccess, cfg)
	if err != nil {
		t.Fatalf("VerifyToken access: %v", err)
	}
	if claims.UserID != "user-1" || claims.Username != "ant" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := VerifyToken(pair.RefreshToken, KindRefresh, cfg); err != nil {
		t.Fatalf("VerifyToken refresh: %v", err)
	}

	remaining := time.Until(time.Unix(pair.ExpiresAt, 0))
	if remaining < 59*time.Minute || remaining > time.Hour {
		t.Fatalf("unexpected access expiry, %v remaining", remaining)
	}
}

func TestVerifyToken_WrongKind(t *testing.T) {
	cfg := testConfig()
	pair, err := IssuePair("user-1", "", cfg)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := VerifyToken(pair.RefreshToken, KindAccess, cfg); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("expected ErrWrongKind, got %v", err)
	}
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	cfg := testConfig()
	pair, err := IssuePair("user-1", "", cfg)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	other := cfg
	other.Secret = "wrong"
	if _, err := VerifyToken(pair.AccessToken, KindAccess, other); err == nil {
		t.Fatalf("expected error")
	}
}

func TestIssuePair_InvalidExpiry(t *testing.T) {
	cfg := testConfig()
	cfg.AccessExpiry = -time.Second
	if _, err := IssuePair("user-1", "", cfg); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPeekExpiry(t *testing.T) {
	cfg := testConfig()
	pair, err := IssuePair("user-1", "", cfg)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	exp, err := PeekExpiry(pair.AccessToken)
	if err != nil {
		t.Fatalf("PeekExpiry: %v", err)
	}
	if exp != pair.ExpiresAt {
		t.Fatalf("expected %d, got %d", pair.ExpiresAt, exp)
	}
	if _, err := PeekExpiry("not-a-token"); err == nil {
		t.Fatalf("expected error for garbage token")
	}
}
