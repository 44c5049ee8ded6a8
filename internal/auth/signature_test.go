package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"
)

func signedProof(t *testing.T) LoginProof {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return LoginProof{
		PublicKey: base64.StdEncoding.EncodeToString(pub),
		Challenge: base64.StdEncoding.EncodeToString(challenge),
		Signature: base64.StdEncoding.EncodeToString(ed25519.Sign(priv, challenge)),
	}
}

func TestLoginProof_Valid(t *testing.T) {
	p := signedProof(t)
	if err := p.Verify(); err != nil {
		t.Fatalf("expected proof to verify, got %v", err)
	}
	if p.UserID() == "" || p.UserID() != p.UserID() {
		t.Fatalf("expected stable user id")
	}
}

func TestLoginProof_DistinctKeysDistinctUsers(t *testing.T) {
	if signedProof(t).UserID() == signedProof(t).UserID() {
		t.Fatalf("expected distinct user ids")
	}
}

func TestLoginProof_InvalidLengths(t *testing.T) {
	if err := (LoginProof{}).Verify(); !errors.Is(err, ErrInvalidPublicKey) {
		t.Fatalf("expected ErrInvalidPublicKey, got %v", err)
	}

	p := LoginProof{
		PublicKey: base64.StdEncoding.EncodeToString(make([]byte, ed25519.PublicKeySize)),
		Challenge: base64.StdEncoding.EncodeToString([]byte{1}),
		Signature: base64.StdEncoding.EncodeToString([]byte{1, 2, 3}),
	}
	if err := p.Verify(); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestLoginProof_TamperedChallenge(t *testing.T) {
	p := signedProof(t)
	p.Challenge = base64.StdEncoding.EncodeToString([]byte("something else"))
	if err := p.Verify(); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}
