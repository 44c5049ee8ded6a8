package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrInvalidPublicKey = errors.New("Invalid public key")
	ErrInvalidSignature = errors.New("Invalid signature")
)

// userNamespace scopes user ids derived from public keys.
var userNamespace = uuid.MustParse("6f1c2a4e-3b7d-4f0a-9c51-2d8e7a90b413")

// LoginProof is an Ed25519 signature over a client-chosen challenge. All
// fields are standard base64.
type LoginProof struct {
	PublicKey string `json:"publicKey"`
	Challenge string `json:"challenge"`
	Signature string `json:"signature"`
}

func (p LoginProof) Verify() error {
	publicKey, err := base64.StdEncoding.DecodeString(p.PublicKey)
	if err != nil || len(publicKey) != ed25519.PublicKeySize {
		return ErrInvalidPublicKey
	}

	challenge, err := base64.StdEncoding.DecodeString(p.Challenge)
	if err != nil || len(challenge) == 0 {
		return ErrInvalidSignature
	}

	signature, err := base64.StdEncoding.DecodeString(p.Signature)
	if err != nil || len(signature) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}

	if !ed25519.Verify(ed25519.PublicKey(publicKey), challenge, signature) {
		return ErrInvalidSignature
	}
	return nil
}

// UserID derives the stable user id owned by the proof's key.
func (p LoginProof) UserID() string {
	return uuid.NewSHA1(userNamespace, []byte(p.PublicKey)).String()
}
