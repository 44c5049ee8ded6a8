package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

var (
	ErrMissingSecret = errors.New("missing secret")
	ErrWrongKind     = errors.New("wrong token kind")
)

type Claims struct {
	UserID   string `json:"sub"`
	Kind     string `json:"kind"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

type TokenConfig struct {
	Secret        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

func DefaultTokenConfig(secret string) TokenConfig {
	return TokenConfig{
		Secret:        secret,
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 7 * 24 * time.Hour,
		Issuer:        "bugwars-sync",
	}
}

// TokenPair is an access token plus the refresh token that renews it.
// ExpiresAt is the access token expiry in unix seconds.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
}

func IssuePair(userID, username string, cfg TokenConfig) (TokenPair, error) {
	access, exp, err := createToken(userID, username, KindAccess, cfg.AccessExpiry, cfg)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := createToken(userID, username, KindRefresh, cfg.RefreshExpiry, cfg)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: exp.Unix()}, nil
}

func createToken(userID, username, kind string, expiry time.Duration, cfg TokenConfig) (string, time.Time, error) {
	if cfg.Secret == "" {
		return "", time.Time{}, ErrMissingSecret
	}
	if userID == "" {
		return "", time.Time{}, errors.New("missing userID")
	}
	if expiry <= 0 {
		return "", time.Time{}, errors.New("invalid expiry")
	}

	jtiBytes := make([]byte, 16)
	if _, err := rand.Read(jtiBytes); err != nil {
		return "", time.Time{}, err
	}

	now := time.Now()
	exp := now.Add(expiry)
	claims := Claims{
		UserID:   userID,
		Kind:     kind,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        hex.EncodeToString(jtiBytes),
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyToken checks the signature, expiry and kind of tokenString.
func VerifyToken(tokenString, kind string, cfg TokenConfig) (*Claims, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(cfg.Secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.Kind != kind {
		return nil, ErrWrongKind
	}
	return claims, nil
}

// PeekExpiry reads the exp claim without verifying the signature. Clients
// use it to schedule refreshes for tokens they cannot verify.
func PeekExpiry(tokenString string) (int64, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims); err != nil {
		return 0, err
	}
	if claims.ExpiresAt == nil {
		return 0, errors.New("token has no exp claim")
	}
	return claims.ExpiresAt.Unix(), nil
}
