package session

import (
	"time"

	"bugwars-sync/internal/model"
)

// RefreshThreshold is the safety margin before expiry at which an access
// token counts as expired and a refresh is requested.
const RefreshThreshold = 5 * time.Minute

// RefreshRetryAfter is how long a refresh request may go unanswered before
// it is sent again.
const RefreshRetryAfter = 30 * time.Second

// State is the authentication state of the local player. It only changes
// through session updates from the authentication layer.
type State struct {
	UserID          string
	DisplayName     string
	Username        string
	Email           string
	AvatarURL       string
	AccessToken     string
	RefreshToken    string
	ExpiresAt       int64
	IsAuthenticated bool
}

func stateFromUpdate(u model.SessionUpdate) State {
	s := State{
		UserID:       u.UserID,
		DisplayName:  u.DisplayName,
		Username:     u.Username,
		Email:        u.Email,
		AvatarURL:    u.AvatarURL,
		AccessToken:  u.AccessToken,
		RefreshToken: u.RefreshToken,
		ExpiresAt:    u.ExpiresAt,
	}
	s.IsAuthenticated = s.UserID != "" && s.AccessToken != ""
	return s
}

// Remaining is the time left before the access token expires.
func (s State) Remaining(now time.Time) time.Duration {
	return time.Unix(s.ExpiresAt, 0).Sub(now)
}

// IsTokenExpired reports whether the access token is missing or has less
// than RefreshThreshold left.
func (s State) IsTokenExpired(now time.Time) bool {
	if s.AccessToken == "" {
		return true
	}
	return s.Remaining(now) < RefreshThreshold
}

type Phase int

const (
	Unauthenticated Phase = iota
	Authenticated
	RefreshPending
)

func (p Phase) String() string {
	switch p {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case RefreshPending:
		return "refresh_pending"
	default:
		return "unknown"
	}
}
