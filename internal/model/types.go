package model

// SessionUpdate is the OnSessionUpdate payload pushed by the authentication
// layer. ExpiresAt is unix seconds.
type SessionUpdate struct {
	UserID       string `json:"userId"`
	Email        string `json:"email,omitempty"`
	Username     string `json:"username,omitempty"`
	DisplayName  string `json:"displayName,omitempty"`
	AvatarURL    string `json:"avatarUrl,omitempty"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"`
}

type SessionReceived struct {
	Success         bool   `json:"success"`
	UserID          string `json:"userId"`
	HasAccessToken  bool   `json:"hasAccessToken"`
	HasRefreshToken bool   `json:"hasRefreshToken"`
}

type TokenRefreshRequest struct {
	UserID       string `json:"userId"`
	RefreshToken string `json:"refreshToken"`
	Timestamp    int64  `json:"timestamp"`
}

type BridgeReady struct {
	Timestamp    string `json:"timestamp"`
	HostIdentity string `json:"hostIdentity"`
	Version      string `json:"version"`
}

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PlayerData is the player_data sync payload.
type PlayerData struct {
	PlayerID    string  `json:"player_id"`
	DisplayName string  `json:"display_name"`
	Level       int     `json:"level"`
	Experience  int64   `json:"experience"`
	Score       int64   `json:"score"`
	PlayTime    float64 `json:"play_time"`
	Position    Vec3    `json:"position"`
}

// ItemDelta is the body of add_item and remove_item.
type ItemDelta struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	Metadata string `json:"metadata,omitempty"`
}

// Connected welcomes a websocket client once the peer has accepted it.
type Connected struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Pong answers an application-level ping. Timestamp is unix seconds.
type Pong struct {
	Timestamp int64 `json:"timestamp"`
}

// PlayerJoined tells everyone else that a player came online.
type PlayerJoined struct {
	Player PlayerData `json:"player"`
}

type PlayerLeft struct {
	UserID string `json:"user_id"`
}

// PeerError is the body of an error envelope. Ref names the envelope that
// caused it when known.
type PeerError struct {
	Ref     string `json:"ref,omitempty"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

// Account is a peer-side login identity. ID doubles as the user id.
type Account struct {
	ID        string `json:"id"`
	PublicKey string `json:"publicKey"`
	Username  string `json:"username"`
	CreatedAt int64  `json:"createdAt"`
}
