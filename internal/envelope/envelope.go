package envelope

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Wire message types. The payload shape of each is fixed by its type.
const (
	TypeSessionUpdate       = "OnSessionUpdate"
	TypeSessionReceived     = "SessionReceived"
	TypeTokenRefreshRequest = "TokenRefreshRequest"
	TypeBridgeReady         = "BridgeReady"

	TypeGetInventory  = "get_inventory"
	TypeAddItem       = "add_item"
	TypeRemoveItem    = "remove_item"
	TypeInventory     = "inventory"
	TypeGetPlayerData = "get_player_data"
	TypePlayerData    = "player_data"

	TypeConnected    = "connected"
	TypePlayerJoined = "player_joined"
	TypePlayerLeft   = "player_left"

	TypeError = "error"
	TypePing  = "ping"
	TypePong  = "pong"
)

var (
	ErrEmptyType   = errors.New("envelope: empty type")
	ErrUnknownType = errors.New("envelope: unknown type")
)

type Envelope struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func New(msgType string, payload any) (Envelope, error) {
	if msgType == "" {
		return Envelope{}, ErrEmptyType
	}
	env := Envelope{
		ID:        uuid.NewString(),
		Type:      msgType,
		Timestamp: time.Now().UTC(),
	}
	if payload == nil {
		return env, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		env.Payload = raw
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = data
	return env, nil
}

func Encode(env Envelope) ([]byte, error) {
	if env.Type == "" {
		return nil, ErrEmptyType
	}
	return json.Marshal(env)
}

// Build is New followed by Encode.
func Build(msgType string, payload any) ([]byte, error) {
	env, err := New(msgType, payload)
	if err != nil {
		return nil, err
	}
	return Encode(env)
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, ErrEmptyType
	}
	return env, nil
}

// Bind unmarshals the payload into v. An absent payload is an error.
func (e Envelope) Bind(v any) error {
	if len(e.Payload) == 0 {
		return errors.New("envelope: missing payload")
	}
	return json.Unmarshal(e.Payload, v)
}
