package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Message types understood on the wire.
const (
	TypeAuthRequest        = "authentication.request"
	TypeAuthAccept         = "authentication.accept"
	TypeAuthDeny           = "authentication.deny"
	TypeKick               = "kick"
	TypeOp                 = "op"
	TypeDeop               = "deop"
	TypeChatMessage        = "chat.message"
	TypePlayerJoin         = "player.join"
	TypePlayerLeave        = "player.leave"
	TypePlayerDeath        = "player.death"
	TypeChannelDescription = "channel.description.update"
	TypeConfigUpdate       = "config.update"
	TypeHeartbeat          = "heartbeat"
)

var (
	// ErrMissingType is returned by Decode for payloads without a string type field.
	ErrMissingType = errors.New("bridge: message has no type")
	// ErrMalformedMessage is returned by Decode when the payload is not a JSON object.
	ErrMalformedMessage = errors.New("bridge: malformed message")
)

// jsonMarshal is swapped out in tests to exercise encode failures.
var jsonMarshal = json.Marshal

// Message is a flat wire object. Every message carries a "type" key.
type Message map[string]any

// Decode parses an inbound text frame. Numbers are kept as json.Number so
// values owned by the control plane are pushed back unchanged.
func Decode(data []byte) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var msg Message
	if err := dec.Decode(&msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformedMessage)
	}
	if msg == nil {
		return nil, ErrMalformedMessage
	}
	if t, ok := msg["type"].(string); !ok || t == "" {
		return nil, ErrMissingType
	}
	return msg, nil
}

// Encode serializes an outbound message.
func Encode(msg Message) ([]byte, error) {
	if msg.Type() == "" {
		return nil, ErrMissingType
	}
	data, err := jsonMarshal(map[string]any(msg))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	return data, nil
}

// Type returns the message type or "" when absent.
func (m Message) Type() string {
	t, _ := m["type"].(string)
	return t
}

// String returns the string value stored under key.
func (m Message) String(key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

// StringOr returns the string under key, or def when it is absent or not a string.
func (m Message) StringOr(key, def string) string {
	if v, ok := m.String(key); ok {
		return v
	}
	return def
}

// Bool returns the boolean value stored under key.
func (m Message) Bool(key string) (bool, bool) {
	v, ok := m[key].(bool)
	return v, ok
}

// UUID parses the identity stored under key.
func (m Message) UUID(key string) (uuid.UUID, error) {
	raw, ok := m.String(key)
	if !ok {
		return uuid.Nil, fmt.Errorf("%s: missing %q", m.Type(), key)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: invalid %q: %w", m.Type(), key, err)
	}
	return id, nil
}

// Object returns the nested object stored under key.
func (m Message) Object(key string) (map[string]any, bool) {
	v, ok := m[key].(map[string]any)
	return v, ok
}

func NewAuthenticationRequest(id uuid.UUID) Message {
	return Message{"type": TypeAuthRequest, "uuid": id.String()}
}

func NewChatMessage(id uuid.UUID, sender, text string) Message {
	return Message{"type": TypeChatMessage, "uuid": id.String(), "sender": sender, "message": text}
}

func NewPlayerJoin(p Player) Message {
	return Message{"type": TypePlayerJoin, "uuid": p.ID.String(), "player": p.Name}
}

func NewPlayerLeave(p Player) Message {
	return Message{"type": TypePlayerLeave, "uuid": p.ID.String(), "player": p.Name}
}

func NewPlayerDeath(p Player, reason, text string) Message {
	return Message{
		"type":    TypePlayerDeath,
		"uuid":    p.ID.String(),
		"player":  p.Name,
		"reason":  reason,
		"message": text,
	}
}

func NewChannelDescriptionUpdate(text string) Message {
	return Message{"type": TypeChannelDescription, "text": text}
}

// NewConfigUpdate wraps a full remote configuration for upstream delivery.
func NewConfigUpdate(cfg *RemoteConfig) Message {
	return Message{"type": TypeConfigUpdate, "config": cfg.Raw()}
}
