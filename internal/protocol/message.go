// Package protocol defines the wire envelope exchanged over document
// WebSocket connections and the decoder that turns raw frames into
// typed messages.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType enumerates the closed set of routable frame kinds.
type MessageType string

const (
	TypeDocumentUpdate MessageType = "documentUpdate"
	TypeChatMessage    MessageType = "chatMessage"
	TypeUserPresence   MessageType = "userPresence"
)

// Presence actions carried by userPresence frames.
const (
	ActionJoin   = "join"
	ActionLeave  = "leave"
	ActionUpdate = "update"
)

// Presence statuses carried by userPresence frames.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusDND     = "dnd"
	StatusOffline = "offline"
)

var (
	ErrMalformed       = errors.New("protocol: malformed frame")
	ErrUnknownType     = errors.New("protocol: unknown message type")
	ErrMissingDocument = errors.New("protocol: missing documentId")
	ErrInvalidPayload  = errors.New("protocol: payload does not match declared type")
)

// Envelope is the raw frame shape before the payload is decoded.
type Envelope struct {
	Type       MessageType     `json:"type"`
	DocumentID string          `json:"documentId"`
	Data       json.RawMessage `json:"data"`
}

// DocumentUpdate carries a full content snapshot for a document.
type DocumentUpdate struct {
	Content string `json:"content"`
}

// ChatMessage is one chat line posted into a document room.
type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Activity describes what a user is currently doing in a document.
type Activity struct {
	Type      string    `json:"type"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}

// PresenceUpdate carries advisory presence state for one user.
type PresenceUpdate struct {
	UserID          string    `json:"userId"`
	Username        string    `json:"username"`
	Status          string    `json:"status,omitempty"`
	Action          string    `json:"action,omitempty"`
	Avatar          string    `json:"avatar,omitempty"`
	CurrentActivity *Activity `json:"currentActivity,omitempty"`
}

// Message is a decoded frame. Exactly one of the payload fields is
// non-nil, matching Type.
type Message struct {
	Type       MessageType
	DocumentID string

	Document *DocumentUpdate
	Chat     *ChatMessage
	Presence *PresenceUpdate
}

// Decode parses and validates a raw frame. It returns a fully typed
// Message or an error; there is no partially decoded result. Validation
// checks field presence only, never deeper semantics.
func Decode(raw []byte) (*Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.DocumentID == "" {
		return nil, ErrMissingDocument
	}

	msg := &Message{Type: env.Type, DocumentID: env.DocumentID}

	switch env.Type {
	case TypeDocumentUpdate:
		// Content may legitimately be empty, so presence is checked via a
		// pointer rather than the zero value.
		var d struct {
			Content *string `json:"content"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if d.Content == nil {
			return nil, fmt.Errorf("%w: documentUpdate requires content", ErrInvalidPayload)
		}
		msg.Document = &DocumentUpdate{Content: *d.Content}

	case TypeChatMessage:
		var c ChatMessage
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if c.UserID == "" || c.Username == "" || c.Message == "" {
			return nil, fmt.Errorf("%w: chatMessage requires userId, username and message", ErrInvalidPayload)
		}
		msg.Chat = &c

	case TypeUserPresence:
		var p PresenceUpdate
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if p.UserID == "" {
			return nil, fmt.Errorf("%w: userPresence requires userId", ErrInvalidPayload)
		}
		if p.Status == "" && p.Action == "" {
			return nil, fmt.Errorf("%w: userPresence requires status or action", ErrInvalidPayload)
		}
		msg.Presence = &p

	case "":
		return nil, fmt.Errorf("%w: missing type", ErrUnknownType)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	return msg, nil
}

// Encode serializes an outbound envelope once so a broadcast can reuse
// the same bytes for every recipient.
func Encode(msgType MessageType, documentID string, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Type:       msgType,
		DocumentID: documentID,
		Data:       payload,
	})
}
