// Package protocol defines the WebSocket event types and structures exchanged
// between chat clients and the server. All events are serialized as JSON and
// follow a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Event type constants
// ---------------------------------------------------------------------------

// Client -> Server event types.
const (
	TypeJoinChat    = "join_chat"
	TypeLeaveChat   = "leave_chat"
	TypeSendMessage = "send_message"
	TypeTyping      = "typing"
	TypeStopTyping  = "stop_typing"
	TypeMessageRead = "message_read"
	TypePing        = "ping"
)

// Server -> Client event types.
const (
	TypeConnected            = "connected"
	TypeNewMessage           = "new_message"
	TypeUserOnline           = "user_online"
	TypeUserOffline          = "user_offline"
	TypeUserTyping           = "user_typing"
	TypeUserStopTyping       = "user_stop_typing"
	TypeMessageStatusUpdated = "message_status_updated"
	TypeError                = "error"
	TypePong                 = "pong"
)

// Error codes carried by ErrorMsg.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeValidation      = "validation"
	CodeRateLimited     = "rate_limited"
	CodeUpstream        = "upstream"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the event type and the raw JSON payload for deferred parsing
// into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server event structs
// ---------------------------------------------------------------------------

// JoinChatMsg subscribes the connection to a chat's broadcast room.
type JoinChatMsg struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id"`
}

// LeaveChatMsg unsubscribes the connection from a chat's broadcast room.
type LeaveChatMsg struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id"`
}

// SendMessageMsg carries a new message for a chat. FileURL and FileType are
// set when the message carries an uploaded attachment.
type SendMessageMsg struct {
	Type     string `json:"type"`
	ChatID   string `json:"chat_id"`
	Content  string `json:"content"`
	FileURL  string `json:"file_url,omitempty"`
	FileType string `json:"file_type,omitempty"`
}

// TypingMsg signals that the client started typing in a chat.
type TypingMsg struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id"`
}

// StopTypingMsg signals that the client stopped typing in a chat.
type StopTypingMsg struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id"`
}

// MessageReadMsg acknowledges that the client has read a message.
type MessageReadMsg struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client event structs
// ---------------------------------------------------------------------------

// UserRef identifies a user in outbound events without exposing credentials.
type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	UserID   int    `json:"userId"`
}

// ConnectedMsg is sent once after a successful authenticated handshake.
type ConnectedMsg struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// NewMessageMsg is the enriched message broadcast to every connection
// subscribed to the chat's room, the sender included.
type NewMessageMsg struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	FileURL   string    `json:"file_url,omitempty"`
	FileType  string    `json:"file_type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Sender    UserRef   `json:"sender"`
}

// UserOnlineMsg announces that a user has come online.
type UserOnlineMsg struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// UserOfflineMsg announces that a user has gone offline.
type UserOfflineMsg struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// UserTypingMsg relays a typing indicator to the other room subscribers.
type UserTypingMsg struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}

// UserStopTypingMsg relays the end of a typing indicator.
type UserStopTypingMsg struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}

// MessageStatusUpdatedMsg announces a per-recipient status transition.
type MessageStatusUpdatedMsg struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
}

// ErrorMsg is sent by the server to communicate an error condition. It is
// never fatal to an established connection.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientEvent parses raw WebSocket bytes into a typed client event.
// It returns the event type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only event types.
func ParseClientEvent(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse event: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeJoinChat:
		var m JoinChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeaveChat:
		var m LeaveChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendMessage:
		var m SendMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeStopTyping:
		var m StopTypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessageRead:
		var m MessageReadMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client event type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerEvent creates a JSON-encoded byte slice for a server event. The
// msgType is injected into the payload under the "type" key. The payload
// should be one of the *Msg structs above; this function marshals it to JSON,
// injects the type field, and returns the final bytes.
func NewServerEvent(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server event: %w", err)
	}
	return out, nil
}
