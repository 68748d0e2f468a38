// Package storage defines the persistence boundary for users, chats,
// memberships, messages, and per-recipient message status records. Two
// implementations exist: a Postgres-backed store for production and an
// in-memory store for tests and single-node development.
package storage

import (
	"context"
	"errors"
	"time"
)

// Message status values. A status record is created in StatusDelivered for
// every chat member except the sender at message creation time, and may
// transition to StatusRead exactly once.
const (
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// DefaultMessageLimit is the page size for chat history queries.
const DefaultMessageLimit = 50

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicate is returned when a uniqueness constraint is violated,
	// e.g. registering an already-taken username.
	ErrDuplicate = errors.New("storage: duplicate")
)

// User is an account identity. PasswordHash and InviteCode never leave the
// server.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	InviteCode   string    `json:"-"`
	UserID       int       `json:"userId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Chat is a direct (two-member) or group conversation. Immutable after
// creation except for membership.
type Chat struct {
	ID         string    `json:"id"`
	IsGroup    bool      `json:"isGroup"`
	Name       string    `json:"name,omitempty"`
	InviteCode string    `json:"inviteCode,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Message is a single chat message, immutable once created.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	FileURL   string    `json:"fileUrl,omitempty"`
	FileType  string    `json:"fileType,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageStatus tracks delivery state for one (message, recipient) pair.
// ReadAt is set exactly once, on the delivered -> read transition.
type MessageStatus struct {
	ID        string     `json:"id"`
	MessageID string     `json:"messageId"`
	UserID    string     `json:"userId"`
	Status    string     `json:"status"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
}

// Store is the persistence interface consumed by the messaging core and the
// HTTP API. Implementations must be safe for concurrent use. Errors other
// than ErrNotFound and ErrDuplicate are opaque upstream failures and are
// propagated without inspection.
type Store interface {
	// User operations.
	CreateUser(ctx context.Context, username, passwordHash, inviteCode string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]*User, error)

	// Chat operations.
	CreateChat(ctx context.Context, isGroup bool, name, inviteCode string) (*Chat, error)
	GetChatByID(ctx context.Context, chatID string) (*Chat, error)
	GetChatsByUserID(ctx context.Context, userID string) ([]*Chat, error)
	AddChatMember(ctx context.Context, chatID, userID string) error
	GetChatMembers(ctx context.Context, chatID string) ([]*User, error)

	// Message operations.
	CreateMessage(ctx context.Context, chatID, senderID, content, fileURL, fileType string) (*Message, error)
	GetMessagesByChatID(ctx context.Context, chatID string, limit int) ([]*Message, error)
	GetLastMessage(ctx context.Context, chatID string) (*Message, error)
	CreateMessageStatus(ctx context.Context, messageID, userID, status string) (*MessageStatus, error)
	// UpdateMessageStatus transitions the (messageID, userID) record to the
	// given status. The delivered -> read transition stamps ReadAt once;
	// updating an already-read record is a no-op returning the existing
	// record. Returns ErrNotFound if no record exists for that pair.
	UpdateMessageStatus(ctx context.Context, messageID, userID, status string) (*MessageStatus, error)
	GetMessageStatus(ctx context.Context, messageID, userID string) (*MessageStatus, error)

	Close() error
}
