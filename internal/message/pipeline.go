// Package message implements the send and read-receipt pipeline: a new
// message is validated, persisted, given one delivered status record per
// recipient, and returned sender-enriched for immediate broadcast. Read
// acknowledgements drive the delivered -> read transition.
package message

import (
	"context"
	"errors"
	"fmt"

	"github.com/shadow/chat-server/internal/chat"
	"github.com/shadow/chat-server/internal/storage"
)

// ErrNotMember is returned when the sender is not a member of the target chat.
var ErrNotMember = errors.New("message: sender is not a chat member")

// EnrichedMessage is a persisted message carrying its full sender identity,
// ready for broadcast.
type EnrichedMessage struct {
	storage.Message
	Sender *storage.User `json:"sender"`
}

// StatusUpdate describes one recipient's status transition for broadcast.
type StatusUpdate struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
}

// Pipeline validates, persists, and tracks messages.
type Pipeline struct {
	store storage.Store
}

// NewPipeline returns a Pipeline backed by the given store.
func NewPipeline(store storage.Store) *Pipeline {
	return &Pipeline{store: store}
}

// Send persists a new message from senderID in chatID and creates a
// delivered status record for every chat member except the sender. The
// sender must be a current member of the chat. Status records capture the
// membership at creation time; later joiners get no rows for this message.
func (p *Pipeline) Send(ctx context.Context, chatID, senderID, content, fileURL, fileType string) (*EnrichedMessage, error) {
	if err := chat.ValidateMessage(content, fileURL); err != nil {
		return nil, err
	}

	members, err := p.store.GetChatMembers(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, chat.ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("message: load members: %w", err)
	}

	sender := (*storage.User)(nil)
	for _, m := range members {
		if m.ID == senderID {
			sender = m
			break
		}
	}
	if sender == nil {
		return nil, ErrNotMember
	}

	msg, err := p.store.CreateMessage(ctx, chatID, senderID, content, fileURL, fileType)
	if err != nil {
		return nil, fmt.Errorf("message: persist: %w", err)
	}

	for _, m := range members {
		if m.ID == senderID {
			continue
		}
		if _, err := p.store.CreateMessageStatus(ctx, msg.ID, m.ID, storage.StatusDelivered); err != nil {
			return nil, fmt.Errorf("message: status record for %s: %w", m.ID, err)
		}
	}

	return &EnrichedMessage{Message: *msg, Sender: sender}, nil
}

// MarkRead transitions the reader's status record for the message from
// delivered to read, stamping ReadAt exactly once. A repeat acknowledgement
// is a no-op that still reports the read state; an unknown record fails with
// storage.ErrNotFound.
func (p *Pipeline) MarkRead(ctx context.Context, messageID, readerID string) (*StatusUpdate, error) {
	st, err := p.store.UpdateMessageStatus(ctx, messageID, readerID, storage.StatusRead)
	if err != nil {
		return nil, fmt.Errorf("message: mark read: %w", err)
	}
	return &StatusUpdate{MessageID: st.MessageID, UserID: st.UserID, Status: st.Status}, nil
}
