// Package chat resolves chats and memberships: direct-chat deduplication,
// group creation, invite-code-gated joins, and member listing. All durable
// state lives in the storage collaborator; the resolver owns the semantics.
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/shadow/chat-server/internal/storage"
)

var (
	// ErrChatNotFound is returned for operations on an unknown chat.
	ErrChatNotFound = errors.New("chat: not found")

	// ErrInvalidInviteCode is returned when joining a group chat with the
	// wrong invite code.
	ErrInvalidInviteCode = errors.New("chat: invalid invite code")
)

// Resolver finds, creates, and populates chats.
type Resolver struct {
	store storage.Store
}

// NewResolver returns a Resolver backed by the given store.
func NewResolver(store storage.Store) *Resolver {
	return &Resolver{store: store}
}

// FindOrCreateDirect returns the existing direct chat whose membership is
// exactly {userA, userB}, creating one (members added in that order) if none
// exists. The search-then-create sequence is not transactional: two
// concurrent calls for the same pair can race to create two chats. That
// window is accepted; sequential calls are idempotent.
func (r *Resolver) FindOrCreateDirect(ctx context.Context, userA, userB string) (*storage.Chat, error) {
	chats, err := r.store.GetChatsByUserID(ctx, userA)
	if err != nil {
		return nil, fmt.Errorf("chat: direct lookup: %w", err)
	}

	for _, c := range chats {
		if c.IsGroup {
			continue
		}
		members, err := r.store.GetChatMembers(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("chat: direct membership: %w", err)
		}
		if len(members) != 2 {
			continue
		}
		hasA, hasB := false, false
		for _, m := range members {
			if m.ID == userA {
				hasA = true
			}
			if m.ID == userB {
				hasB = true
			}
		}
		if hasA && hasB {
			return c, nil
		}
	}

	created, err := r.store.CreateChat(ctx, false, "", "")
	if err != nil {
		return nil, fmt.Errorf("chat: create direct: %w", err)
	}
	if err := r.store.AddChatMember(ctx, created.ID, userA); err != nil {
		return nil, fmt.Errorf("chat: add direct member: %w", err)
	}
	if err := r.store.AddChatMember(ctx, created.ID, userB); err != nil {
		return nil, fmt.Errorf("chat: add direct member: %w", err)
	}
	return created, nil
}

// CreateGroup creates a group chat with the given name and invite code and
// adds the creator as its first member.
func (r *Resolver) CreateGroup(ctx context.Context, name, inviteCode, creatorID string) (*storage.Chat, error) {
	created, err := r.store.CreateChat(ctx, true, name, inviteCode)
	if err != nil {
		return nil, fmt.Errorf("chat: create group: %w", err)
	}
	if err := r.store.AddChatMember(ctx, created.ID, creatorID); err != nil {
		return nil, fmt.Errorf("chat: add creator: %w", err)
	}
	return created, nil
}

// Join appends the user to the chat's membership. Group chats require the
// matching invite code. Re-joining is idempotent: membership is deduped by
// (chatID, userID).
func (r *Resolver) Join(ctx context.Context, chatID, userID, inviteCode string) error {
	c, err := r.store.GetChatByID(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrChatNotFound
	}
	if err != nil {
		return fmt.Errorf("chat: join lookup: %w", err)
	}

	if c.IsGroup && c.InviteCode != inviteCode {
		return ErrInvalidInviteCode
	}

	if err := r.store.AddChatMember(ctx, chatID, userID); err != nil {
		return fmt.Errorf("chat: join: %w", err)
	}
	return nil
}

// MembersOf returns the chat's members ordered by join time.
func (r *Resolver) MembersOf(ctx context.Context, chatID string) ([]*storage.User, error) {
	members, err := r.store.GetChatMembers(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chat: members: %w", err)
	}
	return members, nil
}

// IsMember reports whether the user is currently a member of the chat.
func (r *Resolver) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	members, err := r.MembersOf(ctx, chatID)
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if m.ID == userID {
			return true, nil
		}
	}
	return false, nil
}
