package storage

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation guarded by a single
// mutex. It backs unit tests and the zero-dependency development mode.
type MemoryStore struct {
	mu sync.RWMutex

	users      map[string]*User
	chats      map[string]*Chat
	members    map[string][]string // chatID -> userIDs, insertion-ordered
	messages   map[string][]*Message
	statuses   map[string]*MessageStatus // messageID + "/" + userID
	nextUserID int

	now func() time.Time
}

// NewMemoryStore returns an empty MemoryStore ready for use.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*User),
		chats:    make(map[string]*Chat),
		members:  make(map[string][]string),
		messages: make(map[string][]*Message),
		statuses: make(map[string]*MessageStatus),
		now:      time.Now,
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, username, passwordHash, inviteCode string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			return nil, ErrDuplicate
		}
	}

	s.nextUserID++
	u := &User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		InviteCode:   inviteCode,
		UserID:       s.nextUserID,
		CreatedAt:    s.now(),
	}
	s.users[u.ID] = u
	return cloneUser(u), nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *MemoryStore) SearchUsers(ctx context.Context, query string, limit int) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	var out []*User
	for _, u := range s.users {
		if strings.Contains(strings.ToLower(u.Username), q) ||
			strings.Contains(strconv.Itoa(u.UserID), query) {
			out = append(out, cloneUser(u))
		}
	}

	// Deterministic order for pagination and tests.
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CreateChat(ctx context.Context, isGroup bool, name, inviteCode string) (*Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &Chat{
		ID:         uuid.New().String(),
		IsGroup:    isGroup,
		Name:       name,
		InviteCode: inviteCode,
		CreatedAt:  s.now(),
	}
	s.chats[c.ID] = c
	s.members[c.ID] = nil
	return cloneChat(c), nil
}

func (s *MemoryStore) GetChatByID(ctx context.Context, chatID string) (*Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneChat(c), nil
}

func (s *MemoryStore) GetChatsByUserID(ctx context.Context, userID string) ([]*Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Chat
	for chatID, members := range s.members {
		for _, m := range members {
			if m == userID {
				out = append(out, cloneChat(s.chats[chatID]))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) AddChatMember(ctx context.Context, chatID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chatID]; !ok {
		return ErrNotFound
	}
	for _, m := range s.members[chatID] {
		if m == userID {
			return nil // membership is deduped by (chatID, userID)
		}
	}
	s.members[chatID] = append(s.members[chatID], userID)
	return nil
}

func (s *MemoryStore) GetChatMembers(ctx context.Context, chatID string) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.chats[chatID]; !ok {
		return nil, ErrNotFound
	}
	members := make([]*User, 0, len(s.members[chatID]))
	for _, id := range s.members[chatID] {
		if u, ok := s.users[id]; ok {
			members = append(members, cloneUser(u))
		}
	}
	return members, nil
}

func (s *MemoryStore) CreateMessage(ctx context.Context, chatID, senderID, content, fileURL, fileType string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chatID]; !ok {
		return nil, ErrNotFound
	}
	m := &Message{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		FileURL:   fileURL,
		FileType:  fileType,
		CreatedAt: s.now(),
	}
	s.messages[chatID] = append(s.messages[chatID], m)
	return cloneMessage(m), nil
}

func (s *MemoryStore) GetMessagesByChatID(ctx context.Context, chatID string, limit int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.chats[chatID]; !ok {
		return nil, ErrNotFound
	}
	msgs := s.messages[chatID]
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	// Last `limit` messages in ascending creation order.
	start := 0
	if len(msgs) > limit {
		start = len(msgs) - limit
	}
	out := make([]*Message, 0, len(msgs)-start)
	for _, m := range msgs[start:] {
		out = append(out, cloneMessage(m))
	}
	return out, nil
}

func (s *MemoryStore) GetLastMessage(ctx context.Context, chatID string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[chatID]
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}
	return cloneMessage(msgs[len(msgs)-1]), nil
}

func (s *MemoryStore) CreateMessageStatus(ctx context.Context, messageID, userID, status string) (*MessageStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &MessageStatus{
		ID:        uuid.New().String(),
		MessageID: messageID,
		UserID:    userID,
		Status:    status,
	}
	s.statuses[statusKey(messageID, userID)] = st
	return cloneStatus(st), nil
}

func (s *MemoryStore) UpdateMessageStatus(ctx context.Context, messageID, userID, status string) (*MessageStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.statuses[statusKey(messageID, userID)]
	if !ok {
		return nil, ErrNotFound
	}
	// read is terminal: repeat updates leave the record (and ReadAt) alone.
	if st.Status != StatusRead && status == StatusRead {
		at := s.now()
		st.Status = StatusRead
		st.ReadAt = &at
	}
	return cloneStatus(st), nil
}

func (s *MemoryStore) GetMessageStatus(ctx context.Context, messageID, userID string) (*MessageStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.statuses[statusKey(messageID, userID)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneStatus(st), nil
}

func (s *MemoryStore) Close() error { return nil }

func statusKey(messageID, userID string) string {
	return messageID + "/" + userID
}

func cloneUser(u *User) *User {
	c := *u
	return &c
}

func cloneChat(c *Chat) *Chat {
	cc := *c
	return &cc
}

func cloneMessage(m *Message) *Message {
	c := *m
	return &c
}

func cloneStatus(st *MessageStatus) *MessageStatus {
	c := *st
	if st.ReadAt != nil {
		at := *st.ReadAt
		c.ReadAt = &at
	}
	return &c
}
