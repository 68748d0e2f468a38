package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCreateUserAssignsSequentialIDs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, "alice", "hash", "code")
	if err != nil {
		t.Fatal(err)
	}
	bob, err := s.CreateUser(ctx, "bob", "hash", "code")
	if err != nil {
		t.Fatal(err)
	}

	if alice.UserID != 1 || bob.UserID != 2 {
		t.Errorf("expected numeric ids 1 and 2, got %d and %d", alice.UserID, bob.UserID)
	}
	if alice.ID == bob.ID {
		t.Error("uuid collision between users")
	}
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "alice", "hash", "code"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateUser(ctx, "alice", "hash2", "code"); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestSearchUsers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, name := range []string{"alice", "alicia", "bob"} {
		if _, err := s.CreateUser(ctx, name, "hash", "code"); err != nil {
			t.Fatal(err)
		}
	}

	// Case-insensitive substring match on username.
	found, err := s.SearchUsers(ctx, "ALI", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 matches for ALI, got %d", len(found))
	}
	if found[0].Username != "alice" || found[1].Username != "alicia" {
		t.Errorf("expected [alice, alicia] ordered by numeric id, got [%s, %s]",
			found[0].Username, found[1].Username)
	}

	// Numeric id match.
	found, err = s.SearchUsers(ctx, "3", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].Username != "bob" {
		t.Errorf("expected bob for numeric query 3, got %v", found)
	}

	// Limit applies after ordering.
	found, err = s.SearchUsers(ctx, "ali", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].Username != "alice" {
		t.Errorf("expected [alice] with limit 1, got %v", found)
	}
}

func TestAddChatMemberDedupes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "alice", "hash", "code")
	if err != nil {
		t.Fatal(err)
	}
	c, err := s.CreateChat(ctx, true, "team", "code")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := s.AddChatMember(ctx, c.ID, u.ID); err != nil {
			t.Fatalf("AddChatMember attempt %d failed: %v", i, err)
		}
	}

	members, err := s.GetChatMembers(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 1 {
		t.Errorf("expected 1 member after repeated adds, got %d", len(members))
	}
}

func TestAddChatMemberUnknownChat(t *testing.T) {
	s := NewMemoryStore()
	if err := s.AddChatMember(context.Background(), "no-such-chat", "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMessageHistoryOrderAndLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	c, err := s.CreateChat(ctx, true, "team", "code")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		if _, err := s.CreateMessage(ctx, c.ID, "u1", fmt.Sprintf("msg-%d", i), "", ""); err != nil {
			t.Fatal(err)
		}
	}

	// Last 3 messages, ascending.
	msgs, err := s.GetMessagesByChatID(ctx, c.ID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []string{"msg-2", "msg-3", "msg-4"} {
		if msgs[i].Content != want {
			t.Errorf("position %d: expected %s, got %s", i, want, msgs[i].Content)
		}
	}

	last, err := s.GetLastMessage(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if last.Content != "msg-4" {
		t.Errorf("expected msg-4 as last message, got %s", last.Content)
	}
}

func TestGetLastMessageEmptyChat(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	c, err := s.CreateChat(ctx, false, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetLastMessage(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty chat, got %v", err)
	}
}

func TestUpdateMessageStatusTransitions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.CreateMessageStatus(ctx, "m1", "u1", StatusDelivered); err != nil {
		t.Fatal(err)
	}

	st, err := s.UpdateMessageStatus(ctx, "m1", "u1", StatusRead)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != StatusRead || st.ReadAt == nil {
		t.Fatalf("expected read with ReadAt stamped, got %+v", st)
	}
	firstReadAt := *st.ReadAt

	// read is terminal.
	st, err = s.UpdateMessageStatus(ctx, "m1", "u1", StatusRead)
	if err != nil {
		t.Fatal(err)
	}
	if !st.ReadAt.Equal(firstReadAt) {
		t.Error("repeat update moved ReadAt")
	}
	st, err = s.UpdateMessageStatus(ctx, "m1", "u1", StatusDelivered)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != StatusRead {
		t.Errorf("read record regressed to %s", st.Status)
	}

	if _, err := s.UpdateMessageStatus(ctx, "m1", "other", StatusRead); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown record, got %v", err)
	}
}

func TestGetChatsByUserID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "alice", "hash", "code")
	if err != nil {
		t.Fatal(err)
	}

	c1, _ := s.CreateChat(ctx, false, "", "")
	c2, _ := s.CreateChat(ctx, true, "team", "code")
	s.CreateChat(ctx, true, "other", "code") // alice is not a member

	if err := s.AddChatMember(ctx, c1.ID, u.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.AddChatMember(ctx, c2.ID, u.ID); err != nil {
		t.Fatal(err)
	}

	chats, err := s.GetChatsByUserID(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 2 {
		t.Errorf("expected 2 chats, got %d", len(chats))
	}
}
