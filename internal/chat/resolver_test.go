package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/shadow/chat-server/internal/storage"
)

func newTestResolver(t *testing.T) (*Resolver, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	return NewResolver(store), store
}

func mustCreateUser(t *testing.T, store *storage.MemoryStore, username string) *storage.User {
	t.Helper()
	u, err := store.CreateUser(context.Background(), username, "hash", "SHADOW2024")
	if err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", username, err)
	}
	return u
}

func TestFindOrCreateDirect(t *testing.T) {
	r, store := newTestResolver(t)
	ctx := context.Background()

	alice := mustCreateUser(t, store, "alice")
	bob := mustCreateUser(t, store, "bob")

	first, err := r.FindOrCreateDirect(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("FindOrCreateDirect failed: %v", err)
	}
	if first.IsGroup {
		t.Error("direct chat created as group")
	}

	members, err := r.MembersOf(ctx, first.ID)
	if err != nil {
		t.Fatalf("MembersOf failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if members[0].ID != alice.ID || members[1].ID != bob.ID {
		t.Errorf("expected members [alice, bob], got [%s, %s]", members[0].Username, members[1].Username)
	}

	// Repeat calls return the same chat, from either side.
	again, err := r.FindOrCreateDirect(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("second FindOrCreateDirect failed: %v", err)
	}
	if again.ID != first.ID {
		t.Error("repeat call created a second direct chat")
	}

	reversed, err := r.FindOrCreateDirect(ctx, bob.ID, alice.ID)
	if err != nil {
		t.Fatalf("reversed FindOrCreateDirect failed: %v", err)
	}
	if reversed.ID != first.ID {
		t.Error("reversed call created a second direct chat")
	}
}

func TestFindOrCreateDirectDistinctPairs(t *testing.T) {
	r, store := newTestResolver(t)
	ctx := context.Background()

	alice := mustCreateUser(t, store, "alice")
	bob := mustCreateUser(t, store, "bob")
	carol := mustCreateUser(t, store, "carol")

	ab, err := r.FindOrCreateDirect(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("FindOrCreateDirect(alice, bob) failed: %v", err)
	}
	ac, err := r.FindOrCreateDirect(ctx, alice.ID, carol.ID)
	if err != nil {
		t.Fatalf("FindOrCreateDirect(alice, carol) failed: %v", err)
	}
	if ab.ID == ac.ID {
		t.Error("different pairs resolved to the same chat")
	}
}

func TestDirectLookupIgnoresGroups(t *testing.T) {
	r, store := newTestResolver(t)
	ctx := context.Background()

	alice := mustCreateUser(t, store, "alice")
	bob := mustCreateUser(t, store, "bob")

	// A two-member group chat must not satisfy a direct-chat lookup.
	group, err := r.CreateGroup(ctx, "pair", "CODE", alice.ID)
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if err := r.Join(ctx, group.ID, bob.ID, "CODE"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	direct, err := r.FindOrCreateDirect(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("FindOrCreateDirect failed: %v", err)
	}
	if direct.ID == group.ID {
		t.Error("group chat returned as direct chat")
	}
}

func TestJoinGroupInviteCode(t *testing.T) {
	r, store := newTestResolver(t)
	ctx := context.Background()

	alice := mustCreateUser(t, store, "alice")
	bob := mustCreateUser(t, store, "bob")

	group, err := r.CreateGroup(ctx, "team", "ABCD1234", alice.ID)
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	if err := r.Join(ctx, group.ID, bob.ID, "wrong"); !errors.Is(err, ErrInvalidInviteCode) {
		t.Errorf("expected ErrInvalidInviteCode, got %v", err)
	}
	if ok, _ := r.IsMember(ctx, group.ID, bob.ID); ok {
		t.Error("rejected join still added the member")
	}

	if err := r.Join(ctx, group.ID, bob.ID, "ABCD1234"); err != nil {
		t.Fatalf("Join with correct code failed: %v", err)
	}
	if ok, _ := r.IsMember(ctx, group.ID, bob.ID); !ok {
		t.Error("expected bob to be a member after join")
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	r, store := newTestResolver(t)
	ctx := context.Background()

	alice := mustCreateUser(t, store, "alice")
	bob := mustCreateUser(t, store, "bob")

	group, err := r.CreateGroup(ctx, "team", "CODE", alice.ID)
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := r.Join(ctx, group.ID, bob.ID, "CODE"); err != nil {
			t.Fatalf("Join attempt %d failed: %v", i, err)
		}
	}

	members, err := r.MembersOf(ctx, group.ID)
	if err != nil {
		t.Fatalf("MembersOf failed: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("expected 2 members after repeated joins, got %d", len(members))
	}
}

func TestJoinUnknownChat(t *testing.T) {
	r, store := newTestResolver(t)
	ctx := context.Background()

	alice := mustCreateUser(t, store, "alice")

	if err := r.Join(ctx, "no-such-chat", alice.ID, ""); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("expected ErrChatNotFound, got %v", err)
	}
}

func TestCreateGroupAddsCreator(t *testing.T) {
	r, store := newTestResolver(t)
	ctx := context.Background()

	alice := mustCreateUser(t, store, "alice")

	group, err := r.CreateGroup(ctx, "team", "CODE", alice.ID)
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if !group.IsGroup || group.Name != "team" {
		t.Errorf("unexpected group chat: %+v", group)
	}

	ok, err := r.IsMember(ctx, group.ID, alice.ID)
	if err != nil {
		t.Fatalf("IsMember failed: %v", err)
	}
	if !ok {
		t.Error("creator is not a member of the new group")
	}
}
