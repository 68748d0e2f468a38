package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shadow/chat-server/internal/chat"
	"github.com/shadow/chat-server/internal/session"
	"github.com/shadow/chat-server/internal/storage"
)

const testRegistrationCode = "SHADOW2024"

func newTestMux(t *testing.T) (*http.ServeMux, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	sessions := session.NewRegistry()
	resolver := chat.NewResolver(store)

	srv := NewServer(store, sessions, resolver, testRegistrationCode, t.TempDir())
	mux := http.NewServeMux()
	srv.Register(mux)
	return mux, store
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
}

// register creates an account through the API and returns its session token
// and user id.
func register(t *testing.T, mux *http.ServeMux, username string) (token, userID string) {
	t.Helper()

	rec := doJSON(t, mux, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username":   username,
		"password":   "secret123",
		"inviteCode": testRegistrationCode,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("register %s: status %d, body %s", username, rec.Code, rec.Body.String())
	}

	var resp struct {
		User         struct{ ID string } `json:"user"`
		SessionToken string              `json:"sessionToken"`
	}
	decodeInto(t, rec, &resp)
	return resp.SessionToken, resp.User.ID
}

func TestRegisterLoginLogout(t *testing.T) {
	mux, _ := newTestMux(t)

	token, _ := register(t, mux, "alice")

	// The fresh token authenticates.
	rec := doJSON(t, mux, http.MethodGet, "/api/users/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me with fresh token: status %d", rec.Code)
	}
	var me storage.User
	decodeInto(t, rec, &me)
	if me.Username != "alice" {
		t.Errorf("expected alice, got %s", me.Username)
	}

	// Login mints a second, independent token.
	rec = doJSON(t, mux, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username":   "alice",
		"password":   "secret123",
		"inviteCode": testRegistrationCode,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d, body %s", rec.Code, rec.Body.String())
	}
	var login struct {
		SessionToken string `json:"sessionToken"`
	}
	decodeInto(t, rec, &login)

	// Logout revokes only the presented token.
	rec = doJSON(t, mux, http.MethodPost, "/api/auth/logout", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: status %d", rec.Code)
	}
	if rec := doJSON(t, mux, http.MethodGet, "/api/users/me", token, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("revoked token still accepted: status %d", rec.Code)
	}
	if rec := doJSON(t, mux, http.MethodGet, "/api/users/me", login.SessionToken, nil); rec.Code != http.StatusOK {
		t.Errorf("unrelated session revoked too: status %d", rec.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	mux, _ := newTestMux(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"short username", map[string]string{"username": "ab", "password": "secret123", "inviteCode": testRegistrationCode}},
		{"short password", map[string]string{"username": "alice", "password": "abc", "inviteCode": testRegistrationCode}},
		{"wrong invite code", map[string]string{"username": "alice", "password": "secret123", "inviteCode": "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, mux, http.MethodPost, "/api/auth/register", "", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	mux, _ := newTestMux(t)

	register(t, mux, "alice")
	rec := doJSON(t, mux, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username":   "alice",
		"password":   "secret123",
		"inviteCode": testRegistrationCode,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for duplicate username, got %d", rec.Code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	mux, _ := newTestMux(t)
	register(t, mux, "alice")

	rec := doJSON(t, mux, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username":   "alice",
		"password":   "wrong-password",
		"inviteCode": testRegistrationCode,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	mux, _ := newTestMux(t)

	for _, path := range []string{"/api/users/me", "/api/chats"} {
		if rec := doJSON(t, mux, http.MethodGet, path, "", nil); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: expected 401, got %d", path, rec.Code)
		}
	}
	if rec := doJSON(t, mux, http.MethodGet, "/api/users/me", "bogus-token", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("bogus token: expected 401, got %d", rec.Code)
	}
}

func TestDirectChatFlow(t *testing.T) {
	mux, _ := newTestMux(t)

	aliceToken, _ := register(t, mux, "alice")
	bobToken, bobID := register(t, mux, "bob")

	rec := doJSON(t, mux, http.MethodPost, "/api/chats/direct", aliceToken, map[string]string{"userId": bobID})
	if rec.Code != http.StatusOK {
		t.Fatalf("direct chat: status %d, body %s", rec.Code, rec.Body.String())
	}
	var created storage.Chat
	decodeInto(t, rec, &created)

	// Same pair resolves to the same chat.
	rec = doJSON(t, mux, http.MethodPost, "/api/chats/direct", aliceToken, map[string]string{"userId": bobID})
	var again storage.Chat
	decodeInto(t, rec, &again)
	if again.ID != created.ID {
		t.Error("repeat direct-chat request created a second chat")
	}

	// The chat shows up for bob under alice's name.
	rec = doJSON(t, mux, http.MethodGet, "/api/chats", bobToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list chats: status %d", rec.Code)
	}
	var chats []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	decodeInto(t, rec, &chats)
	if len(chats) != 1 || chats[0].ID != created.ID {
		t.Fatalf("unexpected chat list: %+v", chats)
	}
	if chats[0].Name != "alice" {
		t.Errorf("direct chat shown as %q for bob, want alice", chats[0].Name)
	}
}

func TestGroupChatJoin(t *testing.T) {
	mux, _ := newTestMux(t)

	aliceToken, _ := register(t, mux, "alice")
	bobToken, _ := register(t, mux, "bob")

	rec := doJSON(t, mux, http.MethodPost, "/api/chats", aliceToken, map[string]interface{}{
		"isGroup":    true,
		"name":       "team",
		"inviteCode": "ABCD1234",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create group: status %d, body %s", rec.Code, rec.Body.String())
	}
	var group storage.Chat
	decodeInto(t, rec, &group)

	joinPath := fmt.Sprintf("/api/chats/%s/join", group.ID)
	if rec := doJSON(t, mux, http.MethodPost, joinPath, bobToken, map[string]string{"inviteCode": "wrong"}); rec.Code != http.StatusForbidden {
		t.Errorf("wrong invite code: expected 403, got %d", rec.Code)
	}
	if rec := doJSON(t, mux, http.MethodPost, joinPath, bobToken, map[string]string{"inviteCode": "ABCD1234"}); rec.Code != http.StatusOK {
		t.Errorf("join: expected 200, got %d", rec.Code)
	}
	if rec := doJSON(t, mux, http.MethodPost, "/api/chats/no-such-chat/join", bobToken, map[string]string{}); rec.Code != http.StatusNotFound {
		t.Errorf("unknown chat: expected 404, got %d", rec.Code)
	}
}

func TestGroupChatRequiresName(t *testing.T) {
	mux, _ := newTestMux(t)
	token, _ := register(t, mux, "alice")

	rec := doJSON(t, mux, http.MethodPost, "/api/chats", token, map[string]interface{}{"isGroup": true})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unnamed group, got %d", rec.Code)
	}
}

func TestSearchUsers(t *testing.T) {
	mux, _ := newTestMux(t)

	token, _ := register(t, mux, "alice")
	register(t, mux, "alicia")
	register(t, mux, "bob")

	rec := doJSON(t, mux, http.MethodGet, "/api/users/search?q=ali", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: status %d", rec.Code)
	}
	var users []storage.User
	decodeInto(t, rec, &users)
	if len(users) != 2 {
		t.Errorf("expected 2 matches, got %d", len(users))
	}
	for _, u := range users {
		if u.PasswordHash != "" {
			t.Error("password hash leaked in search response")
		}
	}

	// Empty query returns an empty list, not an error.
	rec = doJSON(t, mux, http.MethodGet, "/api/users/search", token, nil)
	decodeInto(t, rec, &users)
	if len(users) != 0 {
		t.Errorf("expected empty result for empty query, got %d", len(users))
	}
}

func TestChatMessagesEndpoint(t *testing.T) {
	mux, store := newTestMux(t)

	aliceToken, aliceID := register(t, mux, "alice")
	_, bobID := register(t, mux, "bob")

	rec := doJSON(t, mux, http.MethodPost, "/api/chats/direct", aliceToken, map[string]string{"userId": bobID})
	var c storage.Chat
	decodeInto(t, rec, &c)

	for i := 0; i < 3; i++ {
		if _, err := store.CreateMessage(context.Background(), c.ID, aliceID, fmt.Sprintf("msg-%d", i), "", ""); err != nil {
			t.Fatal(err)
		}
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/chats/"+c.ID+"/messages", aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("messages: status %d", rec.Code)
	}
	var msgs []struct {
		Content string `json:"content"`
		Sender  struct {
			Username string `json:"username"`
		} `json:"sender"`
	}
	decodeInto(t, rec, &msgs)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "msg-0" || msgs[2].Content != "msg-2" {
		t.Errorf("messages out of order: %+v", msgs)
	}
	if msgs[0].Sender.Username != "alice" {
		t.Errorf("message not sender-enriched: %+v", msgs[0])
	}

	if rec := doJSON(t, mux, http.MethodGet, "/api/chats/no-such-chat/messages", aliceToken, nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown chat: expected 404, got %d", rec.Code)
	}
}
