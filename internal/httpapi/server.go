// Package httpapi exposes the REST surface around the messaging core:
// registration and login (minting session tokens for the WebSocket
// handshake), user search, chat listing and creation, message history, and
// file uploads.
package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/shadow/chat-server/internal/chat"
	"github.com/shadow/chat-server/internal/session"
	"github.com/shadow/chat-server/internal/storage"
)

// Server holds the handler dependencies.
type Server struct {
	store            storage.Store
	sessions         *session.Registry
	resolver         *chat.Resolver
	registrationCode string // server-wide code required to register or log in
	uploadDir        string
}

// NewServer creates the REST handler set.
func NewServer(store storage.Store, sessions *session.Registry, resolver *chat.Resolver, registrationCode, uploadDir string) *Server {
	return &Server{
		store:            store,
		sessions:         sessions,
		resolver:         resolver,
		registrationCode: registrationCode,
		uploadDir:        uploadDir,
	}
}

// Register attaches all API routes to the given mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.authenticated(s.handleLogout))

	mux.HandleFunc("GET /api/users/me", s.authenticated(s.handleMe))
	mux.HandleFunc("GET /api/users/search", s.authenticated(s.handleSearchUsers))

	mux.HandleFunc("GET /api/chats", s.authenticated(s.handleListChats))
	mux.HandleFunc("POST /api/chats", s.authenticated(s.handleCreateChat))
	mux.HandleFunc("POST /api/chats/direct", s.authenticated(s.handleDirectChat))
	mux.HandleFunc("POST /api/chats/{chatID}/join", s.authenticated(s.handleJoinChat))
	mux.HandleFunc("GET /api/chats/{chatID}/messages", s.authenticated(s.handleChatMessages))

	mux.HandleFunc("POST /api/upload", s.authenticated(s.handleUpload))
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploadDir))))
}

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxToken
)

// authenticated wraps a handler with bearer-token session validation.
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "no token provided")
			return
		}
		token := strings.TrimPrefix(h, "Bearer ")

		userID, err := s.sessions.Resolve(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserID, userID)
		ctx = context.WithValue(ctx, ctxToken, token)
		next(w, r.WithContext(ctx))
	}
}

func requestUserID(r *http.Request) string {
	userID, _ := r.Context().Value(ctxUserID).(string)
	return userID
}

func requestToken(r *http.Request) string {
	token, _ := r.Context().Value(ctxToken).(string)
	return token
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httpapi: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
