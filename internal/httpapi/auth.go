package httpapi

import (
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/shadow/chat-server/internal/storage"
)

type registerRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	InviteCode string `json:"inviteCode"`
}

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	InviteCode string `json:"inviteCode"`
}

type authResponse struct {
	User         *storage.User `json:"user"`
	SessionToken string        `json:"sessionToken"`
}

// handleRegister creates an account and mints a session token. Registration
// is gated by the server-wide invite code.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Username) < 3 {
		writeError(w, http.StatusBadRequest, "username must be at least 3 characters")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}
	if req.InviteCode != s.registrationCode {
		writeError(w, http.StatusBadRequest, "invalid invite code")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user, err := s.store.CreateUser(r.Context(), req.Username, string(hash), req.InviteCode)
	if errors.Is(err, storage.ErrDuplicate) {
		writeError(w, http.StatusBadRequest, "username already exists")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	token := s.sessions.Create(user.ID)
	writeJSON(w, http.StatusOK, authResponse{User: user, SessionToken: token})
}

// handleLogin verifies invite code and password and mints a session token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.InviteCode != s.registrationCode {
		writeError(w, http.StatusUnauthorized, "invalid credentials or invite code")
		return
	}

	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid credentials or invite code")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials or invite code")
		return
	}

	token := s.sessions.Create(user.ID)
	writeJSON(w, http.StatusOK, authResponse{User: user, SessionToken: token})
}

// handleLogout revokes the presented session token. Idempotent.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Revoke(requestToken(r))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleMe returns the authenticated user's own record.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUserByID(r.Context(), requestUserID(r))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleSearchUsers finds users by username substring or numeric id prefix.
func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusOK, []*storage.User{})
		return
	}

	users, err := s.store.SearchUsers(r.Context(), query, 10)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if users == nil {
		users = []*storage.User{}
	}
	writeJSON(w, http.StatusOK, users)
}
