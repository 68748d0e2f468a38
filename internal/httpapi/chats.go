package httpapi

import (
	"errors"
	"net/http"

	"github.com/shadow/chat-server/internal/chat"
	"github.com/shadow/chat-server/internal/storage"
)

// chatView is a chat enriched for the sidebar: members, the latest message,
// and — for direct chats — the other participant's name in place of the
// (empty) chat name.
type chatView struct {
	*storage.Chat
	Name        string           `json:"name,omitempty"`
	Members     []*storage.User  `json:"members"`
	LastMessage *storage.Message `json:"lastMessage,omitempty"`
	OtherUser   *storage.User    `json:"otherUser,omitempty"`
}

// handleListChats returns the caller's chats with members and last message.
func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)

	chats, err := s.store.GetChatsByUserID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]chatView, 0, len(chats))
	for _, c := range chats {
		members, err := s.store.GetChatMembers(r.Context(), c.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		view := chatView{Chat: c, Name: c.Name, Members: members}

		if last, err := s.store.GetLastMessage(r.Context(), c.ID); err == nil {
			view.LastMessage = last
		}

		if !c.IsGroup && len(members) == 2 {
			for _, m := range members {
				if m.ID != userID {
					view.OtherUser = m
					view.Name = m.Username
					break
				}
			}
		}

		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, views)
}

type createChatRequest struct {
	IsGroup    bool   `json:"isGroup"`
	Name       string `json:"name"`
	InviteCode string `json:"inviteCode"`
}

// handleCreateChat creates a group chat with the caller as first member.
func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.IsGroup && req.Name == "" {
		writeError(w, http.StatusBadRequest, "group chats require a name")
		return
	}

	created, err := s.resolver.CreateGroup(r.Context(), req.Name, req.InviteCode, requestUserID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, created)
}

type directChatRequest struct {
	UserID string `json:"userId"`
}

// handleDirectChat finds or creates the direct chat between the caller and
// the given user.
func (s *Server) handleDirectChat(w http.ResponseWriter, r *http.Request) {
	var req directChatRequest
	if err := decodeBody(r, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user ID required")
		return
	}

	c, err := s.resolver.FindOrCreateDirect(r.Context(), requestUserID(r), req.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type joinChatRequest struct {
	InviteCode string `json:"inviteCode"`
}

// handleJoinChat adds the caller to a chat, checking the invite code for
// group chats.
func (s *Server) handleJoinChat(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chatID")

	var req joinChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.resolver.Join(r.Context(), chatID, requestUserID(r), req.InviteCode)
	switch {
	case errors.Is(err, chat.ErrChatNotFound):
		writeError(w, http.StatusNotFound, "chat not found")
	case errors.Is(err, chat.ErrInvalidInviteCode):
		writeError(w, http.StatusForbidden, "invalid invite code")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// enrichedMessage is a message carrying its sender for history rendering.
type enrichedMessage struct {
	*storage.Message
	Sender *storage.User `json:"sender"`
}

// handleChatMessages returns the chat's most recent messages (ascending,
// capped at the default page size), each enriched with its sender.
func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chatID")

	msgs, err := s.store.GetMessagesByChatID(r.Context(), chatID, storage.DefaultMessageLimit)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Senders repeat heavily within one chat; cache per request.
	senders := make(map[string]*storage.User)
	out := make([]enrichedMessage, 0, len(msgs))
	for _, m := range msgs {
		sender, ok := senders[m.SenderID]
		if !ok {
			sender, err = s.store.GetUserByID(r.Context(), m.SenderID)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			senders[m.SenderID] = sender
		}
		out = append(out, enrichedMessage{Message: m, Sender: sender})
	}

	writeJSON(w, http.StatusOK, out)
}
