// Package gateway is the application core behind the WebSocket transport.
// It binds authenticated connections to the presence registry, routes the
// inbound event union (join_chat, leave_chat, send_message, typing,
// stop_typing, message_read) to the chat resolver and message pipeline, and
// fans outbound events out to room subscribers.
//
// Events from a single connection are handled in arrival order (the
// transport delivers one frame per connection at a time); events from
// different connections are processed concurrently. Every error raised while
// handling an event is converted to a single-recipient error event — it
// never terminates the connection or affects other connections.
package gateway

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shadow/chat-server/internal/chat"
	"github.com/shadow/chat-server/internal/message"
	"github.com/shadow/chat-server/internal/metrics"
	"github.com/shadow/chat-server/internal/presence"
	"github.com/shadow/chat-server/internal/protocol"
	"github.com/shadow/chat-server/internal/ratelimit"
	"github.com/shadow/chat-server/internal/storage"
)

// Sender pushes outbound frames to live connections. Implemented by the ws
// server; faked in tests.
type Sender interface {
	Send(connID string, data []byte) error
	Broadcast(data []byte)
	BroadcastExcept(exceptConnID string, data []byte)
}

// Gateway dispatches connection lifecycle and client events.
type Gateway struct {
	presence *presence.Registry
	resolver *chat.Resolver
	pipeline *message.Pipeline
	rooms    *Rooms
	sender   Sender
	limiter  *ratelimit.Limiter // optional; nil disables throttling
}

// New creates a Gateway. limiter may be nil when Redis is not configured.
func New(pres *presence.Registry, resolver *chat.Resolver, pipeline *message.Pipeline, sender Sender, limiter *ratelimit.Limiter) *Gateway {
	return &Gateway{
		presence: pres,
		resolver: resolver,
		pipeline: pipeline,
		rooms:    NewRooms(),
		sender:   sender,
		limiter:  limiter,
	}
}

// Connect binds a freshly authenticated connection: the user is registered
// in the presence registry (replacing any prior connection for the same
// user), the client receives a connected ack, and everyone else is told the
// user came online.
func (g *Gateway) Connect(connID, userID string) {
	g.presence.Bind(userID, connID)
	metrics.OnlineUsers.Set(float64(g.presence.Count()))

	if data, err := protocol.NewServerEvent(protocol.TypeConnected, protocol.ConnectedMsg{UserID: userID}); err == nil {
		if err := g.sender.Send(connID, data); err != nil {
			log.Printf("gateway: connected ack conn=%s: %v", connID, err)
		}
	}

	data, err := protocol.NewServerEvent(protocol.TypeUserOnline, protocol.UserOnlineMsg{UserID: userID})
	if err != nil {
		log.Printf("gateway: build user_online: %v", err)
		return
	}
	g.sender.BroadcastExcept(connID, data)
}

// Disconnect runs the unconditional cleanup for a closed connection: room
// subscriptions are dropped and, unless a newer connection already replaced
// this one, the user is unbound from presence and announced offline.
func (g *Gateway) Disconnect(connID string) {
	g.rooms.LeaveAll(connID)
	metrics.ActiveRooms.Set(float64(g.rooms.Count()))

	userID, ok := g.presence.Unbind(connID)
	metrics.OnlineUsers.Set(float64(g.presence.Count()))
	if !ok {
		// Stale disconnect: a later Bind for the same user superseded this
		// connection. Announcing offline here would lie about the new one.
		return
	}

	data, err := protocol.NewServerEvent(protocol.TypeUserOffline, protocol.UserOfflineMsg{UserID: userID})
	if err != nil {
		log.Printf("gateway: build user_offline: %v", err)
		return
	}
	g.sender.BroadcastExcept(connID, data)
}

// HandleEvent parses and dispatches one inbound frame from an authenticated
// connection. Malformed payloads and handler failures are answered with an
// error event to the originating connection only.
func (g *Gateway) HandleEvent(ctx context.Context, connID, userID string, data []byte) {
	msgType, msg, err := protocol.ParseClientEvent(data)
	if err != nil {
		log.Printf("gateway: parse error conn=%s: %v", connID, err)
		g.sendError(connID, protocol.CodeValidation, "invalid event format")
		return
	}

	switch m := msg.(type) {
	case protocol.JoinChatMsg:
		g.handleJoinChat(connID, m)
	case protocol.LeaveChatMsg:
		g.handleLeaveChat(connID, m)
	case protocol.SendMessageMsg:
		g.handleSendMessage(ctx, connID, userID, m)
	case protocol.TypingMsg:
		g.relayTyping(connID, userID, m.ChatID, protocol.TypeUserTyping)
	case protocol.StopTypingMsg:
		g.relayTyping(connID, userID, m.ChatID, protocol.TypeUserStopTyping)
	case protocol.MessageReadMsg:
		g.handleMessageRead(ctx, connID, userID, m)
	case protocol.PingMsg:
		g.sendPong(connID)
	default:
		log.Printf("gateway: unsupported event type=%q conn=%s", msgType, connID)
		g.sendError(connID, protocol.CodeValidation, "unsupported event type")
	}
}

// handleJoinChat subscribes the connection to the chat's room. The room
// layer is advisory: chat membership is not checked here, matching the
// trust-all-authenticated-users model of the subscription layer.
func (g *Gateway) handleJoinChat(connID string, m protocol.JoinChatMsg) {
	if m.ChatID == "" {
		g.sendError(connID, protocol.CodeValidation, "chat_id is required")
		return
	}
	g.rooms.Join(m.ChatID, connID)
	metrics.ActiveRooms.Set(float64(g.rooms.Count()))
	log.Printf("gateway: conn=%s joined room chat=%s", connID, m.ChatID)
}

func (g *Gateway) handleLeaveChat(connID string, m protocol.LeaveChatMsg) {
	g.rooms.Leave(m.ChatID, connID)
	metrics.ActiveRooms.Set(float64(g.rooms.Count()))
}

// handleSendMessage drives the message pipeline and fans the enriched
// message out to every room subscriber, the sender included, so the sender's
// own client observes the same delivery event as everyone else.
func (g *Gateway) handleSendMessage(ctx context.Context, connID, userID string, m protocol.SendMessageMsg) {
	start := time.Now()

	if m.ChatID == "" {
		g.sendError(connID, protocol.CodeValidation, "chat_id is required")
		return
	}

	if g.limiter != nil {
		allowed, _ := g.limiter.Allow(ctx, userID, ratelimit.RuleMessage)
		if !allowed {
			metrics.MessagesTotal.WithLabelValues("rejected").Inc()
			g.sendError(connID, protocol.CodeRateLimited, "too many messages, slow down")
			return
		}
	}

	enriched, err := g.pipeline.Send(ctx, m.ChatID, userID, m.Content, m.FileURL, m.FileType)
	if err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		g.sendFailure(connID, err)
		return
	}

	data, err := protocol.NewServerEvent(protocol.TypeNewMessage, protocol.NewMessageMsg{
		ID:        enriched.ID,
		ChatID:    enriched.ChatID,
		SenderID:  enriched.SenderID,
		Content:   enriched.Content,
		FileURL:   enriched.FileURL,
		FileType:  enriched.FileType,
		CreatedAt: enriched.CreatedAt,
		Sender: protocol.UserRef{
			ID:       enriched.Sender.ID,
			Username: enriched.Sender.Username,
			UserID:   enriched.Sender.UserID,
		},
	})
	if err != nil {
		log.Printf("gateway: build new_message: %v", err)
		return
	}

	for _, subscriber := range g.rooms.Subscribers(m.ChatID) {
		if err := g.sender.Send(subscriber, data); err != nil {
			// Best-effort fan-out: a subscriber that vanished mid-broadcast
			// simply misses the event and re-fetches history on reconnect.
			log.Printf("gateway: fan-out chat=%s conn=%s: %v", m.ChatID, subscriber, err)
		}
	}

	metrics.MessagesTotal.WithLabelValues("sent").Inc()
	metrics.SendLatency.Observe(time.Since(start).Seconds())
}

// relayTyping broadcasts an ephemeral typing indicator to the other room
// subscribers only — never echoed to the typist, never persisted.
func (g *Gateway) relayTyping(connID, userID, chatID, eventType string) {
	if chatID == "" {
		g.sendError(connID, protocol.CodeValidation, "chat_id is required")
		return
	}

	var payload interface{}
	if eventType == protocol.TypeUserTyping {
		payload = protocol.UserTypingMsg{ChatID: chatID, UserID: userID}
	} else {
		payload = protocol.UserStopTypingMsg{ChatID: chatID, UserID: userID}
	}

	data, err := protocol.NewServerEvent(eventType, payload)
	if err != nil {
		log.Printf("gateway: build %s: %v", eventType, err)
		return
	}

	for _, subscriber := range g.rooms.Subscribers(chatID) {
		if subscriber == connID {
			continue
		}
		_ = g.sender.Send(subscriber, data)
	}
}

// handleMessageRead marks the message read for this user and announces the
// status transition to every connection, not just the chat's room.
func (g *Gateway) handleMessageRead(ctx context.Context, connID, userID string, m protocol.MessageReadMsg) {
	if m.MessageID == "" {
		g.sendError(connID, protocol.CodeValidation, "message_id is required")
		return
	}

	update, err := g.pipeline.MarkRead(ctx, m.MessageID, userID)
	if err != nil {
		g.sendFailure(connID, err)
		return
	}

	data, err := protocol.NewServerEvent(protocol.TypeMessageStatusUpdated, protocol.MessageStatusUpdatedMsg{
		MessageID: update.MessageID,
		UserID:    update.UserID,
		Status:    update.Status,
	})
	if err != nil {
		log.Printf("gateway: build message_status_updated: %v", err)
		return
	}

	g.sender.Broadcast(data)
	metrics.MessagesTotal.WithLabelValues("read").Inc()
}

// sendFailure maps a core error to a protocol error code and reports it to
// the originating connection only.
func (g *Gateway) sendFailure(connID string, err error) {
	code := protocol.CodeUpstream
	switch {
	case errors.Is(err, chat.ErrInvalidMessage):
		code = protocol.CodeValidation
	case errors.Is(err, chat.ErrChatNotFound), errors.Is(err, storage.ErrNotFound):
		code = protocol.CodeNotFound
	case errors.Is(err, chat.ErrInvalidInviteCode), errors.Is(err, message.ErrNotMember):
		code = protocol.CodeForbidden
	}
	g.sendError(connID, code, err.Error())
}

// sendError sends a structured error event back to the client. Errors during
// event construction or transmission are logged but not propagated.
func (g *Gateway) sendError(connID, code, msg string) {
	data, err := protocol.NewServerEvent(protocol.TypeError, protocol.ErrorMsg{
		Code:    code,
		Message: msg,
	})
	if err != nil {
		log.Printf("gateway: build error event conn=%s: %v", connID, err)
		return
	}
	if err := g.sender.Send(connID, data); err != nil {
		log.Printf("gateway: send error event conn=%s: %v", connID, err)
	}
}

// sendPong responds to a client ping.
func (g *Gateway) sendPong(connID string) {
	data, err := protocol.NewServerEvent(protocol.TypePong, protocol.PongMsg{})
	if err != nil {
		return
	}
	_ = g.sender.Send(connID, data)
}

// Rooms exposes the room registry for the transport layer and tests.
func (g *Gateway) Rooms() *Rooms {
	return g.rooms
}
