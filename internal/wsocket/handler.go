package wsocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"lumina_studio_go_backend/internal/models"
	"lumina_studio_go_backend/internal/services"
	"lumina_studio_go_backend/internal/utils/broker"
	"lumina_studio_go_backend/internal/wallet"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const endOfMessage = "[END]"

// Spender charges a user for an action.
type Spender interface {
	Spend(ctx context.Context, userID uuid.UUID, amount int, action string) (*models.Profile, error)
}

// Limiter throttles chat messages per user.
type Limiter interface {
	Allow(userID uuid.UUID) bool
}

type Handler struct {
	chatSessions *services.ChatSessionService
	profiles     Spender
	limiter      Limiter
	broker       *broker.Broker
	upgrader     websocket.Upgrader
	chatCost     int
}

type Message struct {
	Type      string          `json:"type"`
	Content   string          `json:"content,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Profile   *models.Profile `json:"profile,omitempty"`
}

func NewHandler(chatSessions *services.ChatSessionService, profiles Spender, limiter Limiter, messageBroker *broker.Broker, upgrader websocket.Upgrader, chatCost int) *Handler {
	return &Handler{
		chatSessions: chatSessions,
		profiles:     profiles,
		limiter:      limiter,
		broker:       messageBroker,
		upgrader:     upgrader,
		chatCost:     chatCost,
	}
}

// conn serializes writes; gorilla connections allow one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request, user *models.User) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer ws.Close()
	c := &conn{ws: ws}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	logger := log.With().Str("userID", user.ID.String()).Logger()
	profileTopic := services.ProfileUpdateTopic(user.ID)
	sessionTopic := services.SessionTopic(user.ID)
	profileUpdates := h.broker.Subscribe(profileTopic)
	defer h.broker.Unsubscribe(profileTopic, profileUpdates)
	sessionEvents := h.broker.Subscribe(sessionTopic)
	defer h.broker.Unsubscribe(sessionTopic, sessionEvents)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-profileUpdates:
				if !ok {
					return
				}
				profile, isProfile := msg.(models.Profile)
				if !isProfile {
					continue
				}
				if err := c.send(Message{Type: "profile_update", Profile: &profile}); err != nil {
					logger.Debug().Err(err).Msg("Error sending profile update")
					return
				}
			case msg, ok := <-sessionEvents:
				if !ok {
					return
				}
				event, isEvent := msg.(services.SessionEvent)
				if !isEvent {
					continue
				}
				_ = c.send(Message{Type: "session", Content: event.Event})
				if event.Event == services.SessionSignedOut {
					c.mu.Lock()
					_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "signed out"))
					c.mu.Unlock()
					cancel()
					ws.Close()
					return
				}
			}
		}
	}()

	var ownedSessions []string
	defer func() {
		for _, id := range ownedSessions {
			_ = h.chatSessions.TerminateSession(user.ID, id, services.UserInitiated)
		}
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			logger.Debug().Err(err).Msg("WebSocket closed")
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			_ = c.send(Message{Type: "error", Content: "Malformed message"})
			continue
		}

		switch msg.Type {
		case "start":
			sessionID := h.chatSessions.StartChatSession(user.ID)
			ownedSessions = append(ownedSessions, sessionID)
			_ = c.send(Message{Type: "session_started", SessionID: sessionID})
		case "chat":
			h.handleChatMessage(ctx, c, user, msg)
		case "terminate":
			if err := h.chatSessions.TerminateSession(user.ID, msg.SessionID, services.UserInitiated); err != nil {
				_ = c.send(Message{Type: "error", Content: err.Error(), SessionID: msg.SessionID})
				continue
			}
			_ = c.send(Message{Type: "info", Content: "Chat session terminated", SessionID: msg.SessionID})
		case "ping":
			_ = c.send(Message{Type: "pong"})
		default:
			_ = c.send(Message{Type: "error", Content: "Unknown message type"})
		}
	}
}

func (h *Handler) handleChatMessage(ctx context.Context, c *conn, user *models.User, msg Message) {
	if msg.Content == "" {
		_ = c.send(Message{Type: "error", Content: "Message is empty", SessionID: msg.SessionID})
		return
	}
	if _, err := h.chatSessions.History(user.ID, msg.SessionID); err != nil {
		_ = c.send(Message{Type: "error", Content: err.Error(), SessionID: msg.SessionID})
		return
	}

	if h.limiter != nil && !h.limiter.Allow(user.ID) {
		_ = c.send(Message{Type: "error", Content: "Too many requests, slow down", SessionID: msg.SessionID})
		return
	}

	if _, err := h.profiles.Spend(ctx, user.ID, h.chatCost, "chat"); err != nil {
		content := "Failed to charge for the message"
		if errors.Is(err, wallet.ErrInsufficientDiamonds) {
			content = "Not enough diamonds"
		}
		_ = c.send(Message{Type: "error", Content: content, SessionID: msg.SessionID})
		return
	}

	_, err := h.chatSessions.StreamChatMessage(ctx, user.ID, msg.SessionID, msg.Content, func(chunk string) error {
		return c.send(Message{Type: "ai", Content: chunk, SessionID: msg.SessionID})
	})
	if err != nil {
		log.Warn().Err(err).Str("sessionID", msg.SessionID).Msg("Chat stream failed")
		_ = c.send(Message{Type: "error", Content: "The AI service could not complete the request", SessionID: msg.SessionID})
		return
	}
	_ = c.send(Message{Type: "ai", Content: endOfMessage, SessionID: msg.SessionID})
}
