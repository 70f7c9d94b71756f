package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"lumina_studio_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionForbidden = errors.New("session belongs to another user")
)

type ChatSessionInfo struct {
	UserID       uuid.UUID
	History      []models.ChatMessage
	LastAccessed time.Time
}

type TerminationReason int

const (
	UserInitiated TerminationReason = iota
	SessionTimeout
)

func (r TerminationReason) String() string {
	switch r {
	case UserInitiated:
		return "user_initiated"
	case SessionTimeout:
		return "timeout"
	}
	return "unknown"
}

// ChatSessionService keeps the history of live streaming chats. Sessions are
// in memory only and end after sessionTimeout without activity.
type ChatSessionService struct {
	sessions       sync.Map
	sessionsMutex  sync.Mutex
	streamer       ChatStreamer
	sessionTimeout time.Duration
	now            func() time.Time
	cron           *cron.Cron
}

func NewChatSessionService(streamer ChatStreamer, sessionTimeout time.Duration) *ChatSessionService {
	return &ChatSessionService{
		streamer:       streamer,
		sessionTimeout: sessionTimeout,
		now:            time.Now,
	}
}

// StartCleanup schedules the idle session sweep.
func (css *ChatSessionService) StartCleanup(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, css.CleanupExpiredSessions); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	css.cron = c
	c.Start()
	return nil
}

func (css *ChatSessionService) StopCleanup() {
	if css.cron != nil {
		<-css.cron.Stop().Done()
	}
}

func (css *ChatSessionService) StartChatSession(userID uuid.UUID) string {
	sessionID := uuid.New().String()
	css.sessions.Store(sessionID, ChatSessionInfo{
		UserID:       userID,
		LastAccessed: css.now(),
	})
	log.Debug().Str("sessionID", sessionID).Str("userID", userID.String()).Msg("Chat session started")
	return sessionID
}

func (css *ChatSessionService) History(userID uuid.UUID, sessionID string) ([]models.ChatMessage, error) {
	css.sessionsMutex.Lock()
	defer css.sessionsMutex.Unlock()

	info, err := css.lookup(userID, sessionID)
	if err != nil {
		return nil, err
	}
	return append([]models.ChatMessage(nil), info.History...), nil
}

// StreamChatMessage sends message with the session's history and calls emit
// for every chunk. The exchange is appended to the history once the stream
// completes.
func (css *ChatSessionService) StreamChatMessage(ctx context.Context, userID uuid.UUID, sessionID, message string, emit func(chunk string) error) (string, error) {
	history, err := css.History(userID, sessionID)
	if err != nil {
		return "", err
	}
	css.touch(sessionID, nil)

	stream, err := css.streamer.StreamChat(ctx, history, message)
	if err != nil {
		return "", err
	}

	var reply strings.Builder
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return reply.String(), err
		}
		reply.WriteString(chunk)
		if err := emit(chunk); err != nil {
			return reply.String(), err
		}
	}

	css.touch(sessionID, []models.ChatMessage{
		{Role: "user", Text: message},
		{Role: "model", Text: reply.String()},
	})
	return reply.String(), nil
}

func (css *ChatSessionService) TerminateSession(userID uuid.UUID, sessionID string, reason TerminationReason) error {
	css.sessionsMutex.Lock()
	defer css.sessionsMutex.Unlock()

	if _, err := css.lookup(userID, sessionID); err != nil {
		return err
	}
	css.sessions.Delete(sessionID)
	log.Info().Str("sessionID", sessionID).Stringer("reason", reason).Msg("Chat session terminated")
	return nil
}

// TerminateUserSessions ends every session of userID, e.g. on sign out.
func (css *ChatSessionService) TerminateUserSessions(userID uuid.UUID) int {
	css.sessionsMutex.Lock()
	defer css.sessionsMutex.Unlock()

	n := 0
	css.sessions.Range(func(key, value interface{}) bool {
		if value.(ChatSessionInfo).UserID == userID {
			css.sessions.Delete(key)
			n++
		}
		return true
	})
	return n
}

func (css *ChatSessionService) CleanupExpiredSessions() {
	css.sessionsMutex.Lock()
	defer css.sessionsMutex.Unlock()

	now := css.now()
	css.sessions.Range(func(key, value interface{}) bool {
		info := value.(ChatSessionInfo)
		if now.Sub(info.LastAccessed) > css.sessionTimeout {
			css.sessions.Delete(key)
			log.Info().Str("sessionID", key.(string)).Stringer("reason", SessionTimeout).Msg("Chat session terminated")
		}
		return true
	})
}

func (css *ChatSessionService) SessionCount() int {
	n := 0
	css.sessions.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// lookup must be called with sessionsMutex held.
func (css *ChatSessionService) lookup(userID uuid.UUID, sessionID string) (ChatSessionInfo, error) {
	v, ok := css.sessions.Load(sessionID)
	if !ok {
		return ChatSessionInfo{}, ErrSessionNotFound
	}
	info := v.(ChatSessionInfo)
	if info.UserID != userID {
		return ChatSessionInfo{}, ErrSessionForbidden
	}
	return info, nil
}

func (css *ChatSessionService) touch(sessionID string, appended []models.ChatMessage) {
	css.sessionsMutex.Lock()
	defer css.sessionsMutex.Unlock()

	v, ok := css.sessions.Load(sessionID)
	if !ok {
		return
	}
	info := v.(ChatSessionInfo)
	info.LastAccessed = css.now()
	if len(appended) > 0 {
		info.History = append(append([]models.ChatMessage(nil), info.History...), appended...)
	}
	css.sessions.Store(sessionID, info)
}
