package services

import (
	"context"
	"errors"

	"lumina_studio_go_backend/internal/models"

	"github.com/google/uuid"
)

var (
	ErrNoImage       = errors.New("model returned no image")
	ErrNoAudio       = errors.New("model returned no audio")
	ErrInvalidLayout = errors.New("model returned an incomplete site layout")
	ErrUnknownVoice  = errors.New("unknown voice")
)

// Generator is the AI capability used by the API. Implementations must not
// touch balances; charging happens before a Generator is called.
type Generator interface {
	Chat(ctx context.Context, history []models.ChatMessage, message string) (string, error)
	GenerateImage(ctx context.Context, prompt string) (*models.GeneratedImage, error)
	// Synthesize returns raw 16-bit little-endian mono PCM at 24 kHz.
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
	GenerateLayout(ctx context.Context, prompt string) (*models.SiteLayout, error)
}

// ChatStreamer streams a chat answer chunk by chunk.
type ChatStreamer interface {
	StreamChat(ctx context.Context, history []models.ChatMessage, message string) (ChatStream, error)
}

// ChatStream yields text chunks until it returns io.EOF.
type ChatStream interface {
	Next() (string, error)
}

type ProfileStore interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	CreateProfile(ctx context.Context, profile *models.Profile) error
	UpdateProfile(ctx context.Context, profile *models.Profile) error
}

type ProfileCache interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Profile, bool, error)
	Set(ctx context.Context, profile *models.Profile) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// EventPublisher delivers notifications to a user's live connections.
type EventPublisher interface {
	Publish(topic string, msg interface{})
}

// SessionEvent tells live connections that the auth session changed.
type SessionEvent struct {
	Event string `json:"event"`
}

const SessionSignedOut = "signed_out"

func SessionTopic(userID uuid.UUID) string {
	return "session_" + userID.String()
}
