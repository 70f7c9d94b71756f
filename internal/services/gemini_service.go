package services

import (
	"context"

	"lumina_studio_go_backend/internal/models"
)

// GeminiGenerator joins the text and media clients into one Generator.
type GeminiGenerator struct {
	text  *GeminiText
	media *GeminiMedia
}

func NewGeminiGenerator(text *GeminiText, media *GeminiMedia) *GeminiGenerator {
	return &GeminiGenerator{text: text, media: media}
}

func (g *GeminiGenerator) Chat(ctx context.Context, history []models.ChatMessage, message string) (string, error) {
	return g.text.Chat(ctx, history, message)
}

func (g *GeminiGenerator) StreamChat(ctx context.Context, history []models.ChatMessage, message string) (ChatStream, error) {
	return g.text.StreamChat(ctx, history, message)
}

func (g *GeminiGenerator) GenerateImage(ctx context.Context, prompt string) (*models.GeneratedImage, error) {
	return g.media.GenerateImage(ctx, prompt)
}

func (g *GeminiGenerator) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	return g.media.Synthesize(ctx, text, voice)
}

func (g *GeminiGenerator) GenerateLayout(ctx context.Context, prompt string) (*models.SiteLayout, error) {
	return g.text.GenerateLayout(ctx, prompt)
}
