package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"lumina_studio_go_backend/internal/metrics"
	"lumina_studio_go_backend/internal/models"

	"google.golang.org/genai"
)

const speechPromptPrefix = "Say clearly: "

// GeminiMedia serves image generation and speech synthesis, which need
// response modalities the text client does not expose.
type GeminiMedia struct {
	models      contentGenerator
	imageModel  string
	speechModel string
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func NewGeminiMedia(client *genai.Client, imageModel, speechModel string) *GeminiMedia {
	return &GeminiMedia{models: client.Models, imageModel: imageModel, speechModel: speechModel}
}

func NewGeminiMediaClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

func (g *GeminiMedia) GenerateImage(ctx context.Context, prompt string) (*models.GeneratedImage, error) {
	started := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.imageModel, genai.Text(prompt), &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{AspectRatio: "1:1"},
	})
	metrics.ObserveProvider("image", started, err)
	if err != nil {
		return nil, fmt.Errorf("image request failed: %w", err)
	}

	blob := firstInlineData(resp, "image/")
	if blob == nil {
		return nil, ErrNoImage
	}
	mimeType := blob.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}
	return &models.GeneratedImage{
		MIMEType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(blob.Data),
	}, nil
}

func (g *GeminiMedia) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if _, ok := models.LookupVoice(voice); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVoice, voice)
	}

	started := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.speechModel, genai.Text(speechPromptPrefix+text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	})
	metrics.ObserveProvider("speech", started, err)
	if err != nil {
		return nil, fmt.Errorf("speech request failed: %w", err)
	}

	blob := firstInlineData(resp, "")
	if blob == nil || len(blob.Data) == 0 {
		return nil, ErrNoAudio
	}
	return blob.Data, nil
}

// firstInlineData returns the first inline blob of the first candidate whose
// MIME type starts with prefix. Parts without a MIME type match any prefix.
func firstInlineData(resp *genai.GenerateContentResponse, prefix string) *genai.Blob {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil {
			continue
		}
		if part.InlineData.MIMEType == "" || strings.HasPrefix(part.InlineData.MIMEType, prefix) {
			return part.InlineData
		}
	}
	return nil
}
