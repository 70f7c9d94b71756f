package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"lumina_studio_go_backend/internal/metrics"
	"lumina_studio_go_backend/internal/models"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
)

const layoutPromptFormat = "Generate a structured website JSON for: %s. Include title, a catchy description, a vibrant hex primaryColor, and 3 content sections with heading and detailed text."

const minLayoutSections = 3

// GeminiText serves chat and site layouts.
type GeminiText struct {
	client      *genai.Client
	chatModel   string
	layoutModel string
}

func NewGeminiText(client *genai.Client, chatModel, layoutModel string) *GeminiText {
	return &GeminiText{client: client, chatModel: chatModel, layoutModel: layoutModel}
}

func (g *GeminiText) startChat(history []models.ChatMessage) *genai.ChatSession {
	cs := g.client.GenerativeModel(g.chatModel).StartChat()
	cs.History = toContents(history)
	return cs
}

func (g *GeminiText) Chat(ctx context.Context, history []models.ChatMessage, message string) (string, error) {
	started := time.Now()
	resp, err := g.startChat(history).SendMessage(ctx, genai.Text(message))
	metrics.ObserveProvider("chat", started, err)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	return responseText(resp), nil
}

func (g *GeminiText) StreamChat(ctx context.Context, history []models.ChatMessage, message string) (ChatStream, error) {
	iter := g.startChat(history).SendMessageStream(ctx, genai.Text(message))
	return &geminiStream{iter: iter, started: time.Now()}, nil
}

type geminiStream struct {
	iter    *genai.GenerateContentResponseIterator
	started time.Time
	done    bool
}

func (s *geminiStream) Next() (string, error) {
	for !s.done {
		resp, err := s.iter.Next()
		if err == iterator.Done {
			s.done = true
			metrics.ObserveProvider("chat_stream", s.started, nil)
			break
		}
		if err != nil {
			s.done = true
			metrics.ObserveProvider("chat_stream", s.started, err)
			return "", fmt.Errorf("chat stream failed: %w", err)
		}
		if text := responseText(resp); text != "" {
			return text, nil
		}
	}
	return "", io.EOF
}

func (g *GeminiText) GenerateLayout(ctx context.Context, prompt string) (*models.SiteLayout, error) {
	model := g.client.GenerativeModel(g.layoutModel)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = layoutSchema

	started := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(fmt.Sprintf(layoutPromptFormat, prompt)))
	metrics.ObserveProvider("layout", started, err)
	if err != nil {
		return nil, fmt.Errorf("layout request failed: %w", err)
	}
	return ParseLayout(responseText(resp))
}

var layoutSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":        {Type: genai.TypeString},
		"description":  {Type: genai.TypeString},
		"primaryColor": {Type: genai.TypeString},
		"sections": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"heading": {Type: genai.TypeString},
					"content": {Type: genai.TypeString},
				},
				Required: []string{"heading", "content"},
			},
		},
	},
	Required: []string{"title", "description", "primaryColor", "sections"},
}

// ParseLayout decodes and checks a layout returned by the model.
func ParseLayout(raw string) (*models.SiteLayout, error) {
	var layout models.SiteLayout
	if err := json.Unmarshal([]byte(raw), &layout); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	switch {
	case strings.TrimSpace(layout.Title) == "":
		return nil, fmt.Errorf("%w: missing title", ErrInvalidLayout)
	case strings.TrimSpace(layout.PrimaryColor) == "":
		return nil, fmt.Errorf("%w: missing primary color", ErrInvalidLayout)
	case len(layout.Sections) < minLayoutSections:
		return nil, fmt.Errorf("%w: %d sections", ErrInvalidLayout, len(layout.Sections))
	}
	return &layout, nil
}

func toContents(history []models.ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		contents = append(contents, &genai.Content{
			Role:  msg.Role,
			Parts: []genai.Part{genai.Text(msg.Text)},
		})
	}
	return contents
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}
