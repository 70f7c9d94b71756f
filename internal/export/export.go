// Package export turns generated content into downloadable files.
package export

import (
	"archive/zip"
	"bytes"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"regexp"
	"strings"
	texttemplate "text/template"
	"time"

	"lumina_studio_go_backend/internal/models"

	"github.com/jung-kurt/gofpdf"
	_ "golang.org/x/image/webp"
)

// PCM parameters of synthesized speech.
const (
	SampleRate    = 24000
	Channels      = 1
	BitsPerSample = 16
)

const defaultPrimaryColor = "#6366f1"

var (
	ErrEmptyTranscript = errors.New("transcript has no messages")
	ErrEmptyAudio      = errors.New("audio is empty")
	ErrInvalidImage    = errors.New("image data is not valid base64")
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	indexTemplate = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/index.html.tmpl"))
	styleTemplate = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/style.css.tmpl"))

	cssColor   = regexp.MustCompile(`^(#[0-9a-fA-F]{3,8}|[a-zA-Z]{3,20})$`)
	whitespace = regexp.MustCompile(`\s+`)
)

// File is a named download.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

func transcriptText(messages []models.ChatMessage) string {
	blocks := make([]string, 0, len(messages))
	for _, m := range messages {
		blocks = append(blocks, strings.ToUpper(m.Role)+": "+m.Text)
	}
	return strings.Join(blocks, "\n\n")
}

// Transcript renders a chat as "ROLE: text" blocks separated by blank lines.
func Transcript(messages []models.ChatMessage, now time.Time) (*File, error) {
	if len(messages) == 0 {
		return nil, ErrEmptyTranscript
	}
	return &File{
		Name:        fmt.Sprintf("chat-transcript-%d.txt", now.UnixMilli()),
		ContentType: "text/plain; charset=utf-8",
		Data:        []byte(transcriptText(messages)),
	}, nil
}

func TranscriptPDF(messages []models.ChatMessage, now time.Time) (*File, error) {
	if len(messages) == 0 {
		return nil, ErrEmptyTranscript
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Chat transcript", true)
	pdf.SetMargins(18, 18, 18)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Chat transcript", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, now.UTC().Format(time.RFC1123), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	for _, m := range messages {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 7, strings.ToUpper(m.Role), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 5.5, tr(m.Text), "", "L", false)
		pdf.Ln(3)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render transcript pdf: %w", err)
	}
	return &File{
		Name:        fmt.Sprintf("chat-transcript-%d.pdf", now.UnixMilli()),
		ContentType: "application/pdf",
		Data:        buf.Bytes(),
	}, nil
}

// ImagePNG decodes a generated image. Non-PNG answers are transcoded so the
// file always matches its .png name.
func ImagePNG(img *models.GeneratedImage, now time.Time) (*File, error) {
	data, err := base64.StdEncoding.DecodeString(img.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if img.MIMEType != "" && img.MIMEType != "image/png" {
		if data, err = transcodePNG(data); err != nil {
			return nil, err
		}
	}
	return &File{
		Name:        fmt.Sprintf("lumina-gen-%d.png", now.UnixMilli()),
		ContentType: "image/png",
		Data:        data,
	}, nil
}

func transcodePNG(data []byte) ([]byte, error) {
	decoded, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if format == "png" {
		return data, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, decoded); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// SpeechPCM wraps raw PCM without a container header.
func SpeechPCM(pcm []byte, voice string) (*File, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyAudio
	}
	return &File{
		Name:        fmt.Sprintf("voice-%s.pcm", strings.ToLower(voice)),
		ContentType: fmt.Sprintf("audio/pcm;rate=%d;channels=%d", SampleRate, Channels),
		Data:        pcm,
	}, nil
}

// SiteSlug lowercases the title and replaces whitespace runs with '-'.
func SiteSlug(title string) string {
	return whitespace.ReplaceAllString(strings.ToLower(title), "-")
}

type sitePage struct {
	models.SiteLayout
	Year int
}

// SiteZip packages the layout as a static site with index.html and style.css.
func SiteZip(layout *models.SiteLayout, year int) (*File, error) {
	page := sitePage{SiteLayout: *layout, Year: year}
	if !cssColor.MatchString(page.PrimaryColor) {
		page.PrimaryColor = defaultPrimaryColor
	}

	var html, css bytes.Buffer
	if err := indexTemplate.Execute(&html, page); err != nil {
		return nil, fmt.Errorf("failed to render index.html: %w", err)
	}
	if err := styleTemplate.Execute(&css, page); err != nil {
		return nil, fmt.Errorf("failed to render style.css: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range []struct {
		name string
		data []byte
	}{
		{"index.html", html.Bytes()},
		{"style.css", css.Bytes()},
	} {
		w, err := zw.Create(f.name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(f.data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish zip: %w", err)
	}

	return &File{
		Name:        SiteSlug(layout.Title) + "-website.zip",
		ContentType: "application/zip",
		Data:        buf.Bytes(),
	}, nil
}
