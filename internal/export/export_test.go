package export

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"testing"
	"time"

	"lumina_studio_go_backend/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var exportTime = time.UnixMilli(1715342400123)

var conversation = []models.ChatMessage{
	{Role: "user", Text: "What is a haiku?"},
	{Role: "model", Text: "A short poem.\nThree lines."},
}

func TestTranscript(t *testing.T) {
	f, err := Transcript(conversation, exportTime)

	require.NoError(t, err)
	assert.Equal(t, "chat-transcript-1715342400123.txt", f.Name)
	assert.Equal(t, "USER: What is a haiku?\n\nMODEL: A short poem.\nThree lines.", string(f.Data))

	_, err = Transcript(nil, exportTime)
	assert.ErrorIs(t, err, ErrEmptyTranscript)
}

func TestTranscriptPDF(t *testing.T) {
	api.DisableConfigDir()

	long := make([]models.ChatMessage, 0, 60)
	for i := 0; i < 30; i++ {
		long = append(long, conversation...)
	}

	f, err := TranscriptPDF(long, exportTime)
	require.NoError(t, err)
	assert.Equal(t, "chat-transcript-1715342400123.pdf", f.Name)
	assert.Equal(t, "application/pdf", f.ContentType)

	require.NoError(t, api.Validate(bytes.NewReader(f.Data), nil))
	pages, err := api.PageCount(bytes.NewReader(f.Data), nil)
	require.NoError(t, err)
	assert.Greater(t, pages, 1)

	r, err := pdf.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
	require.NoError(t, err)
	assert.Equal(t, pages, r.NumPage())

	text, err := r.Page(1).GetPlainText(nil)
	require.NoError(t, err)
	assert.Contains(t, text, "USER")

	_, err = TranscriptPDF(nil, exportTime)
	assert.ErrorIs(t, err, ErrEmptyTranscript)
}

func TestImagePNG(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G', '\r', '\n'}
	f, err := ImagePNG(&models.GeneratedImage{Data: base64.StdEncoding.EncodeToString(raw)}, exportTime)

	require.NoError(t, err)
	assert.Equal(t, "lumina-gen-1715342400123.png", f.Name)
	assert.Equal(t, "image/png", f.ContentType)
	assert.Equal(t, raw, f.Data)

	_, err = ImagePNG(&models.GeneratedImage{Data: "%%%"}, exportTime)
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestImagePNG_TranscodesJPEG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 3))
	src.Set(1, 1, color.RGBA{R: 200, A: 255})
	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, src, nil))

	f, err := ImagePNG(&models.GeneratedImage{
		MIMEType: "image/jpeg",
		Data:     base64.StdEncoding.EncodeToString(jpg.Bytes()),
	}, exportTime)

	require.NoError(t, err)
	assert.Equal(t, "lumina-gen-1715342400123.png", f.Name)
	assert.Equal(t, "image/png", f.ContentType)
	decoded, err := png.Decode(bytes.NewReader(f.Data))
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), decoded.Bounds())

	_, err = ImagePNG(&models.GeneratedImage{
		MIMEType: "image/jpeg",
		Data:     base64.StdEncoding.EncodeToString([]byte("not an image")),
	}, exportTime)
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestSpeechPCM(t *testing.T) {
	f, err := SpeechPCM([]byte{1, 2, 3, 4}, "Zephyr")

	require.NoError(t, err)
	assert.Equal(t, "voice-zephyr.pcm", f.Name)
	assert.Equal(t, "audio/pcm;rate=24000;channels=1", f.ContentType)
	assert.Equal(t, []byte{1, 2, 3, 4}, f.Data)

	_, err = SpeechPCM(nil, "Kore")
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestSiteSlug(t *testing.T) {
	assert.Equal(t, "bean-there-coffee", SiteSlug("Bean  There\tCoffee"))
	assert.Equal(t, "solo", SiteSlug("Solo"))
}

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	files := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		files[f.Name] = string(body)
	}
	return files
}

func TestSiteZip(t *testing.T) {
	layout := &models.SiteLayout{
		Title:        "Bean There",
		Description:  "Coffee <roasted> nearby",
		PrimaryColor: "#8b4513",
		Sections: []models.SiteSection{
			{Heading: "Menu", Content: "Espresso & more"},
			{Heading: "Hours", Content: "7 to 5"},
			{Heading: "Visit", Content: "Main St"},
		},
	}

	f, err := SiteZip(layout, 2024)
	require.NoError(t, err)
	assert.Equal(t, "bean-there-website.zip", f.Name)

	files := readZip(t, f.Data)
	require.Len(t, files, 2)

	html := files["index.html"]
	assert.Contains(t, html, "<title>Bean There</title>")
	assert.Contains(t, html, "Coffee &lt;roasted&gt; nearby")
	assert.Contains(t, html, "Espresso &amp; more")
	assert.Equal(t, 3, strings.Count(html, "<section>"))
	assert.Contains(t, html, "&copy; 2024 Bean There. All rights reserved.")

	assert.Contains(t, files["style.css"], "--primary-color: #8b4513;")
}

func TestSiteZip_RejectsUnsafeColour(t *testing.T) {
	layout := &models.SiteLayout{
		Title:        "X",
		PrimaryColor: "red; } body { display:none",
		Sections:     []models.SiteSection{{}, {}, {}},
	}

	f, err := SiteZip(layout, 2024)
	require.NoError(t, err)

	css := readZip(t, f.Data)["style.css"]
	assert.Contains(t, css, "--primary-color: #6366f1;")
	assert.NotContains(t, css, "display:none")
}
