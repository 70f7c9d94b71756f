package models

// ChatMessage is one turn of a conversation. Role is "user" or "model".
type ChatMessage struct {
	Role string `json:"role" binding:"required,oneof=user model"`
	Text string `json:"text"`
}

type SiteSection struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
}

// SiteLayout is the structured layout returned by the layout model.
type SiteLayout struct {
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	PrimaryColor string        `json:"primaryColor"`
	Sections     []SiteSection `json:"sections"`
}

type GeneratedImage struct {
	MIMEType string `json:"mime_type"`
	// Data is base64 encoded.
	Data string `json:"data"`
}

// Voice is a prebuilt speech synthesis voice.
type Voice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var Voices = []Voice{
	{ID: "Zephyr", Name: "Zephyr", Description: "Deep & Energetic"},
	{ID: "Kore", Name: "Kore", Description: "Warm & Friendly"},
	{ID: "Puck", Name: "Puck", Description: "High & Playful"},
	{ID: "Charon", Name: "Charon", Description: "Serious & Calm"},
}

func LookupVoice(id string) (Voice, bool) {
	for _, v := range Voices {
		if v.ID == id {
			return v, true
		}
	}
	return Voice{}, false
}
