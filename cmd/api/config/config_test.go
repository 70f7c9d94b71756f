package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper(overrides map[string]any) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.Set("GEMINI_API_KEY", "test-key")
	v.Set("AUTH_JWT_SECRET", "secret")
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestDefaults(t *testing.T) {
	cfg, err := fromViper(newTestViper(nil))
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, Costs{Chat: 1, Image: 10, Speech: 5, Website: 15}, cfg.Costs)
	assert.Equal(t, 100, cfg.InitialDiamonds)
	assert.Equal(t, 50, cfg.Policy.WeeklyAmount)
	assert.Equal(t, 200, cfg.Policy.DailyCap)
	assert.Equal(t, 7*24*time.Hour, cfg.Policy.WeeklyCooldown)
	assert.Equal(t, time.UTC, cfg.Policy.Location)
	assert.Equal(t, "gemini-2.5-flash-preview-tts", cfg.Gemini.SpeechModel)
	assert.Equal(t, 10*time.Minute, cfg.ChatSessionTimeout)
}

func TestOverrides(t *testing.T) {
	cfg, err := fromViper(newTestViper(map[string]any{
		"ALLOWED_ORIGINS":  "https://a.example, https://b.example,",
		"COST_IMAGE":       "12",
		"BILLING_TIMEZONE": "Asia/Tokyo",
		"AUTH_URL":         "https://auth.example/",
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 12, cfg.Costs.Image)
	assert.Equal(t, "Asia/Tokyo", cfg.Policy.Location.String())
	assert.Equal(t, "https://auth.example", cfg.Auth.URL)
}

func TestMissingRequired(t *testing.T) {
	v := newTestViper(map[string]any{"GEMINI_API_KEY": ""})
	_, err := fromViper(v)
	assert.ErrorContains(t, err, "GEMINI_API_KEY")

	v = newTestViper(map[string]any{"AUTH_JWT_SECRET": ""})
	_, err = fromViper(v)
	assert.ErrorContains(t, err, "AUTH_JWT_SECRET")

	v = newTestViper(map[string]any{"BILLING_TIMEZONE": "Mars/Olympus"})
	_, err = fromViper(v)
	assert.ErrorContains(t, err, "BILLING_TIMEZONE")
}
