package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"lumina_studio_go_backend/internal/wallet"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	Database DatabaseConfig
	Redis    RedisConfig
	Gemini   GeminiConfig
	Auth     AuthConfig
	Stripe   StripeConfig
	Costs    Costs
	Policy   wallet.Policy

	InitialDiamonds    int
	RateLimitRPS       float64
	RateLimitBurst     int
	ChatSessionTimeout time.Duration
	AdminAPIKey        string
}

type DatabaseConfig struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port)
}

type RedisConfig struct {
	Addr     string
	Password string
	TTL      time.Duration
}

type GeminiConfig struct {
	APIKey      string
	ChatModel   string
	ImageModel  string
	SpeechModel string
	LayoutModel string
}

type AuthConfig struct {
	URL       string
	AnonKey   string
	JWTSecret string
	JWKSURL   string
}

type StripeConfig struct {
	SecretKey            string
	PublishableKey       string
	DailyPriceID         string
	UnlimitedPriceID     string
	DailyBuyButtonID     string
	UnlimitedBuyButtonID string
	CheckoutSuccessURL   string
	CheckoutCancelURL    string
}

// Costs are diamond prices per action.
type Costs struct {
	Chat    int
	Image   int
	Speech  int
	Website int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "3000")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "lumina")
	v.SetDefault("PROFILE_CACHE_TTL", "10m")

	v.SetDefault("CHAT_MODEL", "gemini-3-pro-preview")
	v.SetDefault("IMAGE_MODEL", "gemini-2.5-flash-image")
	v.SetDefault("SPEECH_MODEL", "gemini-2.5-flash-preview-tts")
	v.SetDefault("LAYOUT_MODEL", "gemini-3-pro-preview")

	v.SetDefault("CHECKOUT_SUCCESS_URL", "http://localhost:5173/?checkout=success")
	v.SetDefault("CHECKOUT_CANCEL_URL", "http://localhost:5173/?checkout=cancel")

	v.SetDefault("COST_CHAT", 1)
	v.SetDefault("COST_IMAGE", 10)
	v.SetDefault("COST_SPEECH", 5)
	v.SetDefault("COST_WEBSITE", 15)

	v.SetDefault("INITIAL_DIAMONDS", 100)
	v.SetDefault("WEEKLY_REWARD_AMOUNT", 50)
	v.SetDefault("DAILY_LIMIT", 200)
	v.SetDefault("BILLING_TIMEZONE", "UTC")

	v.SetDefault("RATE_LIMIT_RPS", 2)
	v.SetDefault("RATE_LIMIT_BURST", 5)
	v.SetDefault("CHAT_SESSION_TIMEOUT", "10m")
}

// NewConfig reads the configuration from the environment. Call
// godotenv.Load before it to pick up a local .env file.
func NewConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	loc, err := time.LoadLocation(v.GetString("BILLING_TIMEZONE"))
	if err != nil {
		return nil, fmt.Errorf("invalid BILLING_TIMEZONE: %w", err)
	}

	cfg := &Config{
		Port:           v.GetString("PORT"),
		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		LogLevel:       v.GetString("LOG_LEVEL"),
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Name:     v.GetString("DB_NAME"),
			Port:     v.GetString("DB_PORT"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			TTL:      v.GetDuration("PROFILE_CACHE_TTL"),
		},
		Gemini: GeminiConfig{
			APIKey:      v.GetString("GEMINI_API_KEY"),
			ChatModel:   v.GetString("CHAT_MODEL"),
			ImageModel:  v.GetString("IMAGE_MODEL"),
			SpeechModel: v.GetString("SPEECH_MODEL"),
			LayoutModel: v.GetString("LAYOUT_MODEL"),
		},
		Auth: AuthConfig{
			URL:       strings.TrimRight(v.GetString("AUTH_URL"), "/"),
			AnonKey:   v.GetString("AUTH_ANON_KEY"),
			JWTSecret: v.GetString("AUTH_JWT_SECRET"),
			JWKSURL:   v.GetString("AUTH_JWKS_URL"),
		},
		Stripe: StripeConfig{
			SecretKey:            v.GetString("STRIPE_SECRET_KEY"),
			PublishableKey:       v.GetString("STRIPE_PUBLISHABLE_KEY"),
			DailyPriceID:         v.GetString("STRIPE_DAILY_PRICE_ID"),
			UnlimitedPriceID:     v.GetString("STRIPE_UNLIMITED_PRICE_ID"),
			DailyBuyButtonID:     v.GetString("STRIPE_DAILY_BUY_BUTTON_ID"),
			UnlimitedBuyButtonID: v.GetString("STRIPE_UNLIMITED_BUY_BUTTON_ID"),
			CheckoutSuccessURL:   v.GetString("CHECKOUT_SUCCESS_URL"),
			CheckoutCancelURL:    v.GetString("CHECKOUT_CANCEL_URL"),
		},
		Costs: Costs{
			Chat:    v.GetInt("COST_CHAT"),
			Image:   v.GetInt("COST_IMAGE"),
			Speech:  v.GetInt("COST_SPEECH"),
			Website: v.GetInt("COST_WEBSITE"),
		},
		Policy: wallet.Policy{
			WeeklyAmount:   v.GetInt("WEEKLY_REWARD_AMOUNT"),
			WeeklyCooldown: 7 * 24 * time.Hour,
			DailyCap:       v.GetInt("DAILY_LIMIT"),
			Location:       loc,
		},
		InitialDiamonds:    v.GetInt("INITIAL_DIAMONDS"),
		RateLimitRPS:       v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst:     v.GetInt("RATE_LIMIT_BURST"),
		ChatSessionTimeout: v.GetDuration("CHAT_SESSION_TIMEOUT"),
		AdminAPIKey:        v.GetString("ADMIN_API_KEY"),
	}

	if cfg.Gemini.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set in the environment")
	}
	if cfg.Auth.JWTSecret == "" && cfg.Auth.JWKSURL == "" {
		return nil, fmt.Errorf("either AUTH_JWT_SECRET or AUTH_JWKS_URL must be set")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
