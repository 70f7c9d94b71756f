package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lumina_studio_go_backend/cmd/api/config"
	"lumina_studio_go_backend/internal/api"
	"lumina_studio_go_backend/internal/auth"
	"lumina_studio_go_backend/internal/database"
	"lumina_studio_go_backend/internal/metrics"
	"lumina_studio_go_backend/internal/services"
	"lumina_studio_go_backend/internal/utils/broker"
	"lumina_studio_go_backend/internal/wsocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

func main() {
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found")
	}

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx := context.Background()

	database.InitDB(cfg.Database.DSN())

	var profileCache services.ProfileCache
	var memoryCache *services.MemoryProfileCache
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		profileCache = services.NewRedisProfileCache(redisClient, cfg.Redis.TTL)
	} else {
		log.Info().Msg("REDIS_ADDR not set, caching profiles in memory")
		memoryCache = services.NewMemoryProfileCache(cfg.Redis.TTL)
		profileCache = memoryCache
	}

	// Initialize external services clients
	textClient, err := genai.NewClient(ctx, option.WithAPIKey(cfg.Gemini.APIKey))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create GenAI client")
	}
	defer textClient.Close()

	mediaClient, err := services.NewGeminiMediaClient(ctx, cfg.Gemini.APIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create GenAI media client")
	}

	generator := services.NewGeminiGenerator(
		services.NewGeminiText(textClient, cfg.Gemini.ChatModel, cfg.Gemini.LayoutModel),
		services.NewGeminiMedia(mediaClient, cfg.Gemini.ImageModel, cfg.Gemini.SpeechModel),
	)

	stripeService := services.NewStripeService(services.StripeConfig{
		SecretKey:            cfg.Stripe.SecretKey,
		PublishableKey:       cfg.Stripe.PublishableKey,
		DailyPriceID:         cfg.Stripe.DailyPriceID,
		UnlimitedPriceID:     cfg.Stripe.UnlimitedPriceID,
		DailyBuyButtonID:     cfg.Stripe.DailyBuyButtonID,
		UnlimitedBuyButtonID: cfg.Stripe.UnlimitedBuyButtonID,
		SuccessURL:           cfg.Stripe.CheckoutSuccessURL,
		CancelURL:            cfg.Stripe.CheckoutCancelURL,
		DailyCap:             cfg.Policy.DailyCap,
	})
	authClient := services.NewHostedAuthClient(cfg.Auth.URL, cfg.Auth.AnonKey)
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWKSURL)

	// Initialize internal services
	messageBroker := broker.NewBroker()
	profileService := services.NewProfileService(
		cfg.Policy,
		services.NewProfileServiceDB(database.DB),
		profileCache,
		messageBroker,
		cfg.InitialDiamonds,
	)

	chatSessionService := services.NewChatSessionService(generator, cfg.ChatSessionTimeout)
	if err := chatSessionService.StartCleanup("@every 1m"); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule chat session cleanup")
	}
	defer chatSessionService.StopCleanup()

	rateLimiter := api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	housekeeping := cron.New()
	if _, err := housekeeping.AddFunc("@every 5m", func() {
		pruned := rateLimiter.Prune(30 * time.Minute)
		swept := 0
		if memoryCache != nil {
			swept = memoryCache.Sweep()
		}
		log.Debug().Int("limiters", pruned).Int("profiles", swept).Msg("Housekeeping done")
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule housekeeping")
	}
	housekeeping.Start()
	defer housekeeping.Stop()

	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger(), metrics.Middleware())

	// CORS middleware configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	api.SetupRoutes(r, api.Dependencies{
		Profiles:    profileService,
		Generator:   generator,
		Checkout:    stripeService,
		Verifier:    verifier,
		RateLimiter: rateLimiter,
		Costs: api.Costs{
			Chat:    cfg.Costs.Chat,
			Image:   cfg.Costs.Image,
			Speech:  cfg.Costs.Speech,
			Website: cfg.Costs.Website,
		},
		AdminAPIKey: cfg.AdminAPIKey,
	})
	auth.SetupRoutes(r, auth.NewHandler(verifier, authClient, chatSessionService, messageBroker))

	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[origin] = true
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		},
	}
	wsHandler := wsocket.NewHandler(chatSessionService, profileService, rateLimiter, messageBroker, upgrader, cfg.Costs.Chat)

	r.GET("/ws", auth.AuthMiddleware(verifier), func(c *gin.Context) {
		user, _ := auth.UserFromContext(c)
		wsHandler.HandleWebSocket(c.Writer, c.Request, user)
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}
