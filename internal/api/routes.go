package api

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"lumina_studio_go_backend/internal/auth"
	apperrors "lumina_studio_go_backend/internal/errors"
	"lumina_studio_go_backend/internal/export"
	"lumina_studio_go_backend/internal/models"
	"lumina_studio_go_backend/internal/services"
	"lumina_studio_go_backend/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Costs are the diamond prices of the studio actions.
type Costs struct {
	Chat    int
	Image   int
	Speech  int
	Website int
}

// ProfileManager is the balance API used by the handlers.
type ProfileManager interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	Spend(ctx context.Context, userID uuid.UUID, amount int, action string) (*models.Profile, error)
	ClaimWeekly(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	ChangePlan(ctx context.Context, userID uuid.UUID, plan wallet.Plan) (*models.Profile, error)
	RewardStatus(ctx context.Context, userID uuid.UUID) (*services.RewardStatus, error)
}

type Dependencies struct {
	Profiles    ProfileManager
	Generator   services.Generator
	Checkout    services.CheckoutCreator
	Verifier    auth.TokenVerifier
	RateLimiter *RateLimiter
	Costs       Costs
	AdminAPIKey string
	Now         func() time.Time
}

func SetupRoutes(r *gin.Engine, deps Dependencies) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	authed := auth.AuthMiddleware(deps.Verifier)
	limited := RateLimitMiddleware(deps.RateLimiter)

	api := r.Group("/api")
	{
		api.GET("/plans", getPlansHandler(deps.Checkout))
		api.GET("/voices", getVoicesHandler)

		api.GET("/profile", authed, getProfileHandler(deps.Profiles))
		api.GET("/rewards", authed, getRewardsHandler(deps.Profiles))
		api.POST("/rewards/claim", authed, claimRewardHandler(deps.Profiles))
		api.POST("/plan", authed, changePlanHandler(deps.Profiles))
		api.POST("/checkout", authed, createCheckoutHandler(deps.Checkout))

		api.POST("/chat", authed, limited, chatHandler(deps.Profiles, deps.Generator, deps.Costs.Chat))
		api.POST("/images", authed, limited, generateImageHandler(deps.Profiles, deps.Generator, deps.Costs.Image, deps.Now))
		api.POST("/speech", authed, limited, synthesizeSpeechHandler(deps.Profiles, deps.Generator, deps.Costs.Speech))
		api.POST("/sites", authed, limited, generateSiteHandler(deps.Profiles, deps.Generator, deps.Costs.Website))

		api.POST("/chat/transcript", authed, exportTranscriptHandler(deps.Now))
		api.POST("/sites/export", authed, exportSiteHandler(deps.Now))
	}

	admin := r.Group("/admin", adminKeyMiddleware(deps.AdminAPIKey))
	{
		admin.POST("/profiles/:id/plan", adminSetPlanHandler(deps.Profiles))
	}
}

func currentUser(c *gin.Context) *models.User {
	user, _ := auth.UserFromContext(c)
	return user
}

func sendFile(c *gin.Context, f *export.File) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	c.Data(http.StatusOK, f.ContentType, f.Data)
}

// respondError maps service errors that the errors package does not know.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnknownVoice),
		errors.Is(err, services.ErrPlanNotPurchasable),
		errors.Is(err, export.ErrEmptyTranscript),
		errors.Is(err, export.ErrInvalidImage),
		errors.Is(err, export.ErrEmptyAudio):
		apperrors.HandleError(c, apperrors.New400Error(err.Error()))
	default:
		apperrors.HandleError(c, err)
	}
}

// providerError reports a failed generation. The diamonds spent on the
// request are not returned.
func providerError(c *gin.Context, capability string, err error) {
	zerolog.Ctx(c.Request.Context()).Warn().Err(err).Str("capability", capability).Msg("Generation failed after charge")
	message := "The AI service could not complete the request"
	switch {
	case errors.Is(err, services.ErrNoImage):
		message = "The model did not return an image"
	case errors.Is(err, services.ErrNoAudio):
		message = "The model did not return audio"
	case errors.Is(err, services.ErrInvalidLayout):
		message = "The model returned an incomplete website layout"
	}
	apperrors.HandleError(c, apperrors.New502Error(message, err))
}

func getPlansHandler(checkout services.CheckoutCreator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, checkout.Catalogue())
	}
}

func getVoicesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"voices": models.Voices})
}

func getProfileHandler(profiles ProfileManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, err := profiles.GetProfile(c.Request.Context(), currentUser(c).ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, profile)
	}
}

func getRewardsHandler(profiles ProfileManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := profiles.RewardStatus(c.Request.Context(), currentUser(c).ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

func claimRewardHandler(profiles ProfileManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, err := profiles.ClaimWeekly(c.Request.Context(), currentUser(c).ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, profile)
	}
}

type planRequest struct {
	Plan string `json:"plan" binding:"required"`
}

func changePlanHandler(profiles ProfileManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req planRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperrors.HandleError(c, apperrors.New400Error("plan is required"))
			return
		}
		plan, err := wallet.ParsePlan(req.Plan)
		if err != nil {
			respondError(c, err)
			return
		}
		if plan != wallet.PlanFree {
			apperrors.HandleError(c, apperrors.New400Error("Paid plans are activated through checkout"))
			return
		}
		profile, err := profiles.ChangePlan(c.Request.Context(), currentUser(c).ID, plan)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, profile)
	}
}

func createCheckoutHandler(checkout services.CheckoutCreator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req planRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperrors.HandleError(c, apperrors.New400Error("plan is required"))
			return
		}
		plan, err := wallet.ParsePlan(req.Plan)
		if err != nil {
			respondError(c, err)
			return
		}
		user := currentUser(c)
		session, err := checkout.CreateCheckoutSession(user.ID, user.Email, plan)
		if err != nil {
			if errors.Is(err, services.ErrPlanNotPurchasable) {
				respondError(c, err)
				return
			}
			apperrors.HandleError(c, apperrors.New502Error("Could not start checkout", err))
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

type chatRequest struct {
	History []models.ChatMessage `json:"history" binding:"dive"`
	Message string               `json:"message"`
}

func chatHandler(profiles ProfileManager, generator services.Generator, cost int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
			apperrors.HandleError(c, apperrors.New400Error("message is required and history roles must be user or model"))
			return
		}
		profile, err := profiles.Spend(c.Request.Context(), currentUser(c).ID, cost, "chat")
		if err != nil {
			respondError(c, err)
			return
		}
		reply, err := generator.Chat(c.Request.Context(), req.History, req.Message)
		if err != nil {
			providerError(c, "chat", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": models.ChatMessage{Role: "model", Text: reply},
			"profile": profile,
		})
	}
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

func generateImageHandler(profiles ProfileManager, generator services.Generator, cost int, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req promptRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
			apperrors.HandleError(c, apperrors.New400Error("prompt is required"))
			return
		}
		profile, err := profiles.Spend(c.Request.Context(), currentUser(c).ID, cost, "image")
		if err != nil {
			respondError(c, err)
			return
		}
		img, err := generator.GenerateImage(c.Request.Context(), req.Prompt)
		if err != nil {
			providerError(c, "image", err)
			return
		}

		if c.Query("download") == "true" {
			f, err := export.ImagePNG(img, now())
			if err != nil {
				respondError(c, err)
				return
			}
			sendFile(c, f)
			return
		}
		c.JSON(http.StatusOK, gin.H{"image": img, "profile": profile})
	}
}

type speechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

func synthesizeSpeechHandler(profiles ProfileManager, generator services.Generator, cost int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req speechRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
			apperrors.HandleError(c, apperrors.New400Error("text is required"))
			return
		}
		if _, ok := models.LookupVoice(req.Voice); !ok {
			respondError(c, fmt.Errorf("%w: %q", services.ErrUnknownVoice, req.Voice))
			return
		}
		profile, err := profiles.Spend(c.Request.Context(), currentUser(c).ID, cost, "speech")
		if err != nil {
			respondError(c, err)
			return
		}
		pcm, err := generator.Synthesize(c.Request.Context(), req.Text, req.Voice)
		if err != nil {
			providerError(c, "speech", err)
			return
		}

		if c.Query("download") == "true" {
			f, err := export.SpeechPCM(pcm, req.Voice)
			if err != nil {
				respondError(c, err)
				return
			}
			sendFile(c, f)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"audio":           base64.StdEncoding.EncodeToString(pcm),
			"voice":           req.Voice,
			"sample_rate":     export.SampleRate,
			"channels":        export.Channels,
			"bits_per_sample": export.BitsPerSample,
			"profile":         profile,
		})
	}
}

func generateSiteHandler(profiles ProfileManager, generator services.Generator, cost int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req promptRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
			apperrors.HandleError(c, apperrors.New400Error("prompt is required"))
			return
		}
		profile, err := profiles.Spend(c.Request.Context(), currentUser(c).ID, cost, "website")
		if err != nil {
			respondError(c, err)
			return
		}
		layout, err := generator.GenerateLayout(c.Request.Context(), req.Prompt)
		if err != nil {
			providerError(c, "layout", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"layout": layout, "profile": profile})
	}
}

type transcriptRequest struct {
	Messages []models.ChatMessage `json:"messages" binding:"dive"`
}

func exportTranscriptHandler(now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transcriptRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperrors.HandleError(c, apperrors.New400Error("messages must be a list of user or model turns"))
			return
		}

		var (
			f   *export.File
			err error
		)
		switch format := c.DefaultQuery("format", "txt"); format {
		case "txt":
			f, err = export.Transcript(req.Messages, now())
		case "pdf":
			f, err = export.TranscriptPDF(req.Messages, now())
		default:
			apperrors.HandleError(c, apperrors.New400Error("format must be txt or pdf"))
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		sendFile(c, f)
	}
}

func exportSiteHandler(now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var layout models.SiteLayout
		if err := c.ShouldBindJSON(&layout); err != nil || strings.TrimSpace(layout.Title) == "" {
			apperrors.HandleError(c, apperrors.New400Error("a layout with a title is required"))
			return
		}
		f, err := export.SiteZip(&layout, now().Year())
		if err != nil {
			respondError(c, err)
			return
		}
		sendFile(c, f)
	}
}

func adminKeyMiddleware(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		given := c.GetHeader("X-Admin-Key")
		if key == "" || subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
			apperrors.HandleError(c, apperrors.New403Error())
			return
		}
		c.Next()
	}
}

func adminSetPlanHandler(profiles ProfileManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			apperrors.HandleError(c, apperrors.New400Error("invalid profile id"))
			return
		}
		var req planRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperrors.HandleError(c, apperrors.New400Error("plan is required"))
			return
		}
		plan, err := wallet.ParsePlan(req.Plan)
		if err != nil {
			respondError(c, err)
			return
		}
		profile, err := profiles.ChangePlan(c.Request.Context(), userID, plan)
		if err != nil {
			respondError(c, err)
			return
		}
		zerolog.Ctx(c.Request.Context()).Info().
			Str("userID", userID.String()).
			Str("plan", string(plan)).
			Msg("Plan set by admin")
		c.JSON(http.StatusOK, profile)
	}
}
