package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	apperrors "lumina_studio_go_backend/internal/errors"
	"lumina_studio_go_backend/internal/models"
	"lumina_studio_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	userKey  = "user"
	tokenKey = "access_token"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier turns a bearer token into the user it was issued to.
type TokenVerifier interface {
	Verify(token string) (*models.User, error)
}

// SessionEnder ends server-side state tied to a user's login.
type SessionEnder interface {
	TerminateUserSessions(userID uuid.UUID) int
}

type Handler struct {
	verifier  TokenVerifier
	provider  services.AuthProvider
	sessions  SessionEnder
	publisher services.EventPublisher
}

func NewHandler(verifier TokenVerifier, provider services.AuthProvider, sessions SessionEnder, publisher services.EventPublisher) *Handler {
	return &Handler{verifier: verifier, provider: provider, sessions: sessions, publisher: publisher}
}

func SetupRoutes(r *gin.Engine, h *Handler) {
	auth := r.Group("/auth")
	{
		auth.POST("/signup", h.signUp)
		auth.POST("/signin", h.signIn)
		auth.POST("/signout", AuthMiddleware(h.verifier), h.signOut)
		auth.GET("/user", AuthMiddleware(h.verifier), getUser)
	}
}

func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := zerolog.Ctx(c.Request.Context())

		var token string
		// Browsers cannot set headers on WebSocket upgrades.
		if websocket.IsWebSocketUpgrade(c.Request) {
			token = c.Query("token")
		} else {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				apperrors.HandleError(c, apperrors.New401Error())
				return
			}
			bearerToken := strings.Split(authHeader, " ")
			if len(bearerToken) != 2 || !strings.EqualFold(bearerToken[0], "Bearer") {
				apperrors.HandleError(c, apperrors.New401Error())
				return
			}
			token = bearerToken[1]
		}

		user, err := verifier.Verify(token)
		if err != nil {
			log.Debug().Err(err).Msg("Token rejected")
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		c.Set(userKey, user)
		c.Set(tokenKey, token)
		c.Next()
	}
}

// UserFromContext returns the user set by AuthMiddleware.
func UserFromContext(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}

func getUser(c *gin.Context) {
	user, exists := UserFromContext(c)
	if !exists {
		apperrors.HandleError(c, apperrors.New401Error())
		return
	}
	c.JSON(http.StatusOK, user)
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

func (h *Handler) signUp(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.New400Error("A valid email and a password of at least 6 characters are required"))
		return
	}
	session, err := h.provider.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		handleProviderError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) signIn(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.New400Error("Email and password are required"))
		return
	}
	session, err := h.provider.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		handleProviderError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) signOut(c *gin.Context) {
	user, _ := UserFromContext(c)
	token := c.GetString(tokenKey)

	if err := h.provider.SignOut(c.Request.Context(), token); err != nil {
		handleProviderError(c, err)
		return
	}

	ended := 0
	if h.sessions != nil {
		ended = h.sessions.TerminateUserSessions(user.ID)
	}
	if h.publisher != nil {
		h.publisher.Publish(services.SessionTopic(user.ID), services.SessionEvent{Event: services.SessionSignedOut})
	}
	zerolog.Ctx(c.Request.Context()).Info().
		Str("userID", user.ID.String()).
		Int("chatSessionsEnded", ended).
		Msg("User signed out")
	c.Status(http.StatusNoContent)
}

func handleProviderError(c *gin.Context, err error) {
	var rejection *services.AuthRejection
	if errors.As(err, &rejection) {
		switch {
		case rejection.StatusCode == http.StatusUnauthorized || rejection.StatusCode == http.StatusForbidden:
			apperrors.HandleError(c, apperrors.New401Error())
		case rejection.StatusCode == http.StatusTooManyRequests:
			apperrors.HandleError(c, apperrors.New429Error())
		case rejection.StatusCode < 500:
			apperrors.HandleError(c, apperrors.New400Error(rejection.Message))
		default:
			apperrors.HandleError(c, apperrors.New502Error("Auth service unavailable", err))
		}
		return
	}
	apperrors.HandleError(c, apperrors.New502Error("Auth service unavailable", fmt.Errorf("auth provider: %w", err)))
}
