// File: lumina_studio_go_backend/internal/errors/errorHandlers.go

package errors

import (
	stderrors "errors"
	"net/http"

	"lumina_studio_go_backend/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeBadRequest          ErrorType = "BAD_REQUEST"
	ErrorTypeUnauthorized        ErrorType = "UNAUTHORIZED"
	ErrorTypeInsufficient        ErrorType = "INSUFFICIENT_DIAMONDS"
	ErrorTypeForbidden           ErrorType = "FORBIDDEN"
	ErrorTypeNotFound            ErrorType = "NOT_FOUND"
	ErrorTypeCooldown            ErrorType = "CLAIM_COOLDOWN"
	ErrorTypeRateLimited         ErrorType = "RATE_LIMITED"
	ErrorTypeInternalServerError ErrorType = "INTERNAL_SERVER_ERROR"
	ErrorTypeProvider            ErrorType = "PROVIDER_ERROR"
)

// CustomError represents a custom error with associated HTTP status code and type
type CustomError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Internal   error
}

// Error implements the error interface
func (e *CustomError) Error() string {
	return e.Message
}

func (e *CustomError) Unwrap() error {
	return e.Internal
}

// newError creates a new CustomError
func newError(errType ErrorType, message string, statusCode int, internal error) *CustomError {
	return &CustomError{
		Type:       errType,
		Message:    message,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

// New400Error creates a new bad request error
func New400Error(message string) *CustomError {
	return newError(ErrorTypeBadRequest, message, http.StatusBadRequest, nil)
}

// New401Error creates a new unauthorized error
func New401Error() *CustomError {
	return newError(ErrorTypeUnauthorized, "Unauthorized access", http.StatusUnauthorized, nil)
}

// New402Error is returned when an action costs more diamonds than the user has.
func New402Error(message string) *CustomError {
	return newError(ErrorTypeInsufficient, message, http.StatusPaymentRequired, wallet.ErrInsufficientDiamonds)
}

// New403Error creates a new forbidden error
func New403Error() *CustomError {
	return newError(ErrorTypeForbidden, "Access forbidden", http.StatusForbidden, nil)
}

// New404Error creates a new not found error
func New404Error(message string) *CustomError {
	return newError(ErrorTypeNotFound, message, http.StatusNotFound, nil)
}

func New409Error(message string, internal error) *CustomError {
	return newError(ErrorTypeCooldown, message, http.StatusConflict, internal)
}

func New429Error() *CustomError {
	return newError(ErrorTypeRateLimited, "Too many requests, slow down", http.StatusTooManyRequests, nil)
}

// New500Error creates a new internal server error
func New500Error(internal error) *CustomError {
	return newError(ErrorTypeInternalServerError, "An unexpected error occurred", http.StatusInternalServerError, internal)
}

// New502Error wraps a failure of the AI provider.
func New502Error(message string, internal error) *CustomError {
	return newError(ErrorTypeProvider, message, http.StatusBadGateway, internal)
}

// FromDomain maps known domain errors to a CustomError. Unknown errors become
// a 500.
func FromDomain(err error) *CustomError {
	var customErr *CustomError
	if stderrors.As(err, &customErr) {
		return customErr
	}

	switch {
	case stderrors.Is(err, wallet.ErrInsufficientDiamonds):
		return New402Error("Not enough diamonds")
	case stderrors.Is(err, wallet.ErrClaimCooldown):
		return New409Error("Weekly reward is not available yet", err)
	case stderrors.Is(err, wallet.ErrUnknownPlan), stderrors.Is(err, wallet.ErrInvalidAmount):
		return New400Error(err.Error())
	}
	return New500Error(err)
}

// HandleError handles the custom error and sends an appropriate JSON response
func HandleError(c *gin.Context, err error) {
	customErr := FromDomain(err)

	// Log internal server errors
	if customErr.Type == ErrorTypeInternalServerError || customErr.Type == ErrorTypeProvider {
		logger := zerolog.Ctx(c.Request.Context())
		if logger.GetLevel() == zerolog.Disabled {
			logger = &log.Logger
		}
		logger.Error().
			Err(customErr.Internal).
			Str("url", c.Request.URL.String()).
			Str("type", string(customErr.Type)).
			Msg("Request failed")
	}

	c.AbortWithStatusJSON(customErr.StatusCode, gin.H{
		"error": gin.H{
			"type":    customErr.Type,
			"message": customErr.Message,
		},
	})
}
